package mirror

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// open opens the existing workbook. The returned error wraps
// os.ErrNotExist when the file is missing.
func (m *Mirror) open() (*excelize.File, error) {
	if _, err := os.Stat(m.path); err != nil {
		return nil, fmt.Errorf("failed to stat mirror %s: %w", m.path, err)
	}

	f, err := excelize.OpenFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror %s: %w", m.path, err)
	}
	return f, nil
}

// openOrCreate opens the workbook, creating it (and the sheet, with a
// header row) when missing.
func (m *Mirror) openOrCreate() (*excelize.File, error) {
	if _, err := os.Stat(m.path); os.IsNotExist(err) {
		return m.create()
	}

	f, err := m.open()
	if err != nil {
		return nil, err
	}

	idx, err := f.GetSheetIndex(m.sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to look up sheet %s: %w", m.sheet, err)
	}
	if idx >= 0 {
		return f, nil
	}

	if _, err := f.NewSheet(m.sheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create sheet %s: %w", m.sheet, err)
	}
	if err := m.writeRow(f, 1, Header); err != nil {
		_ = f.Close()
		return nil, err
	}
	m.logger.Printf("Created sheet %s in %s", m.sheet, filepath.Base(m.path))
	return f, nil
}

func (m *Mirror) create() (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName(f.GetSheetName(0), m.sheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to name sheet %s: %w", m.sheet, err)
	}
	if err := m.writeRow(f, 1, Header); err != nil {
		_ = f.Close()
		return nil, err
	}

	m.logger.Printf("Created mirror %s", m.path)
	return f, nil
}

// writeRow writes values starting at column A of the given 1-based row.
func (m *Mirror) writeRow(f *excelize.File, row int, values interface{}) error {
	var cells []interface{}
	switch v := values.(type) {
	case []string:
		for _, s := range v {
			cells = append(cells, s)
		}
	case []interface{}:
		cells = v
	default:
		return fmt.Errorf("unsupported row type %T", values)
	}

	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("invalid row %d: %w", row, err)
	}
	if err := f.SetSheetRow(m.sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

// save writes the workbook to a temp file beside the mirror and renames it
// into place, so readers never observe a partially written file.
func (m *Mirror) save(f *excelize.File) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create mirror directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(m.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := f.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write mirror: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write mirror: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		return fmt.Errorf("failed to replace mirror %s: %w", m.path, err)
	}
	return nil
}
