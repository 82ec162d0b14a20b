// Package mirror maintains the spreadsheet projection of tasks.
//
// The mirror is a single .xlsx workbook with one sheet whose columns are
// fixed: title, status, priority, remote page id. The remote page id is the
// join key. The mirror never generates identity; it only reflects what the
// synchronizer writes.
//
// Every call opens the workbook, mutates it, saves it and closes it. Calls
// on the same file path are serialized process-wide.
package mirror

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/robsonferreira/tasksync/internal/task"
)

// DefaultSheet is the sheet tasks are written to.
const DefaultSheet = "Tasks"

// Header is the first row of the sheet.
var Header = []string{"Title", "Status", "Priority", "Remote Page ID"}

// keyColumn is the zero-based index of the join key.
const keyColumn = 3

// Row is one task in the mirror.
type Row struct {
	Title    string
	Status   string
	Priority string
	Key      string
}

// RowFor projects a task into a mirror row.
func RowFor(t *task.Task) Row {
	return Row{
		Title:    t.Title,
		Status:   string(t.Status),
		Priority: string(t.Priority),
		Key:      t.RemotePageID,
	}
}

func (r Row) values() []interface{} {
	return []interface{}{r.Title, r.Status, r.Priority, r.Key}
}

func rowFromCells(cells []string) Row {
	get := func(i int) string {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
	return Row{Title: get(0), Status: get(1), Priority: get(2), Key: get(keyColumn)}
}

// Config configures a Mirror.
type Config struct {
	// Path of the .xlsx workbook
	Path string

	// Sheet name (default: DefaultSheet)
	Sheet string

	// Logger for mirror activity (default: stderr logger)
	Logger *log.Logger
}

// Mirror reads and writes the workbook at a fixed path.
type Mirror struct {
	path   string
	sheet  string
	lock   *sync.Mutex
	logger *log.Logger
}

var (
	pathLocksMu sync.Mutex
	pathLocks   = make(map[string]*sync.Mutex)
)

// lockFor returns the process-wide mutex for a workbook path.
func lockFor(path string) *sync.Mutex {
	pathLocksMu.Lock()
	defer pathLocksMu.Unlock()

	mu, ok := pathLocks[path]
	if !ok {
		mu = &sync.Mutex{}
		pathLocks[path] = mu
	}
	return mu
}

// New creates a Mirror. The workbook is not touched until the first call.
func New(cfg Config) (*Mirror, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("mirror path is required")
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mirror path: %w", err)
	}
	if cfg.Sheet == "" {
		cfg.Sheet = DefaultSheet
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[mirror] ", log.LstdFlags)
	}

	return &Mirror{
		path:   abs,
		sheet:  cfg.Sheet,
		lock:   lockFor(abs),
		logger: cfg.Logger,
	}, nil
}

// Path returns the absolute workbook path.
func (m *Mirror) Path() string {
	return m.path
}

// Sheet returns the sheet name.
func (m *Mirror) Sheet() string {
	return m.sheet
}

// Upsert writes row, matched by row.Key. An existing row is overwritten in
// place; otherwise the row is appended. Duplicate rows for the same key are
// removed so the key identifies at most one row. The workbook and sheet are
// created if missing.
func (m *Mirror) Upsert(row Row) error {
	if row.Key == "" {
		return fmt.Errorf("mirror row for %q has no key", row.Title)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	f, err := m.openOrCreate()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(m.sheet)
	if err != nil {
		return fmt.Errorf("failed to read sheet %s: %w", m.sheet, err)
	}

	matches := matchingRows(rows, row.Key)
	target := len(rows) + 1
	if len(rows) == 0 {
		// Sheet existed but was emptied by hand.
		if err := m.writeRow(f, 1, Header); err != nil {
			return err
		}
		target = 2
	}
	if len(matches) > 0 {
		target = matches[0]
		// Remove from the bottom so earlier row numbers stay valid.
		for i := len(matches) - 1; i >= 1; i-- {
			if err := f.RemoveRow(m.sheet, matches[i]); err != nil {
				return fmt.Errorf("failed to remove duplicate row %d: %w", matches[i], err)
			}
		}
	}

	if err := m.writeRow(f, target, row.values()); err != nil {
		return err
	}
	return m.save(f)
}

// RemoveByKey deletes every row whose key matches. A missing workbook or
// sheet is a no-op. Reports whether a row was removed.
func (m *Mirror) RemoveByKey(key string) (bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	f, err := m.open()
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(m.sheet); err != nil || idx < 0 {
		return false, nil
	}

	rows, err := f.GetRows(m.sheet)
	if err != nil {
		return false, fmt.Errorf("failed to read sheet %s: %w", m.sheet, err)
	}

	matches := matchingRows(rows, key)
	if len(matches) == 0 {
		return false, nil
	}
	for i := len(matches) - 1; i >= 0; i-- {
		if err := f.RemoveRow(m.sheet, matches[i]); err != nil {
			return false, fmt.Errorf("failed to remove row %d: %w", matches[i], err)
		}
	}

	if err := m.save(f); err != nil {
		return false, err
	}
	return true, nil
}

// Rows returns every data row (header excluded). A missing workbook or
// sheet yields no rows.
func (m *Mirror) Rows() ([]Row, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	f, err := m.open()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(m.sheet); err != nil || idx < 0 {
		return nil, nil
	}

	cells, err := f.GetRows(m.sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", m.sheet, err)
	}

	var out []Row
	for i, r := range cells {
		if i == 0 {
			continue
		}
		out = append(out, rowFromCells(r))
	}
	return out, nil
}

// Rebuild replaces every data row with rows, keeping the header.
func (m *Mirror) Rebuild(rows []Row) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.rebuild(rows)
}

// RebuildFrom calls source while holding the workbook lock and replaces
// every data row with its result. Writers that land after source returns
// queue behind the rebuild instead of being overwritten by it.
func (m *Mirror) RebuildFrom(source func() ([]Row, error)) (int, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	rows, err := source()
	if err != nil {
		return 0, err
	}
	if err := m.rebuild(rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (m *Mirror) rebuild(rows []Row) error {
	f, err := m.openOrCreate()
	if err != nil {
		return err
	}
	defer f.Close()

	existing, err := f.GetRows(m.sheet)
	if err != nil {
		return fmt.Errorf("failed to read sheet %s: %w", m.sheet, err)
	}
	for i := len(existing); i >= 2; i-- {
		if err := f.RemoveRow(m.sheet, i); err != nil {
			return fmt.Errorf("failed to clear row %d: %w", i, err)
		}
	}

	if err := m.writeRow(f, 1, Header); err != nil {
		return err
	}
	for i, r := range rows {
		if err := m.writeRow(f, i+2, r.values()); err != nil {
			return err
		}
	}

	if err := m.save(f); err != nil {
		return err
	}
	m.logger.Printf("Rebuilt %s with %d rows", filepath.Base(m.path), len(rows))
	return nil
}

// matchingRows returns the 1-based sheet row numbers whose key cell equals
// key, skipping the header.
func matchingRows(rows [][]string, key string) []int {
	var out []int
	for i, r := range rows {
		if i == 0 {
			continue
		}
		if len(r) > keyColumn && r[keyColumn] == key {
			out = append(out, i+1)
		}
	}
	return out
}
