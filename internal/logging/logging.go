// Package logging builds the component loggers shared by every command.
//
// Output always goes to stderr. When a log file is configured it is also
// written there, rotated by size and age.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/robsonferreira/tasksync/internal/config"
)

// Output is the shared destination for component loggers.
type Output struct {
	w    io.Writer
	file *lumberjack.Logger
}

// Open creates the output described by cfg.
func Open(cfg config.LogConfig) *Output {
	return openWith(os.Stderr, cfg)
}

func openWith(console io.Writer, cfg config.LogConfig) *Output {
	if cfg.File == "" {
		return &Output{w: console}
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Clean(cfg.File),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return &Output{
		w:    io.MultiWriter(console, file),
		file: file,
	}
}

// Discard returns an output that drops everything.
func Discard() *Output {
	return &Output{w: io.Discard}
}

// Logger returns a logger for component, e.g. "sync" logs as "[sync] ".
func (o *Output) Logger(component string) *log.Logger {
	return log.New(o.w, "["+component+"] ", log.LstdFlags)
}

// Writer returns the underlying writer.
func (o *Output) Writer() io.Writer {
	return o.w
}

// Close closes the log file, if any.
func (o *Output) Close() error {
	if o.file == nil {
		return nil
	}
	return o.file.Close()
}
