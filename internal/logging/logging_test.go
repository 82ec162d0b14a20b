package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/robsonferreira/tasksync/internal/config"
)

func TestLogger_ConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	out := openWith(&buf, config.LogConfig{})
	defer out.Close()

	out.Logger("sync").Printf("Created task %s", "t1@page-1")

	if !strings.Contains(buf.String(), "[sync] ") || !strings.Contains(buf.String(), "t1@page-1") {
		t.Errorf("unexpected log output: %q", buf.String())
	}
}

func TestLogger_File(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "tasksync.log")
	out := openWith(&buf, config.LogConfig{File: path, MaxSizeMB: 1, MaxBackups: 1})

	out.Logger("notion").Println("WARNING: slow response")
	if err := out.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "[notion] WARNING: slow response") {
		t.Errorf("log file = %q", data)
	}
	if !strings.Contains(buf.String(), "slow response") {
		t.Error("console did not receive the line")
	}
}

func TestDiscard(t *testing.T) {
	out := Discard()
	out.Logger("x").Println("dropped")
	if err := out.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
}
