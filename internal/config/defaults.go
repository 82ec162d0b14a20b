package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robsonferreira/tasksync/internal/mirror"
	"github.com/robsonferreira/tasksync/internal/notion"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Notion: NotionConfig{
			BaseURL:    notion.DefaultBaseURL,
			Version:    notion.DefaultVersion,
			Timeout:    notion.DefaultTimeout,
			Properties: notion.DefaultSchema(),
		},
		Database: DatabaseConfig{
			Path: filepath.Join(".tasksync", "tasks.db"),
		},
		Mirror: MirrorConfig{
			Path:  "tasks.xlsx",
			Sheet: mirror.DefaultSheet,
			Watch: true,
		},
		Server: ServerConfig{
			Addr:      ":8080",
			Dashboard: true,
		},
		Daemon: DaemonConfig{
			Debounce:          500 * time.Millisecond,
			ReconcileInterval: 5 * time.Minute,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

const defaultHeader = `# tasksync configuration
#
# Every key can be overridden with a TASKSYNC_ environment variable, e.g.
# TASKSYNC_NOTION_TOKEN or TASKSYNC_MIRROR_PATH. NOTION_TOKEN and
# ID_DO_BANCO are also read for the credentials.

`

// WriteDefault writes the default configuration as YAML. Credentials are
// left empty. An existing file is not overwritten unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	content := append([]byte(defaultHeader), data...)
	if err := os.WriteFile(path, content, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Marshal renders cfg as YAML with the token masked.
func Marshal(cfg *Config) ([]byte, error) {
	masked := *cfg
	if masked.Notion.Token != "" {
		masked.Notion.Token = maskSecret(masked.Notion.Token)
	}
	return yaml.Marshal(&masked)
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
