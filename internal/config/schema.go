// Package config loads tasksync settings from flags, environment, a config
// file and a .env file.
package config

import (
	"time"

	"github.com/robsonferreira/tasksync/internal/notion"
)

// Config represents the full tasksync configuration
type Config struct {
	// Notion workspace access
	Notion NotionConfig `yaml:"notion" mapstructure:"notion"`

	// Local record store
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Spreadsheet mirror
	Mirror MirrorConfig `yaml:"mirror" mapstructure:"mirror"`

	// HTTP server
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Background upkeep while serving
	Daemon DaemonConfig `yaml:"daemon" mapstructure:"daemon"`

	// Log output
	Log LogConfig `yaml:"log" mapstructure:"log"`

	// File is the config file that was read, if any
	File string `yaml:"-" mapstructure:"-"`
}

// NotionConfig configures the remote store client
type NotionConfig struct {
	Token      string        `yaml:"token" mapstructure:"token"`
	DatabaseID string        `yaml:"database_id" mapstructure:"database_id"`
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`
	Version    string        `yaml:"version" mapstructure:"version"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Properties notion.Schema `yaml:"properties" mapstructure:"properties"`
}

// DatabaseConfig configures the SQLite store
type DatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// MirrorConfig configures the .xlsx mirror
type MirrorConfig struct {
	Path  string `yaml:"path" mapstructure:"path"`
	Sheet string `yaml:"sheet" mapstructure:"sheet"`
	Watch bool   `yaml:"watch" mapstructure:"watch"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	Dashboard bool   `yaml:"dashboard" mapstructure:"dashboard"`
}

// DaemonConfig configures the mirror watcher and periodic reconcile
type DaemonConfig struct {
	Debounce          time.Duration `yaml:"debounce" mapstructure:"debounce"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval" mapstructure:"reconcile_interval"`
}

// LogConfig configures log output and rotation
type LogConfig struct {
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}
