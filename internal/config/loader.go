package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/robsonferreira/tasksync/internal/notion"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TASKSYNC"

// Options controls where Load looks for settings.
type Options struct {
	// ConfigFile is an explicit config file. When empty, tasksync.{yaml,toml,json}
	// is searched in ., .tasksync and ~/.config/tasksync.
	ConfigFile string

	// EnvFile is a dotenv file loaded into the environment before reading
	// (default: .env). Variables already set are not overridden.
	EnvFile string

	// Flags, when set, override every other source for the keys in FlagKeys.
	Flags *pflag.FlagSet

	// FlagKeys maps config keys to flag names, e.g. "database.path" -> "db".
	FlagKeys map[string]string
}

// legacyEnv are the variable names the credentials were first read from.
var legacyEnv = map[string]string{
	"notion.token":       "NOTION_TOKEN",
	"notion.database_id": "ID_DO_BANCO",
}

// Load builds the configuration. Precedence, highest first: flags,
// environment, config file, .env file, defaults. It does not validate.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := gotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if opts.Flags != nil {
		for key, name := range opts.FlagKeys {
			flag := opts.Flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", opts.ConfigFile, err)
		}
	} else {
		v.SetConfigName("tasksync")
		v.AddConfigPath(".")
		v.AddConfigPath(".tasksync")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "tasksync"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply to keys
// missing from the config file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("notion.token", d.Notion.Token)
	v.SetDefault("notion.database_id", d.Notion.DatabaseID)
	v.SetDefault("notion.base_url", d.Notion.BaseURL)
	v.SetDefault("notion.version", d.Notion.Version)
	v.SetDefault("notion.timeout", d.Notion.Timeout)
	v.SetDefault("notion.properties.title", d.Notion.Properties.Title)
	v.SetDefault("notion.properties.status", d.Notion.Properties.Status)
	v.SetDefault("notion.properties.priority", d.Notion.Properties.Priority)

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("mirror.path", d.Mirror.Path)
	v.SetDefault("mirror.sheet", d.Mirror.Sheet)
	v.SetDefault("mirror.watch", d.Mirror.Watch)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.dashboard", d.Server.Dashboard)

	v.SetDefault("daemon.debounce", d.Daemon.Debounce)
	v.SetDefault("daemon.reconcile_interval", d.Daemon.ReconcileInterval)

	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)
}

// Validate fails fast on settings the process cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Notion.Token) == "" {
		return fmt.Errorf("%w (set notion.token, %s_NOTION_TOKEN or NOTION_TOKEN)", notion.ErrMissingToken, EnvPrefix)
	}
	if strings.TrimSpace(c.Notion.DatabaseID) == "" {
		return fmt.Errorf("%w (set notion.database_id, %s_NOTION_DATABASE_ID or ID_DO_BANCO)", notion.ErrMissingDatabaseID, EnvPrefix)
	}
	return c.ValidateLocal()
}

// ValidateLocal checks the settings needed by commands that never reach
// Notion.
func (c *Config) ValidateLocal() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Mirror.Path == "" {
		return fmt.Errorf("mirror.path is required")
	}
	if c.Notion.Timeout < 0 {
		return fmt.Errorf("notion.timeout cannot be negative")
	}
	if c.Daemon.Debounce < 0 || c.Daemon.ReconcileInterval < 0 {
		return fmt.Errorf("daemon intervals cannot be negative")
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation settings cannot be negative")
	}
	return nil
}
