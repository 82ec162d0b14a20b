package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robsonferreira/tasksync/internal/config"
	"github.com/robsonferreira/tasksync/internal/db"
	"github.com/robsonferreira/tasksync/internal/logging"
	"github.com/robsonferreira/tasksync/internal/mirror"
	"github.com/robsonferreira/tasksync/internal/notion"
	tasksync "github.com/robsonferreira/tasksync/internal/sync"
)

// app holds the stores opened for one command.
type app struct {
	cfg    *config.Config
	logs   *logging.Output
	store  *db.DB
	mirror *mirror.Mirror
	coord  *tasksync.Coordinator
}

// openLocal loads config and opens the SQLite store and mirror. It never
// needs Notion credentials.
func openLocal(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateLocal(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logs := logging.Open(cfg.Log)
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	m, err := mirror.New(mirror.Config{
		Path:   cfg.Mirror.Path,
		Sheet:  cfg.Mirror.Sheet,
		Logger: logs.Logger("mirror"),
	})
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}

	return &app{cfg: cfg, logs: logs, store: store, mirror: m}, nil
}

// openApp opens every store and builds the coordinator.
func openApp(cmd *cobra.Command) (*app, error) {
	a, err := openLocal(cmd)
	if err != nil {
		return nil, err
	}
	if err := a.connect(nil); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// connect builds the Notion client and the coordinator. Notion credentials
// are required.
func (a *app) connect(notifier tasksync.Notifier) error {
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	remote, err := notion.NewClient(notion.Config{
		Token:      a.cfg.Notion.Token,
		DatabaseID: a.cfg.Notion.DatabaseID,
		BaseURL:    a.cfg.Notion.BaseURL,
		Version:    a.cfg.Notion.Version,
		Timeout:    a.cfg.Notion.Timeout,
		Schema:     a.cfg.Notion.Properties,
		Logger:     a.logs.Logger("notion"),
	})
	if err != nil {
		return err
	}

	coord, err := tasksync.New(tasksync.Config{
		Local:    a.store,
		Remote:   remote,
		Mirror:   a.mirror,
		Journal:  a.store,
		Notifier: notifier,
		Logger:   a.logs.Logger("sync"),
	})
	if err != nil {
		return err
	}
	a.coord = coord
	return nil
}

// Close releases the store and log file.
func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logs.Close()
}
