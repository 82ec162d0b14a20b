// Package daemon runs the background upkeep of the serve command.
//
// The daemon:
// 1. Rebuilds the spreadsheet mirror on startup when it is missing
// 2. Watches the mirror and rebuilds it when it is deleted or moved away
// 3. Periodically replays the divergence journal
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	tasksync "github.com/robsonferreira/tasksync/internal/sync"
)

// Coordinator is the part of the synchronizer the daemon drives.
// *sync.Coordinator satisfies it.
type Coordinator interface {
	RebuildMirror(ctx context.Context) (int, error)
	Reconcile(ctx context.Context) (*tasksync.ReconcileReport, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// MirrorPath is the workbook to watch (required)
	MirrorPath string

	// DebounceInterval is how long the mirror must stay missing before it
	// is rebuilt. Editors often delete and recreate a file on save.
	DebounceInterval time.Duration

	// ReconcileInterval is how often to replay the divergence journal
	// (0 disables)
	ReconcileInterval time.Duration

	// OnRebuilt is called with the row count after each rebuild (optional)
	OnRebuilt func(rows int)

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceInterval:  500 * time.Millisecond,
		ReconcileInterval: 0,
		Logger:            log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon keeps the mirror present and the journal drained.
type Daemon struct {
	coord  Coordinator
	path   string
	config Config

	watcher *fsnotify.Watcher

	// pending is when the mirror was last seen removed; zero when not pending
	pending   time.Time
	pendingMu sync.Mutex

	ready     chan struct{}
	readyOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New creates a Daemon. Use Start to begin watching.
func New(coord Coordinator, config Config) (*Daemon, error) {
	if coord == nil {
		return nil, fmt.Errorf("coordinator cannot be nil")
	}
	if config.MirrorPath == "" {
		return nil, fmt.Errorf("mirror path cannot be empty")
	}
	defaults := DefaultConfig()
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = defaults.DebounceInterval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	abs, err := filepath.Abs(config.MirrorPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mirror path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		coord:   coord,
		path:    abs,
		config:  config,
		watcher: watcher,
		ready:   make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start rebuilds a missing mirror, starts watching and blocks until ctx
// is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := d.ensureMirror(); err != nil {
		return fmt.Errorf("initial mirror rebuild failed: %w", err)
	}

	// Watch the directory: the file itself disappears on delete and on
	// every atomic save.
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create mirror directory: %w", err)
	}
	if err := d.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	d.config.Logger.Printf("Watching: %s", d.path)

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processPending()
	if d.config.ReconcileInterval > 0 {
		d.wg.Add(1)
		go d.reconcileLoop()
	}
	d.readyOnce.Do(func() { close(d.ready) })

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Ready is closed once the watcher is active.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Stop shuts the daemon down and waits for its goroutines.
func (d *Daemon) Stop() error {
	d.once.Do(func() {
		d.config.Logger.Println("Stopping daemon")
		d.cancel()

		if err := d.watcher.Close(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}

		d.wg.Wait()
		d.config.Logger.Println("Daemon stopped")
	})
	return nil
}

// ensureMirror rebuilds the mirror when the file does not exist.
func (d *Daemon) ensureMirror() error {
	_, err := os.Stat(d.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat mirror: %w", err)
	}
	return d.rebuild("mirror missing")
}

func (d *Daemon) rebuild(reason string) error {
	rows, err := d.coord.RebuildMirror(d.ctx)
	if err != nil {
		return err
	}
	d.config.Logger.Printf("Rebuilt mirror (%s): %d rows", reason, rows)
	if d.config.OnRebuilt != nil {
		d.config.OnRebuilt(rows)
	}
	return nil
}

// watchFileEvents marks the mirror pending when it is removed or renamed
// away, and clears the mark when it reappears.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != d.path {
				continue
			}

			switch {
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				d.config.Logger.Printf("File event: %s %s", event.Op, event.Name)
				d.pendingMu.Lock()
				d.pending = time.Now()
				d.pendingMu.Unlock()
			case event.Has(fsnotify.Create):
				d.pendingMu.Lock()
				d.pending = time.Time{}
				d.pendingMu.Unlock()
			}

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processPending rebuilds the mirror once it has stayed missing for the
// debounce interval.
func (d *Daemon) processPending() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.pendingMu.Lock()
			due := !d.pending.IsZero() && time.Since(d.pending) >= d.config.DebounceInterval
			if due {
				d.pending = time.Time{}
			}
			d.pendingMu.Unlock()

			if !due {
				continue
			}
			if _, err := os.Stat(d.path); err == nil {
				continue
			}
			if err := d.rebuild("mirror removed"); err != nil {
				d.config.Logger.Printf("WARNING: failed to rebuild mirror: %v", err)
			}
		}
	}
}

// reconcileLoop replays the divergence journal on a fixed interval.
func (d *Daemon) reconcileLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			report, err := d.coord.Reconcile(d.ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					d.config.Logger.Printf("WARNING: reconcile failed: %v", err)
				}
				continue
			}
			if report.Examined > 0 {
				d.config.Logger.Printf("Reconciled %d/%d divergences (%d failed)",
					report.Resolved, report.Examined, report.Failed)
			}
		}
	}
}
