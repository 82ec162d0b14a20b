package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/robsonferreira/tasksync/internal/api"
	"github.com/robsonferreira/tasksync/internal/daemon"
	"github.com/robsonferreira/tasksync/internal/dashboard"
	"github.com/robsonferreira/tasksync/internal/db"
	"github.com/robsonferreira/tasksync/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Serve the task API, dashboard and mirror watcher",
	Long: `Start the HTTP API.

Endpoints:
  /api/v1/tasks          create and list tasks
  /api/v1/tasks/:id      get, update and delete one task
  /api/v1/divergences    open divergence journal entries
  /api/v1/reconcile      replay the divergence journal
  /api/v1/mirror/rebuild rewrite the .xlsx mirror from SQLite
  /api/v1/notion/...     original route names, kept as aliases

With server.dashboard enabled, a live dashboard is served at / and task
events stream over ws://<addr>/ws.

With mirror.watch enabled, the mirror workbook is rebuilt whenever it is
deleted, and the divergence journal is replayed every
daemon.reconcile_interval.

Example usage:
  tasksync serve
  tasksync serve --addr :9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openLocal(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		// The dashboard handler is the coordinator's notifier, so it exists
		// before the coordinator does.
		var (
			hub     *dashboard.Hub
			handler *dashboard.Handler
		)
		if a.cfg.Server.Dashboard {
			hub = dashboard.NewHub(dashboard.Config{Logger: a.logs.Logger("dashboard")})
			handler = dashboard.NewHandler(hub, a.logs.Logger("dashboard"))
			err = a.connect(handler)
		} else {
			err = a.connect(nil)
		}
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		srvCfg := api.Config{
			Service: a.coord,
			Logger:  a.logs.Logger("api"),
		}

		var onRebuilt func(int)
		if hub != nil {
			if err := seedDashboard(ctx, a.store, handler); err != nil {
				return err
			}
			hub.Start()
			defer hub.Stop()

			srvCfg.Hub = hub
			srvCfg.Page = dashboard.Page
			onRebuilt = handler.MirrorRebuilt
		}

		if a.cfg.Mirror.Watch {
			d, err := daemon.New(a.coord, daemon.Config{
				MirrorPath:        a.mirror.Path(),
				DebounceInterval:  a.cfg.Daemon.Debounce,
				ReconcileInterval: a.cfg.Daemon.ReconcileInterval,
				OnRebuilt:         onRebuilt,
				Logger:            a.logs.Logger("daemon"),
			})
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}

			daemonLog := a.logs.Logger("daemon")
			go func() {
				if err := d.Start(ctx); err != nil {
					daemonLog.Printf("ERROR: daemon stopped: %v", err)
				}
			}()
			defer d.Stop()
		}

		gin.SetMode(gin.ReleaseMode)
		server, err := api.NewServer(srvCfg)
		if err != nil {
			return err
		}

		fmt.Printf("%s tasksync serving on %s\n", ui.RenderPass("✓"), a.cfg.Server.Addr)
		fmt.Printf("   Database: %s\n", a.store.Path())
		fmt.Printf("   Mirror:   %s\n", a.mirror.Path())
		if hub != nil {
			fmt.Printf("   Dashboard: http://%s/\n", a.cfg.Server.Addr)
		}
		fmt.Println("\nPress Ctrl+C to stop...")

		if err := server.Run(ctx, a.cfg.Server.Addr); err != nil {
			return err
		}
		fmt.Println("\nServer stopped")
		return nil
	},
}

// seedDashboard loads current counts so new dashboard clients see real
// numbers before the first event.
func seedDashboard(ctx context.Context, store *db.DB, handler *dashboard.Handler) error {
	tasks, err := store.ListTasks(ctx, db.ListFilter{})
	if err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}
	open, err := store.OpenDivergences(ctx)
	if err != nil {
		return fmt.Errorf("failed to load divergences: %w", err)
	}
	handler.Reset(tasks, len(open))
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
