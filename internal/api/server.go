// Package api exposes the coordinator over HTTP.
//
// Routes live under /api/v1. The original /api/v1/notion/... paths are
// kept as aliases for existing clients.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/robsonferreira/tasksync/internal/db"
	tasksync "github.com/robsonferreira/tasksync/internal/sync"
	"github.com/robsonferreira/tasksync/internal/task"
)

// Service is the coordinator surface the handlers call.
// *sync.Coordinator satisfies it.
type Service interface {
	Create(ctx context.Context, in task.CreateInput) (*task.Task, error)
	Update(ctx context.Context, id string, in task.UpdateInput) (*task.Task, error)
	Delete(ctx context.Context, id string) (*task.Task, error)
	Get(ctx context.Context, id string) (*task.Task, error)
	List(ctx context.Context, filter db.ListFilter) ([]*task.Task, error)
	Divergences(ctx context.Context) ([]*db.Divergence, error)
	Reconcile(ctx context.Context) (*tasksync.ReconcileReport, error)
	RebuildMirror(ctx context.Context) (int, error)
}

// Config configures a Server.
type Config struct {
	// Service handles every task request (required)
	Service Service

	// Hub, when set, is mounted at /ws
	Hub http.Handler

	// Page, when set, is served at /
	Page http.HandlerFunc

	// Logger for request logs (default: stderr logger)
	Logger *log.Logger
}

// Server is the HTTP API server.
type Server struct {
	svc    Service
	router *gin.Engine
	logger *log.Logger
}

// NewServer builds the router.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("service is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[api] ", log.LstdFlags)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Output:    cfg.Logger.Writer(),
		SkipPaths: []string{"/health", "/ws"},
	}))

	s := &Server{
		svc:    cfg.Service,
		router: router,
		logger: cfg.Logger,
	}

	router.GET("/health", s.handleHealth)
	if cfg.Hub != nil {
		router.GET("/ws", gin.WrapH(cfg.Hub))
	}
	if cfg.Page != nil {
		router.GET("/", gin.WrapF(cfg.Page))
	}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/tasks", s.handleCreate)
		v1.GET("/tasks", s.handleList)
		v1.GET("/tasks/:id", s.handleGet)
		v1.PATCH("/tasks/:id", s.handleUpdate)
		v1.PUT("/tasks/:id", s.handleUpdate)
		v1.DELETE("/tasks/:id", s.handleDelete)

		v1.GET("/divergences", s.handleDivergences)
		v1.POST("/reconcile", s.handleReconcile)
		v1.POST("/mirror/rebuild", s.handleRebuildMirror)
	}

	legacy := v1.Group("/notion")
	{
		legacy.POST("/create/", s.handleCreate)
		legacy.GET("/list", s.handleList)
		legacy.GET("/findby/:id", s.handleGet)
		legacy.PUT("/update/:id", s.handleUpdate)
		legacy.PATCH("/update/:id", s.handleUpdate)
		legacy.DELETE("/delete/:id", s.handleDelete)
	}

	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		s.logger.Printf("API listening on %s", addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Println("API server stopped")
	return nil
}
