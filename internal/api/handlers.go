package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/robsonferreira/tasksync/internal/db"
	tasksync "github.com/robsonferreira/tasksync/internal/sync"
	"github.com/robsonferreira/tasksync/internal/task"
)

const maxListLimit = 500

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCreate(c *gin.Context) {
	var in task.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, fmt.Errorf("invalid request body: %w", err))
		return
	}

	t, err := s.svc.Create(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": t})
}

func (s *Server) handleList(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	tasks, err := s.svc.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleGet(c *gin.Context) {
	t, err := s.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": t})
}

func (s *Server) handleUpdate(c *gin.Context) {
	var in task.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, fmt.Errorf("invalid request body: %w", err))
		return
	}

	t, err := s.svc.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": t})
}

func (s *Server) handleDelete(c *gin.Context) {
	t, err := s.svc.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "task": t})
}

func (s *Server) handleDivergences(c *gin.Context) {
	entries, err := s.svc.Divergences(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if entries == nil {
		entries = []*db.Divergence{}
	}
	c.JSON(http.StatusOK, gin.H{"divergences": entries, "count": len(entries)})
}

func (s *Server) handleReconcile(c *gin.Context) {
	report, err := s.svc.Reconcile(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

func (s *Server) handleRebuildMirror(c *gin.Context) {
	rows, err := s.svc.RebuildMirror(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

// parseFilter reads status, priority, limit and offset query parameters.
// Status and priority accept canonical names or labels.
func parseFilter(c *gin.Context) (db.ListFilter, error) {
	var f db.ListFilter

	if v := c.Query("status"); v != "" {
		s, err := task.ParseStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = s
	}
	if v := c.Query("priority"); v != "" {
		p, err := task.ParsePriority(v)
		if err != nil {
			return f, err
		}
		f.Priority = p
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxListLimit {
			return f, fmt.Errorf("limit must be between 0 and %d", maxListLimit)
		}
		f.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("offset must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tasksync.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, tasksync.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": err.Error(),
		"kind":  tasksync.KindName(tasksync.ErrInvalidInput),
	})
}

// writeError renders a failure body. It never carries task data; divergent
// failures add the identity needed to reconcile by hand.
func writeError(c *gin.Context, err error) {
	body := gin.H{
		"error": err.Error(),
		"kind":  tasksync.KindName(tasksync.KindOf(err)),
	}

	var e *tasksync.Error
	if errors.As(err, &e) && e.Divergent() {
		body["divergence"] = gin.H{
			"task_id":          e.TaskID,
			"remote_page_id":   e.RemotePageID,
			"local_committed":  e.Kind == tasksync.ErrRemoteSyncFailed,
			"remote_committed": e.Kind == tasksync.ErrLocalWriteFailed || e.Kind == tasksync.ErrLocalDeleteFailed,
		}
	}

	c.JSON(statusFor(err), body)
}
