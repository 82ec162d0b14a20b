package dashboard

import (
	"log"
	"os"
	"sync"

	"github.com/robsonferreira/tasksync/internal/db"
	tasksync "github.com/robsonferreira/tasksync/internal/sync"
	"github.com/robsonferreira/tasksync/internal/task"
)

// TaskUpdateData contains task change information
type TaskUpdateData struct {
	TaskID       string `json:"task_id"`
	RemotePageID string `json:"remote_page_id,omitempty"`
	Action       string `json:"action"` // created, updated, deleted
	Title        string `json:"title,omitempty"`
	Status       string `json:"status,omitempty"`
	Priority     string `json:"priority,omitempty"`
}

// DivergenceData describes a store disagreement
type DivergenceData struct {
	Kind         string `json:"kind"`
	Op           string `json:"op"`
	TaskID       string `json:"task_id,omitempty"`
	RemotePageID string `json:"remote_page_id,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

// StatsData contains task counts
type StatsData struct {
	Total       int            `json:"total"`
	ByStatus    map[string]int `json:"by_status"`
	ByPriority  map[string]int `json:"by_priority"`
	Divergences int            `json:"divergences"`
}

// MirrorRebuiltData reports a mirror regeneration
type MirrorRebuiltData struct {
	Rows int `json:"rows"`
}

// Handler turns coordinator events into dashboard messages. It satisfies
// sync.Notifier.
type Handler struct {
	hub    *Hub
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

var _ tasksync.Notifier = (*Handler)(nil)

// NewHandler creates a handler broadcasting on hub. New clients receive
// the current stats as their first message.
func NewHandler(hub *Hub, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	h := &Handler{
		hub:    hub,
		logger: logger,
		stats:  newStats(),
	}
	hub.welcome = h.statsMessage
	return h
}

func newStats() StatsData {
	return StatsData{
		ByStatus:   make(map[string]int),
		ByPriority: make(map[string]int),
	}
}

// TaskCreated implements sync.Notifier.
func (h *Handler) TaskCreated(t *task.Task) {
	h.mu.Lock()
	h.stats.Total++
	h.stats.ByStatus[string(t.Status)]++
	h.stats.ByPriority[string(t.Priority)]++
	h.mu.Unlock()

	h.send(MessageTypeTaskUpdate, taskData(t, "created"))
	h.broadcastStats()
}

// TaskUpdated implements sync.Notifier.
func (h *Handler) TaskUpdated(before, after *task.Task) {
	h.mu.Lock()
	if before.Status != after.Status {
		h.stats.ByStatus[string(before.Status)]--
		h.stats.ByStatus[string(after.Status)]++
	}
	if before.Priority != after.Priority {
		h.stats.ByPriority[string(before.Priority)]--
		h.stats.ByPriority[string(after.Priority)]++
	}
	h.mu.Unlock()

	h.send(MessageTypeTaskUpdate, taskData(after, "updated"))
	h.broadcastStats()
}

// TaskDeleted implements sync.Notifier.
func (h *Handler) TaskDeleted(t *task.Task) {
	h.mu.Lock()
	h.stats.Total--
	h.stats.ByStatus[string(t.Status)]--
	h.stats.ByPriority[string(t.Priority)]--
	h.mu.Unlock()

	h.send(MessageTypeTaskUpdate, TaskUpdateData{
		TaskID:       t.ID,
		RemotePageID: t.RemotePageID,
		Action:       "deleted",
	})
	h.broadcastStats()
}

// Divergence implements sync.Notifier.
func (h *Handler) Divergence(e *tasksync.Error) {
	h.mu.Lock()
	h.stats.Divergences++
	h.mu.Unlock()

	data := DivergenceData{
		Kind:         tasksync.KindName(e.Kind),
		Op:           string(e.Op),
		TaskID:       e.TaskID,
		RemotePageID: e.RemotePageID,
	}
	if e.Err != nil {
		data.Detail = e.Err.Error()
	}
	h.send(MessageTypeDivergence, data)
	h.broadcastStats()
}

// DivergenceResolved implements sync.Notifier.
func (h *Handler) DivergenceResolved(d *db.Divergence) {
	h.mu.Lock()
	if h.stats.Divergences > 0 {
		h.stats.Divergences--
	}
	h.mu.Unlock()

	h.send(MessageTypeDivergenceResolved, DivergenceData{
		Kind:         d.Kind,
		Op:           d.Op,
		TaskID:       d.TaskID,
		RemotePageID: d.RemotePageID,
		Detail:       d.Detail,
	})
	h.broadcastStats()
}

// MirrorRebuilt reports a mirror regeneration.
func (h *Handler) MirrorRebuilt(rows int) {
	h.send(MessageTypeMirrorRebuilt, MirrorRebuiltData{Rows: rows})
}

// Reset recomputes stats from a full task list and the open divergence
// count, then broadcasts them.
func (h *Handler) Reset(tasks []*task.Task, divergences int) {
	stats := newStats()
	stats.Total = len(tasks)
	stats.Divergences = divergences
	for _, t := range tasks {
		stats.ByStatus[string(t.Status)]++
		stats.ByPriority[string(t.Priority)]++
	}

	h.mu.Lock()
	h.stats = stats
	h.mu.Unlock()

	h.broadcastStats()
}

// Stats returns a copy of the current counts.
func (h *Handler) Stats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return copyStats(h.stats)
}

func copyStats(s StatsData) StatsData {
	out := newStats()
	out.Total = s.Total
	out.Divergences = s.Divergences
	for k, v := range s.ByStatus {
		out.ByStatus[k] = v
	}
	for k, v := range s.ByPriority {
		out.ByPriority[k] = v
	}
	return out
}

func (h *Handler) statsMessage() (Message, error) {
	return NewMessage(MessageTypeStats, h.Stats())
}

func (h *Handler) broadcastStats() {
	msg, err := h.statsMessage()
	if err != nil {
		h.logger.Printf("Failed to build stats message: %v", err)
		return
	}
	h.hub.Broadcast(msg)
}

func (h *Handler) send(typ MessageType, data interface{}) {
	msg, err := NewMessage(typ, data)
	if err != nil {
		h.logger.Printf("Failed to build message: %v", err)
		return
	}
	h.hub.Broadcast(msg)
}

func taskData(t *task.Task, action string) TaskUpdateData {
	return TaskUpdateData{
		TaskID:       t.ID,
		RemotePageID: t.RemotePageID,
		Action:       action,
		Title:        t.Title,
		Status:       string(t.Status),
		Priority:     string(t.Priority),
	}
}
