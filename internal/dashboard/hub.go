// Package dashboard broadcasts task events to WebSocket clients.
//
// The Hub owns the client set and a buffered broadcast queue. The Handler
// implements the coordinator's Notifier and turns task events into
// messages. The Hub does not listen on its own; mount it on the API
// router at /ws.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeTaskUpdate indicates a task was created, updated, or deleted
	MessageTypeTaskUpdate MessageType = "task_update"

	// MessageTypeDivergence indicates the stores disagree after a failure
	MessageTypeDivergence MessageType = "divergence"

	// MessageTypeDivergenceResolved indicates reconcile closed a divergence
	MessageTypeDivergenceResolved MessageType = "divergence_resolved"

	// MessageTypeStats carries task counts
	MessageTypeStats MessageType = "stats"

	// MessageTypeMirrorRebuilt indicates the spreadsheet was regenerated
	MessageTypeMirrorRebuilt MessageType = "mirror_rebuilt"
)

// Message is one dashboard broadcast.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage marshals data into a message of the given type.
func NewMessage(typ MessageType, data interface{}) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %s data: %w", typ, err)
	}
	return Message{Type: typ, Timestamp: time.Now().UTC(), Data: raw}, nil
}

const (
	defaultBufferSize = 100
	writeTimeout      = 5 * time.Second
)

// Config holds hub configuration
type Config struct {
	// OriginPatterns accepted for cross-origin WebSocket upgrades
	OriginPatterns []string

	// BufferSize of the broadcast queue (default: 100)
	BufferSize int

	// Logger for hub activity (default: stderr logger)
	Logger *log.Logger
}

// Hub manages WebSocket connections and fans out messages.
type Hub struct {
	origins []string

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	// welcome builds the first message sent to a new client
	welcome func() (Message, error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	logger *log.Logger
}

// NewHub creates a hub. Call Start before broadcasting.
func NewHub(cfg Config) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		origins:   cfg.OriginPatterns,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, cfg.BufferSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    cfg.Logger,
	}
}

// Start runs the broadcast loop.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.broadcastLoop()
}

// Stop disconnects every client and waits for the broadcast loop to exit.
// Safe to call more than once.
func (h *Hub) Stop() {
	h.once.Do(func() {
		h.cancel()

		h.clientsMu.Lock()
		for conn := range h.clients {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			delete(h.clients, conn)
		}
		h.clientsMu.Unlock()

		h.wg.Wait()
		h.logger.Println("Dashboard hub stopped")
	})
}

// Broadcast queues msg for every client. It never blocks; when the queue
// is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case <-h.ctx.Done():
		return
	default:
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Printf("WARNING: broadcast queue full, dropping %s message", msg.Type)
	}
}

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg := <-h.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now().UTC()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			h.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				clients = append(clients, conn)
			}
			h.clientsMu.RUnlock()

			for _, conn := range clients {
				if err := h.write(conn, data); err != nil {
					h.logger.Printf("Failed to send to client: %v", err)
					h.removeClient(conn)
				}
			}
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// ServeHTTP upgrades the request to a WebSocket and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.clientsMu.Unlock()
	h.logger.Printf("Client connected (total: %d)", count)

	if h.welcome != nil {
		msg, err := h.welcome()
		if err == nil {
			data, _ := json.Marshal(msg)
			_ = h.write(conn, data)
		}
	}

	// Clients only listen; reading detects disconnects.
	go h.readLoop(conn)
}

func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)

	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, ok := h.clients[conn]; !ok {
		h.clientsMu.Unlock()
		return
	}
	delete(h.clients, conn)
	count := len(h.clients)
	h.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	h.logger.Printf("Client disconnected (total: %d)", count)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
