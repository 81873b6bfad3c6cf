package stream

import (
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 200 * time.Millisecond
	// queueSize bounds the messages waiting for the writer goroutine.
	queueSize    = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans text messages out to connected websocket clients. Broadcast only
// enqueues; a single writer goroutine owns every data write. Clients whose
// write fails are dropped.
type Hub struct {
	mu      sync.Mutex
	conns   map[*websocket.Conn]bool
	logger  *slog.Logger
	queue   chan []byte
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := &Hub{
		conns:  make(map[*websocket.Conn]bool),
		logger: logger,
		queue:  make(chan []byte, queueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go h.writeLoop()
	return h
}

func (h *Hub) add(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = true
	h.mu.Unlock()
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func (h *Hub) snapshot() []*websocket.Conn {
	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	return clients
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Dropped counts messages discarded because the queue was full or the hub
// was closed.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Broadcast queues b for delivery as a text frame to every client. It never
// blocks; when the queue is full the message is dropped.
func (h *Hub) Broadcast(b []byte) {
	select {
	case <-h.quit:
		h.dropped.Add(1)
		return
	default:
	}
	select {
	case h.queue <- b:
	default:
		h.dropped.Add(1)
		h.logger.Debug("websocket queue full, message dropped", "size", len(b))
	}
}

func (h *Hub) writeLoop() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			return
		case b := <-h.queue:
			h.write(b)
		}
	}
}

func (h *Hub) write(b []byte) {
	for _, c := range h.snapshot() {
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			_ = c.Close()
			h.remove(c)
			h.logger.Debug("websocket client dropped", "remote", c.RemoteAddr().String(), "error", err)
		}
	}
}

// ServeHTTP upgrades the request and holds the connection until the client
// goes away. Inbound messages are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.add(conn)
	defer func() {
		h.remove(conn)
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Close stops the writer and disconnects every client. Queued messages are
// discarded. It is safe to call more than once.
func (h *Hub) Close() {
	h.once.Do(func() {
		close(h.quit)
		<-h.done
		for _, c := range h.snapshot() {
			_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
			_ = c.Close()
			h.remove(c)
		}
	})
}
