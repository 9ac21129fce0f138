// Package websocket implements the live-reload hub: browsers connect to /ws
// and receive a message whenever the frontend build output changes.
//
// Every connection is served from its own handler goroutine, which owns the
// connection's writes. The manager only keeps the set of send queues.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/darkone23/langnet-web/internal/logging"
)

const (
	sendBuffer   = 16
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// MessageReload tells the browser to reload the page.
const MessageReload = "reload"

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Manager tracks live-reload clients and fans out broadcasts.
type Manager struct {
	logger         logging.Logger
	originPatterns []string

	mu         sync.RWMutex
	clients    map[*client]struct{}
	isShutdown bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager. originPatterns are passed to the websocket
// handshake; with none, only same-host origins are accepted.
func NewManager(logger logging.Logger, originPatterns ...string) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		logger:         logger.WithComponent("websocket"),
		originPatterns: originPatterns,
		clients:        make(map[*client]struct{}),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// HandleWebSocket upgrades the request and serves the connection until the
// browser goes away or the manager shuts down.
func (m *Manager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	if m.isShutdown {
		m.mu.Unlock()
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  m.originPatterns,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		m.logger.Warn(r.Context(), err, "websocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	m.register(c)
	defer m.unregister(c)

	m.logger.Debug(r.Context(), "websocket client connected", "clients", m.ClientCount())

	// Browsers never send anything; CloseRead handles control frames and
	// reports when the peer disconnects.
	ctx := conn.CloseRead(context.Background())
	m.serve(ctx, c)
}

func (m *Manager) serve(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			_ = c.conn.Close(websocket.StatusGoingAway, "server shutdown")
			return

		case <-ctx.Done():
			_ = c.conn.CloseNow()
			return

		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				m.logger.Debug(ctx, "websocket write failed", "error", err.Error())
				_ = c.conn.CloseNow()
				return
			}

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				_ = c.conn.CloseNow()
				return
			}
		}
	}
}

func (m *Manager) register(c *client) {
	m.mu.Lock()
	m.clients[c] = struct{}{}
	m.mu.Unlock()
}

func (m *Manager) unregister(c *client) {
	m.mu.Lock()
	delete(m.clients, c)
	m.mu.Unlock()
}

// Broadcast queues message for every connected client. A client whose
// queue is full misses this message.
func (m *Manager) Broadcast(message UpdateMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.isShutdown {
		return errors.New("websocket manager is shut down")
	}
	for c := range m.clients {
		select {
		case c.send <- data:
		default:
			m.logger.Debug(context.Background(), "dropping message for slow client")
		}
	}
	return nil
}

// Reload broadcasts a reload message naming the changed path.
func (m *Manager) Reload(path string) error {
	return m.Broadcast(UpdateMessage{Type: MessageReload, Path: path})
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Shutdown closes every connection and waits for their handlers to return,
// or for ctx to end. Safe to call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.isShutdown = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsShutdown reports whether Shutdown has been called.
func (m *Manager) IsShutdown() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isShutdown
}
