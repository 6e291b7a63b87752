package signal

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var errClientClosed = errors.New("client connection closed")

// Client is one authenticated connection. Writes are serialized so that
// broadcasts and direct replies never interleave frames.
type Client struct {
	ID          string
	ConnectedAt time.Time

	conn         *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
	open         atomic.Bool
	limiter      *rate.Limiter
}

func newClient(id string, conn *websocket.Conn, writeTimeout time.Duration, limiter *rate.Limiter) *Client {
	c := &Client{
		ID:           id,
		ConnectedAt:  time.Now(),
		conn:         conn,
		writeTimeout: writeTimeout,
		limiter:      limiter,
	}
	c.open.Store(true)
	return c
}

func (c *Client) IsOpen() bool {
	return c.open.Load()
}

// allow reports whether an inbound message fits the client's rate budget.
func (c *Client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

func (c *Client) SendJSON(msg OutboundMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.writeJSONLocked(msg)
}

// writeJSONLocked writes msg; the caller holds writeMu.
func (c *Client) writeJSONLocked(msg OutboundMessage) error {
	if !c.IsOpen() {
		return errClientClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *Client) sendPrepared(pm *websocket.PreparedMessage) error {
	if !c.IsOpen() {
		return errClientClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WritePreparedMessage(pm)
}

func (c *Client) ping() error {
	if !c.IsOpen() {
		return errClientClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Close sends a close frame with code and reason and releases the connection.
// Only the first call has any effect.
func (c *Client) Close(code int, reason string) {
	if !c.open.CompareAndSwap(true, false) {
		return
	}
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(c.writeTimeout))
	c.writeMu.Unlock()
	c.conn.Close()
}

// Registry is the set of currently registered clients.
type Registry struct {
	clients map[string]*Client
	mu      sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID] = c
}

// Remove drops the client and reports whether it was registered.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		return false
	}
	delete(r.clients, id)
	return true
}

func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Snapshot returns the registered clients at this instant. Callers iterate the
// copy without holding the registry lock.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *Registry) CloseAll(code int, reason string) {
	for _, c := range r.Snapshot() {
		c.Close(code, reason)
		r.Remove(c.ID)
	}
}
