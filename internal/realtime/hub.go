// Package realtime relays chat frames between websocket clients.
//
// The Hub is a single process-wide room. Every connected client is a
// subscriber; a frame published by any client is fanned out to all current
// subscribers, sender included. Nothing is stored, filtered or rate limited.
package realtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Hub owns the subscriber set. Only the Run goroutine touches the set; the
// exported methods talk to it over channels.
type Hub struct {
	subscribe   chan *Client
	unsubscribe chan *Client
	publish     chan []byte

	clients map[*Client]struct{}
	count   atomic.Int64

	logger *slog.Logger

	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// pumps tracks per-client goroutines so Shutdown can wait for them.
	pumps   sync.WaitGroup
	mu      sync.Mutex
	closing bool
}

// NewHub creates a Hub. Call Run before subscribing clients.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subscribe:   make(chan *Client),
		unsubscribe: make(chan *Client),
		publish:     make(chan []byte),
		clients:     make(map[*Client]struct{}),
		logger:      logger,
		quit:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

// Run processes subscriptions and publications until ctx is cancelled or
// Shutdown is called. On exit every subscriber's send channel is closed and
// its connection torn down.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-h.quit:
			h.closeAll()
			return

		case c := <-h.subscribe:
			h.clients[c] = struct{}{}
			n := h.count.Add(1)
			h.logger.Info("client subscribed", slog.String("addr", c.addr), slog.Int64("clients", n))

		case c := <-h.unsubscribe:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
				h.logger.Info("client unsubscribed", slog.String("addr", c.addr), slog.Int64("clients", h.count.Load()))
			}

		case frame := <-h.publish:
			h.fanOut(frame)
		}
	}
}

// fanOut queues frame on every subscriber. A subscriber whose buffer is
// full is dropped rather than waited for.
func (h *Hub) fanOut(frame []byte) {
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.remove(c)
			h.logger.Warn("client dropped: send buffer full", slog.String("addr", c.addr))
		}
	}
}

func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Add(-1)
}

func (h *Hub) closeAll() {
	for c := range h.clients {
		h.remove(c)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Subscribe adds c to the room. It returns false once the hub has stopped.
func (h *Hub) Subscribe(c *Client) bool {
	select {
	case h.subscribe <- c:
		return true
	case <-h.stopped:
		return false
	}
}

// Unsubscribe removes c from the room and closes its send channel. Removing
// a client that is not subscribed is a no-op.
func (h *Hub) Unsubscribe(c *Client) {
	select {
	case h.unsubscribe <- c:
	case <-h.stopped:
	}
}

// Publish fans frame out to every current subscriber. It is dropped once
// the hub has stopped.
func (h *Hub) Publish(frame []byte) {
	select {
	case h.publish <- frame:
	case <-h.stopped:
	}
}

// ClientCount returns the number of current subscribers.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// spawn runs f as a tracked pump goroutine. It refuses once Shutdown began.
func (h *Hub) spawn(f func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.pumps.Add(1)
	go func() {
		defer h.pumps.Done()
		f()
	}()
	return true
}

// Shutdown stops Run, closes all client connections and waits up to timeout
// for the client pumps to exit.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	h.once.Do(func() { close(h.quit) })
	<-h.stopped

	done := make(chan struct{})
	go func() {
		h.pumps.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("realtime hub stopped")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("realtime hub shutdown timed out; some client pumps still running")
		return context.DeadlineExceeded
	}
}
