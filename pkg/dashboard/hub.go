// Package dashboard pushes live session and feed stats to browsers
// over websockets.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tauraamui/wormhole/pkg/log"
	"github.com/tauraamui/wormhole/pkg/stream"
)

const (
	DefaultInterval   = time.Second
	DefaultMaxClients = 16

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 4
)

type FeedStats struct {
	Name      string `json:"name"`
	Published uint64 `json:"published"`
	Seq       uint64 `json:"seq"`
}

type Snapshot struct {
	Timestamp time.Time     `json:"timestamp"`
	Sessions  []stream.Info `json:"sessions"`
	Feeds     []FeedStats   `json:"feeds"`
}

type Options struct {
	Interval   time.Duration
	MaxClients int
}

// Hub broadcasts a fresh snapshot to every connected client once per
// interval. Clients which fall behind are disconnected.
type Hub struct {
	snapshot   func() Snapshot
	interval   time.Duration
	maxClients int
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	pending int
}

type client struct {
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	doneOnce sync.Once
}

func (c *client) close() {
	c.doneOnce.Do(func() { close(c.done) })
}

func NewHub(snapshot func() Snapshot, opts Options) *Hub {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxClients <= 0 {
		opts.MaxClients = DefaultMaxClients
	}
	return &Hub{
		snapshot:   snapshot,
		interval:   opts.Interval,
		maxClients: opts.MaxClients,
		upgrader: websocket.Upgrader{
			CheckOrigin:     sameOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		clients: map[*client]struct{}{},
	}
}

func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if len(origin) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.reserve() {
		http.Error(w, "maximum dashboard clients reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.release()
		log.Debug("Dashboard websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	h.mu.Lock()
	h.pending--
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	defer h.remove(c)

	// the first snapshot goes out straight away
	if data, err := json.Marshal(h.snapshot()); err == nil {
		c.send <- data
	}

	conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("Dashboard websocket read error: %v", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		case <-c.done:
			conn.WriteControl( //nolint
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait),
			)
			return
		}
	}
}

// reserve claims a client slot ahead of the upgrade so concurrent
// upgrades cannot push the hub past its limit.
func (h *Hub) reserve() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients)+h.pending >= h.maxClients {
		return false
	}
	h.pending++
	return true
}

func (h *Hub) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending--
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Run broadcasts snapshots until ctx is done, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case <-ticker.C:
			h.broadcast()
		}
	}
}

func (h *Hub) broadcast() {
	h.mu.Lock()
	if len(h.clients) == 0 {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	data, err := json.Marshal(h.snapshot())
	if err != nil {
		log.Error("Unable to marshal dashboard snapshot: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Warn("Dropping slow dashboard client %s", c.conn.RemoteAddr())
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
