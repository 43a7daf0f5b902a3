package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/steermux/steermux/server/internal/merge"
	"github.com/steermux/steermux/server/internal/metrics"
	"github.com/steermux/steermux/server/internal/registry"
)

const (
	// writeTimeout is the deadline for a single write to a producer.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait without any inbound traffic before
	// treating the connection as dead. Data frames count as traffic.
	pongWait = 60 * time.Second

	// pingPeriod controls how often ping frames are sent. Must be less
	// than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxFrameSize bounds one inbound steering frame. Real frames are a
	// few dozen bytes.
	maxFrameSize = 512

	// sendBufSize is the per-connection outgoing echo buffer depth.
	sendBufSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Producers connect from phones and local scripts — apply origin
	// policy at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Record describes one open producer connection. SourceID is empty until the
// connection sends its first valid frame.
type Record struct {
	ID       string    `json:"connection_id"`
	SourceID string    `json:"source_id,omitempty"`
	OpenedAt time.Time `json:"opened_at"`
}

// frame is the inbound wire shape. Pointer fields distinguish a missing key
// from a zero value, so {"source":"x"} without steering is rejected.
type frame struct {
	Source   *string  `json:"source"`
	Steering *float64 `json:"steering"`
}

// echoMessage is the optional merged-value reply sent after each accepted frame.
type echoMessage struct {
	Event    string  `json:"event"`
	Steering float64 `json:"steering"`
}

// Manager accepts producer connections and dispatches their frames to the
// registry. It owns the per-connection records; it only ever touches registry
// entries through Upsert and MarkDisconnected.
type Manager struct {
	reg       *registry.Registry
	weights   *merge.Table
	collector *metrics.Collector
	maxConns  int
	echo      bool

	nextID atomic.Uint64

	mu    sync.RWMutex
	conns map[*producerConn]struct{}
}

type producerConn struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	openedAt time.Time

	mu       sync.Mutex
	sourceID string // bound from the first valid frame
}

// New creates a Manager. maxConns <= 0 means unlimited. When echo is true the
// merged steering value is written back to the producer after every accepted
// frame.
func New(reg *registry.Registry, weights *merge.Table, collector *metrics.Collector, maxConns int, echo bool) *Manager {
	return &Manager{
		reg:       reg,
		weights:   weights,
		collector: collector,
		maxConns:  maxConns,
		echo:      echo,
		conns:     make(map[*producerConn]struct{}),
	}
}

// ServeHTTP upgrades the request to a WebSocket producer connection and runs
// its receive loop. Blocks until the connection closes.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &producerConn{
		id:       fmt.Sprintf("conn-%d", m.nextID.Add(1)),
		conn:     conn,
		send:     make(chan []byte, sendBufSize),
		openedAt: time.Now(),
	}

	if !m.register(c) {
		slog.Warn("ingest: producer rejected, connection limit reached",
			"limit", m.maxConns, "remote", r.RemoteAddr)
		deadline := time.Now().Add(writeTimeout)
		conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "producer limit reached"),
			deadline)
		conn.Close()
		return
	}

	slog.Info("ingest: producer connected", "conn", c.id, "remote", r.RemoteAddr)

	go c.writePump()
	m.readLoop(c) // blocks until the connection closes
	m.unregister(c)

	if src := c.source(); src != "" {
		m.reg.MarkDisconnected(src)
	}
	slog.Info("ingest: producer disconnected", "conn", c.id, "source", c.source())
}

// Count returns the number of open producer connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Records returns a copy of all open connection records, oldest first.
func (m *Manager) Records() []Record {
	m.mu.RLock()
	out := make([]Record, 0, len(m.conns))
	for c := range m.conns {
		out = append(out, Record{ID: c.id, SourceID: c.source(), OpenedAt: c.openedAt})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// --- internal ---------------------------------------------------------------

func (m *Manager) register(c *producerConn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.maxConns > 0 && len(m.conns) >= m.maxConns {
		return false
	}
	m.conns[c] = struct{}{}
	return true
}

func (m *Manager) unregister(c *producerConn) {
	m.mu.Lock()
	if _, ok := m.conns[c]; ok {
		delete(m.conns, c)
		close(c.send)
	}
	m.mu.Unlock()
}

// readLoop consumes frames from one producer until the connection closes.
// Validation failures drop the frame, log, and continue.
func (m *Manager) readLoop(c *producerConn) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			m.reject(c, "invalid json", data)
			continue
		}
		if f.Source == nil || *f.Source == "" {
			m.reject(c, "missing source", data)
			continue
		}
		if f.Steering == nil {
			m.reject(c, "missing steering", data)
			continue
		}

		if !m.reg.Upsert(*f.Source, *f.Steering) {
			m.reject(c, "non-finite steering", data)
			continue
		}
		c.bind(*f.Source)
		m.collector.SampleAccepted()
		slog.Debug("ingest: sample applied", "conn", c.id, "source", *f.Source, "steering", *f.Steering)

		if m.echo {
			m.enqueueEcho(c)
		}
	}
}

func (m *Manager) reject(c *producerConn, reason string, data []byte) {
	m.collector.SampleRejected()
	if len(data) > 100 {
		data = data[:100]
	}
	slog.Warn("ingest: frame dropped", "conn", c.id, "reason", reason, "raw", string(data))
}

// enqueueEcho computes the merged value from the live snapshot and queues it
// on the connection's send channel. A full buffer drops the echo, never the
// connection — producers only need a recent value, not every one.
func (m *Manager) enqueueEcho(c *producerConn) {
	res := merge.Merge(m.reg.Snapshot(), m.weights.Current(), time.Now())
	data, err := json.Marshal(echoMessage{Event: "merged", Steering: res.Value})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *producerConn) bind(sourceID string) {
	c.mu.Lock()
	if c.sourceID == "" {
		c.sourceID = sourceID
	}
	c.mu.Unlock()
}

func (c *producerConn) source() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sourceID
}

// writePump drains the connection's send channel and sends periodic ping
// frames. Runs in its own goroutine per connection; it is the only writer.
func (c *producerConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if !ok {
				// Channel was closed (connection removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
