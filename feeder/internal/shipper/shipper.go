package shipper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/steermux/steermux/feeder/internal/config"
	"github.com/steermux/steermux/pkg/steering"
)

const (
	backoffInitial = 1 * time.Second
	backoffMax     = 60 * time.Second
	writeTimeout   = 10 * time.Second
)

// Shipper buffers steering values and ships them to the server's ingest
// endpoint. Ship() is non-blocking; when the buffer is full the oldest value
// is evicted. Run() must be called in a goroutine to drain the buffer and
// handle reconnection.
type Shipper struct {
	cfg    config.FeederConfig
	buf    chan float64
	dialFn dialFunc // injectable for tests
}

// dialFunc opens the WebSocket connection to the server.
type dialFunc func(ctx context.Context, url string) (*websocket.Conn, error)

// New creates a Shipper using the given feeder config.
func New(cfg config.FeederConfig) *Shipper {
	return &Shipper{
		cfg:    cfg,
		buf:    make(chan float64, cfg.BufferSize),
		dialFn: defaultDial,
	}
}

// Ship enqueues one steering value. When the buffer is full the oldest value
// is dropped — the server only cares about the most recent sample per source.
func (s *Shipper) Ship(v float64) {
	for {
		select {
		case s.buf <- v:
			return
		default:
		}
		select {
		case <-s.buf:
		default:
		}
	}
}

// Run connects to the server and drains the buffer until ctx is cancelled,
// reconnecting with exponential backoff on any connection failure.
func (s *Shipper) Run(ctx context.Context) {
	var bo backoff

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialFn(ctx, s.cfg.ServerURL)
		if err != nil {
			wait := bo.next()
			slog.Warn("shipper: dial failed, will retry",
				"url", s.cfg.ServerURL, "err", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		slog.Info("shipper: connected", "url", s.cfg.ServerURL, "source", s.cfg.Source)
		bo.reset()

		err = s.drain(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("shipper: connection lost, will reconnect",
			"url", s.cfg.ServerURL, "err", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// drain sends buffered values as JSON frames until the connection fails or
// ctx is cancelled.
func (s *Shipper) drain(ctx context.Context, conn *websocket.Conn) error {
	// Consume inbound frames so server pings are answered and optional
	// merged-value echoes don't back up the connection.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-readDone:
			return fmt.Errorf("read side closed")

		case v := <-s.buf:
			frame, err := json.Marshal(steering.Sample{Source: s.cfg.Source, Steering: v})
			if err != nil {
				return fmt.Errorf("marshal frame: %w", err)
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				// Put the value back if there's room; the next cycle's
				// data supersedes it anyway.
				select {
				case s.buf <- v:
				default:
				}
				return fmt.Errorf("send: %w", err)
			}
			slog.Debug("shipper: sample delivered", "source", s.cfg.Source, "steering", v)
		}
	}
}

// defaultDial opens a WebSocket connection to url.
func defaultDial(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	return conn, err
}

// backoff implements capped exponential retry delays.
type backoff struct {
	wait time.Duration
}

func (b *backoff) next() time.Duration {
	if b.wait == 0 {
		b.wait = backoffInitial
	} else {
		b.wait *= 2
		if b.wait > backoffMax {
			b.wait = backoffMax
		}
	}
	return b.wait
}

func (b *backoff) reset() {
	b.wait = 0
}
