// Package transport provides the per-market WebSocket connection: dial,
// read loop, rate-limited write path, and disconnect notification. It is a
// generalized, multi-venue descendant of a production single-venue
// WebSocket client — the five-state session machine lives one layer up in
// internal/session; this package only knows connected/disconnected.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/marketfeed/l2ingest/internal/apm"
	"github.com/marketfeed/l2ingest/internal/apperror"
	"github.com/marketfeed/l2ingest/internal/circuitbreaker"
	"github.com/marketfeed/l2ingest/internal/ratelimit"
)

const (
	tracerName = "github.com/marketfeed/l2ingest/internal/transport"
	meterName  = "github.com/marketfeed/l2ingest/internal/transport"
)

// Config holds per-market transport configuration.
type Config struct {
	URL                string
	Name               string // used as the metrics/tracing/breaker identifier
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	BufferSize         int
	MaxMessageSize     int64
	OutboundPerMinute  int // rate limit applied to Send; 0 disables limiting
}

// DefaultConfig returns sensible per-market defaults.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:               url,
		Name:              name,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		BufferSize:        256,
		MaxMessageSize:    10 * 1024 * 1024,
		OutboundPerMinute: 120,
	}
}

type metrics struct {
	messagesReceived metric.Int64Counter
	messagesSent     metric.Int64Counter
	bytesReceived    metric.Int64Counter
	bytesSent        metric.Int64Counter
	droppedMessages  metric.Int64Counter
}

// Client is a single-dial-attempt-at-a-time WebSocket connection, guarded by
// a circuit breaker and an outbound rate limiter.
type Client struct {
	config Config

	connMu sync.RWMutex
	conn   *websocket.Conn

	messages chan []byte
	done     chan struct{}
	doneOnce sync.Once
	closed   atomic.Bool

	tracer  apm.Tracer
	metrics *metrics
	cb      *circuitbreaker.CircuitBreaker[*websocket.Conn]
	limiter *ratelimit.Limiter
}

// New creates a Client. It does not dial — call Connect.
func New(cfg Config) (*Client, error) {
	c := &Client{
		config:   cfg,
		messages: make(chan []byte, cfg.BufferSize),
		done:     make(chan struct{}),
		tracer:   apm.NewTracer(tracerName),
		cb:       circuitbreaker.New[*websocket.Conn](circuitbreaker.DefaultConfig(cfg.Name)),
	}
	if cfg.OutboundPerMinute > 0 {
		c.limiter = ratelimit.New(cfg.OutboundPerMinute)
	}
	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("transport: init metrics: %w", err)
	}
	return c, nil
}

func (c *Client) initMetrics() error {
	meter := otel.Meter(meterName)
	m := &metrics{}
	var err error

	if m.messagesReceived, err = meter.Int64Counter("transport_messages_received_total",
		metric.WithDescription("Total inbound WebSocket messages")); err != nil {
		return err
	}
	if m.messagesSent, err = meter.Int64Counter("transport_messages_sent_total",
		metric.WithDescription("Total outbound WebSocket messages")); err != nil {
		return err
	}
	if m.bytesReceived, err = meter.Int64Counter("transport_bytes_received_total",
		metric.WithDescription("Total bytes received")); err != nil {
		return err
	}
	if m.bytesSent, err = meter.Int64Counter("transport_bytes_sent_total",
		metric.WithDescription("Total bytes sent")); err != nil {
		return err
	}
	if m.droppedMessages, err = meter.Int64Counter("transport_messages_dropped_total",
		metric.WithDescription("Inbound messages dropped due to full buffer")); err != nil {
		return err
	}
	c.metrics = m
	return nil
}

// Connect performs a single dial attempt through the circuit breaker. The
// caller (the session's Connecting state) owns retry/backoff.
func (c *Client) Connect(ctx context.Context) error {
	ctx, span := c.tracer.StartSpanFromContext(ctx, "transport.connect",
		trace.WithAttributes(attribute.String("transport.name", c.config.Name)),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	conn, err := c.cb.Execute(func() (*websocket.Conn, error) {
		conn, _, err := websocket.Dial(ctx, c.config.URL, &websocket.DialOptions{
			CompressionMode: websocket.CompressionContextTakeover,
		})
		return conn, err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		if err.Error() == "circuit breaker is open" {
			return apperror.TransportError(apperror.CodeTransportCircuitOpen, c.config.Name, err)
		}
		return apperror.TransportError(apperror.CodeTransportDialFailed, c.config.Name, err)
	}

	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}

	c.connMu.Lock()
	c.conn = conn
	c.done = make(chan struct{})
	c.connMu.Unlock()

	go c.readLoop(context.Background())

	span.SetStatus(codes.Ok, "connected")
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	attrs := metric.WithAttributes(attribute.String("transport.name", c.config.Name))

	c.connMu.RLock()
	conn := c.conn
	done := c.done
	c.connMu.RUnlock()

	if conn == nil {
		return
	}

	for {
		readCtx := ctx
		var cancel context.CancelFunc
		if c.config.ReadTimeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, c.config.ReadTimeout)
		}

		msgType, data, err := conn.Read(readCtx)
		if cancel != nil {
			cancel()
		}

		if err != nil {
			c.signalDone(done)
			return
		}

		if msgType != websocket.MessageText && msgType != websocket.MessageBinary {
			continue
		}

		c.metrics.messagesReceived.Add(ctx, 1, attrs)
		c.metrics.bytesReceived.Add(ctx, int64(len(data)), attrs)

		select {
		case c.messages <- data:
		default:
			c.metrics.droppedMessages.Add(ctx, 1, attrs)
		}
	}
}

func (c *Client) signalDone(done chan struct{}) {
	c.doneOnce.Do(func() { close(done) })
}

// Send marshals payload to JSON and writes it as a text frame, waiting on
// the outbound rate limiter first.
func (c *Client) Send(ctx context.Context, payload any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return apperror.TransportError(apperror.CodeTransportWriteFailed, c.config.Name, err)
		}
	}

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return apperror.TransportError(apperror.CodeTransportClosed, c.config.Name, errors.New("not connected"))
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("transport: marshal outbound frame: %w", err)
	}

	writeCtx := ctx
	if c.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, c.config.WriteTimeout)
		defer cancel()
	}

	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return apperror.TransportError(apperror.CodeTransportWriteFailed, c.config.Name, err)
	}

	attrs := metric.WithAttributes(attribute.String("transport.name", c.config.Name))
	c.metrics.messagesSent.Add(ctx, 1, attrs)
	c.metrics.bytesSent.Add(ctx, int64(len(data)), attrs)
	return nil
}

// Messages returns the channel of inbound frame payloads.
func (c *Client) Messages() <-chan []byte {
	return c.messages
}

// Done returns a channel closed when this connection has disconnected
// (read error, close frame, or timeout). A fresh channel is created on each
// successful Connect.
func (c *Client) Done() <-chan struct{} {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.done
}

// Close closes the underlying connection, if any.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	return nil
}
