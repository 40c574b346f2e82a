// Package session implements the per-market state machine: it owns the
// transport, drives the translator, and mutates the order book. One
// Session[S] runs per configured market, where S is that venue's
// translation-state type.
package session

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/marketfeed/l2ingest/internal/apm"
	"github.com/marketfeed/l2ingest/internal/apperror"
	"github.com/marketfeed/l2ingest/internal/logger"
	"github.com/marketfeed/l2ingest/internal/market"
	"github.com/marketfeed/l2ingest/internal/orderbook"
	"github.com/marketfeed/l2ingest/internal/sink"
	"github.com/marketfeed/l2ingest/internal/transport"
	"github.com/marketfeed/l2ingest/internal/translator"
)

const (
	tracerName = "github.com/marketfeed/l2ingest/internal/session"
	meterName  = "github.com/marketfeed/l2ingest/internal/session"
)

// State is one of the five session lifecycle states.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateSubscribing  State = "subscribing"
	StateStreaming    State = "streaming"
	StateTerminal     State = "terminal"
)

// Runnable is the non-generic lifecycle interface the supervisor holds one
// of per market, regardless of that market's venue-specific state type S.
type Runnable interface {
	Run(ctx context.Context) error
	Tag() string
	Book() *orderbook.Book
}

// Config controls reconnect backoff, independent of venue. Ping behavior
// comes from the market descriptor.
type Config struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns a 1s-to-32s exponential backoff, per spec.
func DefaultConfig() Config {
	return Config{InitialBackoff: time.Second, MaxBackoff: 32 * time.Second}
}

// Session drives one market end-to-end: transport, translator, order book.
type Session[S any] struct {
	descriptor market.Descriptor
	cfg        Config
	tr         translator.Translator[S]
	state      S

	bookMu    sync.RWMutex
	book      *orderbook.Book
	bookSink  sink.BookSink
	tradeSink sink.TradeSink
	log       logger.LoggerInterface

	newTransport func() (*transport.Client, error)
	tp           *transport.Client

	lifecycle State

	tracer  apm.Tracer
	metrics *sessionMetrics
}

type sessionMetrics struct {
	stateGauge     metric.Int64Gauge
	reconnects     metric.Int64Counter
	decodeErrors   metric.Int64Counter
	translateCalls metric.Int64Counter
}

// New creates a Session for descriptor, backed by tr and writing to the
// given sinks. newTransport builds a fresh transport.Client on every
// (re)connect attempt — a fresh instance per attempt keeps the circuit
// breaker and buffered channel from carrying stale state across reconnects.
func New[S any](
	desc market.Descriptor,
	cfg Config,
	tr translator.Translator[S],
	bookSink sink.BookSink,
	tradeSink sink.TradeSink,
	log logger.LoggerInterface,
	newTransport func() (*transport.Client, error),
) (*Session[S], error) {
	m, err := newSessionMetrics()
	if err != nil {
		return nil, err
	}

	return &Session[S]{
		descriptor:   desc,
		cfg:          cfg,
		tr:           tr,
		book:         orderbook.New(),
		bookSink:     bookSink,
		tradeSink:    tradeSink,
		log:          log.With("market", desc.Tag()),
		newTransport: newTransport,
		lifecycle:    StateDisconnected,
		tracer:       apm.NewTracer(tracerName),
		metrics:      m,
	}, nil
}

func newSessionMetrics() (*sessionMetrics, error) {
	meter := otel.Meter(meterName)
	m := &sessionMetrics{}
	var err error

	if m.stateGauge, err = meter.Int64Gauge("session_state",
		metric.WithDescription("Session lifecycle state (0=disconnected,1=connecting,2=subscribing,3=streaming,4=terminal)")); err != nil {
		return nil, err
	}
	if m.reconnects, err = meter.Int64Counter("session_reconnects_total",
		metric.WithDescription("Total reconnect attempts")); err != nil {
		return nil, err
	}
	if m.decodeErrors, err = meter.Int64Counter("session_decode_errors_total",
		metric.WithDescription("Total decode errors")); err != nil {
		return nil, err
	}
	if m.translateCalls, err = meter.Int64Counter("session_translate_calls_total",
		metric.WithDescription("Total translate() invocations")); err != nil {
		return nil, err
	}
	return m, nil
}

// Tag returns the market's canonical downstream tag.
func (s *Session[S]) Tag() string { return s.descriptor.Tag() }

// Book returns the session's order book mirror. Safe for concurrent reads
// while the session is writing: the pointer itself is guarded by bookMu
// since Run replaces it wholesale on every reconnect; the Book it points to
// guards its own level access.
func (s *Session[S]) Book() *orderbook.Book {
	s.bookMu.RLock()
	defer s.bookMu.RUnlock()
	return s.book
}

func (s *Session[S]) setBook(b *orderbook.Book) {
	s.bookMu.Lock()
	s.book = b
	s.bookMu.Unlock()
}

func (s *Session[S]) setState(state State) {
	s.lifecycle = state
	var v int64
	switch state {
	case StateDisconnected:
		v = 0
	case StateConnecting:
		v = 1
	case StateSubscribing:
		v = 2
	case StateStreaming:
		v = 3
	case StateTerminal:
		v = 4
	}
	s.metrics.stateGauge.Record(context.Background(), v,
		metric.WithAttributes(attribute.String("market", s.descriptor.Tag())))
}

// Run drives the session until ctx is cancelled. It never returns a
// recoverable error: transport/decode failures are handled internally by
// reconnecting. It returns nil on clean shutdown.
func (s *Session[S]) Run(ctx context.Context) error {
	backoff := s.cfg.InitialBackoff
	first := true

	for {
		s.setState(StateDisconnected)
		s.setBook(orderbook.New())
		s.state = s.tr.InitialState(s.descriptor.Base, s.descriptor.Quote)

		select {
		case <-ctx.Done():
			s.setState(StateTerminal)
			return nil
		default:
		}

		if !first {
			if err := s.waitBackoff(ctx, backoff); err != nil {
				s.setState(StateTerminal)
				return nil
			}
		}
		first = false

		connCtx, connSpan := s.tracer.StartSpanFromContext(ctx, "session.connect",
			trace.WithAttributes(attribute.String("market", s.descriptor.Tag())))
		s.setState(StateConnecting)

		tp, err := s.newTransport()
		if err != nil {
			connSpan.RecordError(err)
			connSpan.End()
			backoff = nextBackoff(backoff, s.cfg.MaxBackoff)
			continue
		}

		if err := tp.Connect(connCtx); err != nil {
			s.log.Warn(ctx, "connect failed", "error", err)
			connSpan.RecordError(err)
			connSpan.SetStatus(codes.Error, "connect failed")
			connSpan.End()
			backoff = nextBackoff(backoff, s.cfg.MaxBackoff)
			s.metrics.reconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("market", s.descriptor.Tag())))
			continue
		}
		connSpan.End()
		s.tp = tp

		s.setState(StateSubscribing)
		for _, frame := range s.tr.SubscribeMsg(s.descriptor.Base, s.descriptor.Quote) {
			if err := tp.Send(ctx, frame.Payload); err != nil {
				s.log.Warn(ctx, "subscribe frame failed", "error", err)
			}
		}

		streaming, shuttingDown := s.streamLoop(ctx, tp)
		_ = tp.Close()

		if shuttingDown {
			s.setState(StateTerminal)
			return nil
		}
		if streaming {
			backoff = s.cfg.InitialBackoff
		} else {
			backoff = nextBackoff(backoff, s.cfg.MaxBackoff)
		}
		s.metrics.reconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("market", s.descriptor.Tag())))
	}
}

// streamLoop processes inbound frames and the ping timer until the
// transport disconnects or ctx is cancelled. It returns whether streaming
// was ever reached (for backoff reset) and whether shutdown was requested.
func (s *Session[S]) streamLoop(ctx context.Context, tp *transport.Client) (streamed, shuttingDown bool) {
	var pingTicker *time.Ticker
	var pingCh <-chan time.Time
	if s.descriptor.PingRequired {
		interval := s.descriptor.PingInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		pingTicker = time.NewTicker(interval)
		defer pingTicker.Stop()
		pingCh = pingTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return streamed, true

		case <-tp.Done():
			return streamed, false

		case msg := <-tp.Messages():
			instructions, next, err := s.tr.Translate(msg, s.state)
			s.metrics.translateCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("market", s.descriptor.Tag())))
			if err != nil {
				s.log.Warn(ctx, "decode error, treating as transport failure", "error", err)
				s.metrics.decodeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("market", s.descriptor.Tag())))
				return streamed, false
			}
			s.state = next

			for _, instr := range instructions {
				if s.apply(ctx, instr) {
					streamed = true
					s.setState(StateStreaming)
				}
			}

			if !s.tr.Synchronised(s.state) {
				s.log.Warn(ctx, "translator reports unsynchronised mirror", "market", s.descriptor.Tag())
			}

		case <-pingCh:
			for _, frame := range s.tr.PingMsg(s.state) {
				if err := tp.Send(ctx, frame.Payload); err != nil {
					s.log.Warn(ctx, "ping frame failed", "error", err)
				}
			}
		}
	}
}

// apply routes one instruction to the book or a sink. It reports whether
// the instruction was Snapshot/Deltas/Buys/Sells (i.e. implies Streaming),
// as opposed to NoOp.
func (s *Session[S]) apply(ctx context.Context, instr translator.Instruction) bool {
	switch v := instr.(type) {
	case translator.NoOp:
		return false

	case translator.Snapshot:
		s.book.ApplySnapshot(v.Bids, v.Asks)
		if err := s.bookSink.ApplySnapshot(ctx, s.descriptor.Tag(), v.Bids, v.Asks); err != nil {
			s.log.Warn(ctx, "book sink rejected snapshot", "error", apperror.SinkError(apperror.CodeSinkRejected, s.descriptor.Tag(), err))
		}
		return true

	case translator.Deltas:
		for _, d := range v.Deltas {
			s.book.ApplyDelta(d.Side, d.Price, d.Liquidity)
		}
		if err := s.bookSink.ApplyDeltas(ctx, s.descriptor.Tag(), v.Deltas); err != nil {
			s.log.Warn(ctx, "book sink rejected deltas", "error", apperror.SinkError(apperror.CodeSinkRejected, s.descriptor.Tag(), err))
		}
		return true

	case translator.Buys:
		if err := s.tradeSink.Buys(ctx, s.descriptor.Tag(), v.Trades); err != nil {
			s.log.Warn(ctx, "trade sink rejected buys", "error", apperror.SinkError(apperror.CodeSinkRejected, s.descriptor.Tag(), err))
		}
		return true

	case translator.Sells:
		if err := s.tradeSink.Sells(ctx, s.descriptor.Tag(), v.Trades); err != nil {
			s.log.Warn(ctx, "trade sink rejected sells", "error", apperror.SinkError(apperror.CodeSinkRejected, s.descriptor.Tag(), err))
		}
		return true

	default:
		return false
	}
}

func (s *Session[S]) waitBackoff(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		next = max
	}
	jitter := time.Duration(rand.Int63n(int64(next)/4 + 1))
	return next + jitter
}
