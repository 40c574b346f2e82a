// Package supervisor starts and supervises one session.Session per
// configured market, independently, and replaces the teacher's
// single-process internal/monolith DI container: there is no shared
// startup/shutdown ordering between markets here, because one venue's
// feed stalling must never block another's.
package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/marketfeed/l2ingest/internal/apperror"
	"github.com/marketfeed/l2ingest/internal/logger"
	"github.com/marketfeed/l2ingest/internal/market"
	"github.com/marketfeed/l2ingest/internal/orderbook"
	"github.com/marketfeed/l2ingest/internal/session"
	"github.com/marketfeed/l2ingest/internal/sink"
	"github.com/marketfeed/l2ingest/internal/transport"
	"github.com/marketfeed/l2ingest/internal/translator/bitfinex"
	"github.com/marketfeed/l2ingest/internal/translator/poloniex"
)

// Build constructs one session.Runnable per descriptor, selecting the venue
// translator strategy by descriptor.TranslatorSelector. A descriptor with an
// unrecognized selector fails only itself, per spec: a malformed market is
// fatal to that market, not to the process.
func Build(descriptors []market.Descriptor, bookSink sink.BookSink, tradeSink sink.TradeSink, log logger.LoggerInterface) ([]session.Runnable, []error) {
	runnables := make([]session.Runnable, 0, len(descriptors))
	var errs []error
	for _, d := range descriptors {
		r, err := build(d, bookSink, tradeSink, log)
		if err != nil {
			errs = append(errs, fmt.Errorf("supervisor: %s: %w", d.Tag(), err))
			continue
		}
		runnables = append(runnables, r)
	}
	return runnables, errs
}

func build(d market.Descriptor, bookSink sink.BookSink, tradeSink sink.TradeSink, log logger.LoggerInterface) (session.Runnable, error) {
	newTransport := func() (*transport.Client, error) {
		return transport.New(transport.DefaultConfig(d.Endpoint, d.Tag()))
	}

	switch d.TranslatorSelector {
	case "bitfinex":
		return session.New[bitfinex.State](d, session.DefaultConfig(), bitfinex.Translator{}, bookSink, tradeSink, log, newTransport)
	case "poloniex-spot":
		return session.New[poloniex.State](d, session.DefaultConfig(), poloniex.Translator{}, bookSink, tradeSink, log, newTransport)
	default:
		return nil, apperror.ConfigError(apperror.CodeConfigUnknownVenue, "translator selector "+d.TranslatorSelector)
	}
}

// Supervisor runs a fixed set of sessions and answers health/book queries
// about them. It holds no session-internal state of its own.
type Supervisor struct {
	runnables []session.Runnable
	log       logger.LoggerInterface
}

// New wraps an already-built set of runnables.
func New(runnables []session.Runnable, log logger.LoggerInterface) *Supervisor {
	return &Supervisor{runnables: runnables, log: log}
}

// StartAll runs every session until ctx is cancelled, each in its own
// goroutine. One market's Run returning an error never stops the others; it
// is logged and that market simply stops being supervised. StartAll blocks
// until every session has returned.
func (s *Supervisor) StartAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, r := range s.runnables {
		wg.Add(1)
		go func(r session.Runnable) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				s.log.Error(ctx, "session exited with error", "market", r.Tag(), "error", err)
			}
		}(r)
	}
	wg.Wait()
}

// Tags returns the canonical tag of every supervised market.
func (s *Supervisor) Tags() []string {
	tags := make([]string, len(s.runnables))
	for i, r := range s.runnables {
		tags[i] = r.Tag()
	}
	return tags
}

// Book returns the live order book mirror for tag, if supervised.
func (s *Supervisor) Book(tag string) (*orderbook.Book, bool) {
	for _, r := range s.runnables {
		if r.Tag() == tag {
			return r.Book(), true
		}
	}
	return nil, false
}

// Healthy reports whether the supervisor was given at least one market to
// run. It does not inspect the sessions themselves. Per-market streaming
// liveness is a session-level concern exposed through metrics, not here.
func (s *Supervisor) Healthy() bool {
	return len(s.runnables) > 0
}
