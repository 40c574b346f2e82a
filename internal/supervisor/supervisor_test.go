package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/marketfeed/l2ingest/internal/logger"
	"github.com/marketfeed/l2ingest/internal/market"
	"github.com/marketfeed/l2ingest/internal/sink"
)

func descriptors() []market.Descriptor {
	return []market.Descriptor{
		{Exchange: "bitfinex", Type: market.Spot, Base: "BTC", Quote: "USD", Endpoint: "wss://example.invalid/bitfinex", TranslatorSelector: "bitfinex"},
		{Exchange: "poloniex", Type: market.Spot, Base: "ETH", Quote: "USDT", Endpoint: "wss://example.invalid/poloniex", TranslatorSelector: "poloniex-spot"},
		{Exchange: "kraken", Type: market.Spot, Base: "SOL", Quote: "USD", Endpoint: "wss://example.invalid/kraken", TranslatorSelector: "kraken"},
	}
}

func TestBuildRoutesBySelectorAndReportsUnknownVenue(t *testing.T) {
	runnables, errs := Build(descriptors(), sink.NoopBookSink{}, sink.NoopTradeSink{}, logger.NewConsole(logger.LevelError, "test"))

	if len(runnables) != 2 {
		t.Fatalf("expected 2 successfully built runnables, got %d", len(runnables))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 error for the unknown venue, got %d: %v", len(errs), errs)
	}

	tags := map[string]bool{}
	for _, r := range runnables {
		tags[r.Tag()] = true
	}
	if !tags["BITFINEX.SPOT:BTC-USD"] || !tags["POLONIEX.SPOT:ETH-USDT"] {
		t.Fatalf("unexpected tags: %v", tags)
	}
}

// TestPoloniexFuturesIsNotAliasedToSpot exercises the spec.md §9 decision
// that "poloniex-futures" must fail fast rather than silently decode
// futures frames through the poloniex-spot translator.
func TestPoloniexFuturesIsNotAliasedToSpot(t *testing.T) {
	d := market.Descriptor{
		Exchange: "poloniex", Type: market.Perp, Base: "BTC", Quote: "USDT",
		Endpoint: "wss://example.invalid/poloniex-futures", TranslatorSelector: "poloniex-futures",
	}

	runnables, errs := Build([]market.Descriptor{d}, sink.NoopBookSink{}, sink.NoopTradeSink{}, logger.NewConsole(logger.LevelError, "test"))

	if len(runnables) != 0 {
		t.Fatalf("expected poloniex-futures to build no runnable, got %d", len(runnables))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 error rejecting poloniex-futures, got %d: %v", len(errs), errs)
	}
}

func TestSupervisorBookLookup(t *testing.T) {
	runnables, errs := Build(descriptors()[:2], sink.NoopBookSink{}, sink.NoopTradeSink{}, logger.NewConsole(logger.LevelError, "test"))
	if len(errs) != 0 {
		t.Fatalf("unexpected build errors: %v", errs)
	}

	sup := New(runnables, logger.NewConsole(logger.LevelError, "test"))

	if !sup.Healthy() {
		t.Fatalf("expected supervisor with markets to be healthy")
	}

	b, ok := sup.Book("BITFINEX.SPOT:BTC-USD")
	if !ok || b == nil {
		t.Fatalf("expected to find book for configured market")
	}
	if _, ok := sup.Book("NOSUCH.SPOT:X-Y"); ok {
		t.Fatalf("expected no book for unconfigured market")
	}

	tags := sup.Tags()
	if len(tags) != 2 {
		t.Fatalf("expected 2 tags, got %v", tags)
	}
}

func TestEmptySupervisorIsUnhealthy(t *testing.T) {
	sup := New(nil, logger.NewConsole(logger.LevelError, "test"))
	if sup.Healthy() {
		t.Fatalf("expected empty supervisor to be unhealthy")
	}
}

// StartAll must respect context cancellation even when a session can never
// connect (no real network available in this test).
func TestStartAllReturnsOnContextCancel(t *testing.T) {
	runnables, errs := Build(descriptors()[:1], sink.NoopBookSink{}, sink.NoopTradeSink{}, logger.NewConsole(logger.LevelError, "test"))
	if len(errs) != 0 {
		t.Fatalf("unexpected build errors: %v", errs)
	}
	sup := New(runnables, logger.NewConsole(logger.LevelError, "test"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		sup.StartAll(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("StartAll did not return promptly after context cancellation")
	}
}
