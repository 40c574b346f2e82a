package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marketfeed/l2ingest/internal/logger"
	"github.com/marketfeed/l2ingest/internal/market"
	"github.com/marketfeed/l2ingest/internal/orderbook"
	"github.com/marketfeed/l2ingest/internal/transport"
	"github.com/marketfeed/l2ingest/internal/translator"
)

type fakeTranslator struct{}

func (fakeTranslator) InitialState(_, _ string) struct{}                  { return struct{}{} }
func (fakeTranslator) SubscribeMsg(_, _ string) []translator.OutboundFrame { return nil }
func (fakeTranslator) PingMsg(_ struct{}) []translator.OutboundFrame       { return nil }
func (fakeTranslator) Synchronised(_ struct{}) bool                       { return true }
func (fakeTranslator) Translate(_ []byte, s struct{}) ([]translator.Instruction, struct{}, error) {
	return []translator.Instruction{translator.NoOp{}}, s, nil
}

type recordingBookSink struct {
	snapshots int
	deltas    int
	lastErr   error
}

func (r *recordingBookSink) ApplySnapshot(_ context.Context, _ string, _, _ []orderbook.Level) error {
	r.snapshots++
	return r.lastErr
}
func (r *recordingBookSink) ApplyDeltas(_ context.Context, _ string, _ []translator.Delta) error {
	r.deltas++
	return r.lastErr
}

type recordingTradeSink struct {
	buys  int
	sells int
}

func (r *recordingTradeSink) Buys(_ context.Context, _ string, _ []translator.Trade) error {
	r.buys++
	return nil
}
func (r *recordingTradeSink) Sells(_ context.Context, _ string, _ []translator.Trade) error {
	r.sells++
	return nil
}

func newTestSession(t *testing.T, bookSink *recordingBookSink, tradeSink *recordingTradeSink) *Session[struct{}] {
	t.Helper()
	desc := market.Descriptor{Exchange: "bitfinex", Type: market.Spot, Base: "BTC", Quote: "USD"}
	s, err := New[struct{}](desc, DefaultConfig(), fakeTranslator{}, bookSink, tradeSink, logger.NewConsole(logger.LevelError, "test"),
		func() (*transport.Client, error) {
			return nil, errors.New("not used in this test")
		})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestApplyNoOpDoesNotImplyStreaming(t *testing.T) {
	bs, ts := &recordingBookSink{}, &recordingTradeSink{}
	s := newTestSession(t, bs, ts)

	if s.apply(context.Background(), translator.NoOp{}) {
		t.Fatalf("NoOp must not imply streaming")
	}
	if bs.snapshots != 0 || bs.deltas != 0 {
		t.Fatalf("NoOp must not reach the book sink")
	}
}

func TestApplySnapshotUpdatesBookAndSink(t *testing.T) {
	bs, ts := &recordingBookSink{}, &recordingTradeSink{}
	s := newTestSession(t, bs, ts)

	snap := translator.Snapshot{
		Bids: []orderbook.Level{{Price: 100, Liquidity: 1}},
		Asks: []orderbook.Level{{Price: 101, Liquidity: 1}},
	}
	if !s.apply(context.Background(), snap) {
		t.Fatalf("Snapshot must imply streaming")
	}
	if bs.snapshots != 1 {
		t.Fatalf("expected book sink to observe one snapshot, got %d", bs.snapshots)
	}
	bids, asks := s.Book().Book()
	if len(bids) != 1 || len(asks) != 1 {
		t.Fatalf("expected book mutated from snapshot, got bids=%v asks=%v", bids, asks)
	}
}

func TestApplyDeltasAndTrades(t *testing.T) {
	bs, ts := &recordingBookSink{}, &recordingTradeSink{}
	s := newTestSession(t, bs, ts)

	if !s.apply(context.Background(), translator.Deltas{Deltas: []translator.Delta{{Side: orderbook.Bid, Price: 1, Liquidity: 1}}}) {
		t.Fatalf("Deltas must imply streaming")
	}
	if bs.deltas != 1 {
		t.Fatalf("expected one delta observed, got %d", bs.deltas)
	}

	if !s.apply(context.Background(), translator.Buys{Trades: []translator.Trade{{Price: 1, Size: 1, Timestamp: time.Now()}}}) {
		t.Fatalf("Buys must imply streaming")
	}
	if ts.buys != 1 {
		t.Fatalf("expected one buy observed, got %d", ts.buys)
	}

	if !s.apply(context.Background(), translator.Sells{Trades: []translator.Trade{{Price: 1, Size: 1, Timestamp: time.Now()}}}) {
		t.Fatalf("Sells must imply streaming")
	}
	if ts.sells != 1 {
		t.Fatalf("expected one sell observed, got %d", ts.sells)
	}
}

// E5: reconnect resets book — simulated at the unit level by mutating the
// book directly then reassigning it the way Run's loop top does, since Run
// itself requires a live transport dial.
func TestE5ReconnectResetsBook(t *testing.T) {
	bs, ts := &recordingBookSink{}, &recordingTradeSink{}
	s := newTestSession(t, bs, ts)

	s.apply(context.Background(), translator.Snapshot{
		Bids: []orderbook.Level{{Price: 100, Liquidity: 1}},
	})
	if bids := s.Book().Bids(); len(bids) != 1 {
		t.Fatalf("expected book populated before reconnect, got %v", bids)
	}

	// This is exactly what Run does at the top of its loop on every pass,
	// including after a disconnect.
	s.book = orderbook.New()
	s.state = s.tr.InitialState(s.descriptor.Base, s.descriptor.Quote)

	if bids := s.Book().Bids(); len(bids) != 0 {
		t.Fatalf("expected empty book after reset, got %v", bids)
	}
}

func TestNextBackoffCapsAtMax(t *testing.T) {
	max := 32 * time.Second
	b := time.Second
	for i := 0; i < 20; i++ {
		b = nextBackoff(b, max)
		if b-max > max/4+time.Millisecond {
			t.Fatalf("backoff exceeded cap plus jitter bound: %v", b)
		}
	}
}
