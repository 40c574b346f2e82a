package bitfinex

import (
	"testing"
	"time"

	"github.com/marketfeed/l2ingest/internal/orderbook"
	"github.com/marketfeed/l2ingest/internal/translator"
)

func mustTranslate(t *testing.T, tr Translator, msg string, state State) ([]translator.Instruction, State) {
	t.Helper()
	instrs, next, err := tr.Translate([]byte(msg), state)
	if err != nil {
		t.Fatalf("translate(%s) returned error: %v", msg, err)
	}
	return instrs, next
}

// E1: subscribe -> snapshot -> delta.
func TestE1SubscribeSnapshotDelta(t *testing.T) {
	tr := Translator{}
	state := tr.InitialState("BTC", "USD")

	_, state = mustTranslate(t, tr, `{"event":"subscribed","channel":"book","chanId":42}`, state)
	if state.BookCID == nil || *state.BookCID != 42 {
		t.Fatalf("expected book_cid=42, got %v", state.BookCID)
	}

	instrs, state := mustTranslate(t, tr, `[42, [[100.0, 1, 2.0], [99.0, 1, 1.5], [101.0, 1, -3.0]]]`, state)
	if len(instrs) != 1 {
		t.Fatalf("expected one instruction, got %d", len(instrs))
	}
	snap, ok := instrs[0].(translator.Snapshot)
	if !ok {
		t.Fatalf("expected Snapshot, got %T", instrs[0])
	}

	book := orderbook.New()
	book.ApplySnapshot(snap.Bids, snap.Asks)
	bids, asks := book.Book()
	if len(bids) != 2 || bids[0].Price != 100.0 || bids[0].Liquidity != 2.0 || bids[1].Price != 99.0 || bids[1].Liquidity != 1.5 {
		t.Fatalf("unexpected bids: %v", bids)
	}
	if len(asks) != 1 || asks[0].Price != 101.0 || asks[0].Liquidity != 3.0 {
		t.Fatalf("unexpected asks: %v", asks)
	}

	instrs, _ = mustTranslate(t, tr, `[42, [100.0, 0, 2.0]]`, state)
	deltas, ok := instrs[0].(translator.Deltas)
	if !ok || len(deltas.Deltas) != 1 {
		t.Fatalf("expected single delta, got %#v", instrs[0])
	}
	d := deltas.Deltas[0]
	if d.Side != orderbook.Bid || d.Price != 100.0 || d.Liquidity != 0 {
		t.Fatalf("unexpected delta: %+v", d)
	}

	book.ApplyDelta(d.Side, d.Price, d.Liquidity)
	bids = book.Bids()
	if len(bids) != 1 || bids[0].Price != 99.0 {
		t.Fatalf("expected only 99.0 remaining, got %v", bids)
	}
}

// E2: trade.
func TestE2Trade(t *testing.T) {
	tr := Translator{}
	cid := 7
	state := State{TradesCID: &cid}

	instrs, _, err := tr.Translate([]byte(`[7, "te", [555, 1700000000000, -0.5, 250.0]]`), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sells, ok := instrs[0].(translator.Sells)
	if !ok || len(sells.Trades) != 1 {
		t.Fatalf("expected Sells, got %#v", instrs[0])
	}
	trade := sells.Trades[0]
	if trade.Price != 250.0 || trade.Size != 0.5 {
		t.Fatalf("unexpected trade: %+v", trade)
	}
	want := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	if !trade.Timestamp.Equal(want) {
		t.Fatalf("unexpected timestamp: got %v want %v", trade.Timestamp, want)
	}
}

// E6: heartbeat passthrough.
func TestE6Heartbeat(t *testing.T) {
	tr := Translator{}
	cid := 42
	state := State{BookCID: &cid}

	instrs, next, err := tr.Translate([]byte(`[42, "hb"]`), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(instrs) != 1 {
		t.Fatalf("expected single instruction, got %d", len(instrs))
	}
	if _, ok := instrs[0].(translator.NoOp); !ok {
		t.Fatalf("expected NoOp, got %#v", instrs[0])
	}
	if next != state {
		t.Fatalf("expected state unchanged, got %+v", next)
	}
}

// Added decision: ambiguous [chan_id, tag, data] triple not matching
// trades_cid is rejected, not silently dropped.
func TestAmbiguousTripleRejected(t *testing.T) {
	tr := Translator{}
	tradesCID := 7
	state := State{TradesCID: &tradesCID}

	_, _, err := tr.Translate([]byte(`[99, "tu", [1, 2, 3, 4]]`), state)
	if err == nil {
		t.Fatalf("expected decode error for mismatched chan_id triple")
	}
}

func TestPurity(t *testing.T) {
	tr := Translator{}
	cid := 42
	state := State{BookCID: &cid}
	msg := []byte(`[42, [[100.0, 1, 2.0]]]`)

	instrs1, next1, err1 := tr.Translate(msg, state)
	instrs2, next2, err2 := tr.Translate(msg, state)

	if err1 != err2 {
		t.Fatalf("expected identical errors, got %v and %v", err1, err2)
	}
	if next1 != next2 {
		t.Fatalf("expected identical next state")
	}
	if len(instrs1) != len(instrs2) {
		t.Fatalf("expected identical instruction count")
	}
}
