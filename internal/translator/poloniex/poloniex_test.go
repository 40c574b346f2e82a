package poloniex

import (
	"testing"

	"github.com/marketfeed/l2ingest/internal/orderbook"
	"github.com/marketfeed/l2ingest/internal/translator"
)

// E3: snapshot.
func TestE3Snapshot(t *testing.T) {
	tr := Translator{}
	state := tr.InitialState("BTC", "USDT")

	msg := `[148, 1, [["i", {"orderBook":[{"10.0":"2.0"}, {"9.0":"3.0"}]}, 1700000000000]]]`
	instrs, _, err := tr.Translate([]byte(msg), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(instrs) != 1 {
		t.Fatalf("expected one instruction, got %d", len(instrs))
	}
	snap, ok := instrs[0].(translator.Snapshot)
	if !ok {
		t.Fatalf("expected Snapshot, got %T", instrs[0])
	}
	if len(snap.Bids) != 1 || snap.Bids[0] != (orderbook.Level{Price: 9.0, Liquidity: 3.0}) {
		t.Fatalf("unexpected bids: %v", snap.Bids)
	}
	if len(snap.Asks) != 1 || snap.Asks[0] != (orderbook.Level{Price: 10.0, Liquidity: 2.0}) {
		t.Fatalf("unexpected asks: %v", snap.Asks)
	}
}

// E4: delta pair.
func TestE4DeltaPair(t *testing.T) {
	tr := Translator{}
	state := tr.InitialState("BTC", "USDT")

	msg := `[148, 2, [["o", 1, "9.5", "1.0", 1700000000001]]]`
	instrs, state, err := tr.Translate([]byte(msg), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	deltas, ok := instrs[0].(translator.Deltas)
	if !ok || len(deltas.Deltas) != 1 {
		t.Fatalf("expected single delta, got %#v", instrs[0])
	}
	d := deltas.Deltas[0]
	if d.Side != orderbook.Bid || d.Price != 9.5 || d.Liquidity != 1.0 {
		t.Fatalf("unexpected delta: %+v", d)
	}

	msg2 := `[148, 3, [["o", 0, "10.5", "0", 1700000000002]]]`
	instrs2, _, err := tr.Translate([]byte(msg2), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	deltas2, ok := instrs2[0].(translator.Deltas)
	if !ok || len(deltas2.Deltas) != 1 {
		t.Fatalf("expected single delta, got %#v", instrs2[0])
	}
	d2 := deltas2.Deltas[0]
	if d2.Side != orderbook.Ask || d2.Price != 10.5 || d2.Liquidity != 0 {
		t.Fatalf("unexpected delta: %+v", d2)
	}

	book := orderbook.New()
	book.ApplyDelta(orderbook.Ask, 10.5, 5.0) // pre-existing level
	book.ApplyDelta(d2.Side, d2.Price, d2.Liquidity)
	if asks := book.Asks(); len(asks) != 0 {
		t.Fatalf("expected ask level deleted, got %v", asks)
	}
}

func TestHeartbeatSingletons(t *testing.T) {
	tr := Translator{}
	state := tr.InitialState("BTC", "USDT")

	for _, msg := range []string{"[1010]", "[1002]", "[1003]"} {
		instrs, _, err := tr.Translate([]byte(msg), state)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", msg, err)
		}
		if _, ok := instrs[0].(translator.NoOp); !ok {
			t.Fatalf("expected NoOp for %s, got %#v", msg, instrs[0])
		}
	}
}

func TestTrade(t *testing.T) {
	tr := Translator{}
	state := tr.InitialState("BTC", "USDT")

	msg := `[148, 4, [["t", "42", 1, "100.5", "2.0", 1, "1700000000123"]]]`
	instrs, _, err := tr.Translate([]byte(msg), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	buys, ok := instrs[0].(translator.Buys)
	if !ok || len(buys.Trades) != 1 {
		t.Fatalf("expected Buys, got %#v", instrs[0])
	}
	trade := buys.Trades[0]
	if trade.Price != 100.5 || trade.Size != 2.0 {
		t.Fatalf("unexpected trade: %+v", trade)
	}
}

func TestSequenceNumberStored(t *testing.T) {
	tr := Translator{}
	state := tr.InitialState("BTC", "USDT")

	_, state, err := tr.Translate([]byte(`[148, 55, [["o", 1, "1.0", "1.0", 1]]]`), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.PreviousSequenceNumber != 55 {
		t.Fatalf("expected sequence number 55, got %d", state.PreviousSequenceNumber)
	}
}
