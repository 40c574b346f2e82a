package orderbook

import (
	"math/rand"
	"sort"
	"testing"
)

func TestDeleteIdempotence(t *testing.T) {
	b := New()
	b.ApplyDelta(Bid, 100.0, 5.0)
	b.ApplyDelta(Bid, 100.0, 0)
	first := b.Bids()
	b.ApplyDelta(Bid, 100.0, 0)
	second := b.Bids()

	if len(first) != 0 || len(second) != 0 {
		t.Fatalf("expected deletion to clear level, got first=%v second=%v", first, second)
	}
}

func TestInsertLastWriteWins(t *testing.T) {
	b := New()
	deltas := []float64{1.0, 2.5, 0.3, 9.9, 4.4}
	for _, liq := range deltas {
		b.ApplyDelta(Ask, 50.0, liq)
	}

	asks := b.Asks()
	if len(asks) != 1 || asks[0].Liquidity != 4.4 {
		t.Fatalf("expected single level with final liquidity 4.4, got %v", asks)
	}
}

func TestSnapshotReplaces(t *testing.T) {
	b := New()
	b.ApplyDelta(Bid, 1.0, 1.0)
	b.ApplyDelta(Ask, 2.0, 1.0)

	bids := []Level{{Price: 99.0, Liquidity: 1.0}, {Price: 100.0, Liquidity: 2.0}, {Price: 100.0, Liquidity: 3.0}}
	asks := []Level{{Price: 105.0, Liquidity: 1.0}, {Price: 101.0, Liquidity: 2.0}}
	b.ApplySnapshot(bids, asks)

	gotBids, gotAsks := b.Book()
	wantBids := []Level{{Price: 100.0, Liquidity: 3.0}, {Price: 99.0, Liquidity: 1.0}}
	wantAsks := []Level{{Price: 101.0, Liquidity: 2.0}, {Price: 105.0, Liquidity: 1.0}}

	assertLevels(t, "bids", gotBids, wantBids)
	assertLevels(t, "asks", gotAsks, wantAsks)
}

func TestOrdering(t *testing.T) {
	b := New()
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		side := Bid
		if rng.Intn(2) == 1 {
			side = Ask
		}
		price := rng.Float64() * 1000
		liq := rng.Float64()*10 - 2 // sometimes <= 0, exercising deletes
		b.ApplyDelta(side, price, liq)
	}

	bids, asks := b.Book()
	for i := 1; i < len(bids); i++ {
		if bids[i-1].Price < bids[i].Price {
			t.Fatalf("bids not non-increasing at %d: %v", i, bids)
		}
	}
	for i := 1; i < len(asks); i++ {
		if asks[i-1].Price > asks[i].Price {
			t.Fatalf("asks not non-decreasing at %d: %v", i, asks)
		}
	}
	for _, l := range bids {
		if l.Liquidity <= 0 {
			t.Fatalf("bid side contains non-positive liquidity: %v", l)
		}
	}
	for _, l := range asks {
		if l.Liquidity <= 0 {
			t.Fatalf("ask side contains non-positive liquidity: %v", l)
		}
	}
}

func TestExtremumAgreement(t *testing.T) {
	b := New()
	if _, ok := b.BestBid(); ok {
		t.Fatalf("expected empty book to report no best bid")
	}
	if _, ok := b.BestAsk(); ok {
		t.Fatalf("expected empty book to report no best ask")
	}

	b.ApplyDelta(Bid, 100.0, 1.0)
	b.ApplyDelta(Bid, 105.0, 1.0)
	b.ApplyDelta(Ask, 110.0, 1.0)
	b.ApplyDelta(Ask, 108.0, 1.0)

	bestBid, ok := b.BestBid()
	if !ok || bestBid.Price != 105.0 {
		t.Fatalf("expected best bid 105.0, got %v ok=%v", bestBid, ok)
	}
	bestAsk, ok := b.BestAsk()
	if !ok || bestAsk.Price != 108.0 {
		t.Fatalf("expected best ask 108.0, got %v ok=%v", bestAsk, ok)
	}

	bids := b.Bids()
	if bids[0] != bestBid {
		t.Fatalf("head(bids) %v does not match best bid %v", bids[0], bestBid)
	}
}

func TestApplyDeltaDeleteNonExistentIsNoop(t *testing.T) {
	b := New()
	b.ApplyDelta(Bid, 100.0, 1.0)
	b.ApplyDelta(Bid, 200.0, 0) // not present, must not panic or alter state
	bids := b.Bids()
	if len(bids) != 1 || bids[0].Price != 100.0 {
		t.Fatalf("unexpected state after no-op delete: %v", bids)
	}
}

func assertLevels(t *testing.T, name string, got, want []Level) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: length mismatch got=%v want=%v", name, got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("%s: mismatch at %d got=%v want=%v", name, i, got, want)
		}
	}
}

func TestBidsSortedDescByConstruction(t *testing.T) {
	b := New()
	prices := []float64{5, 1, 9, 3, 7}
	for _, p := range prices {
		b.ApplyDelta(Bid, p, 1.0)
	}
	bids := b.Bids()
	sorted := append([]float64{}, prices...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	for i, l := range bids {
		if l.Price != sorted[i] {
			t.Fatalf("bid order mismatch at %d: got %v want %v", i, l.Price, sorted[i])
		}
	}
}
