// Package orderbook maintains an in-memory limit order book mirror: two
// ordered sides, bids and asks, keyed by price. It is pure data with no I/O —
// callers apply deltas and snapshots decoded elsewhere.
package orderbook

import (
	"math"
	"sync"

	"github.com/google/btree"
)

// Side identifies one side of the book.
type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Level is a single (price, liquidity) pair. Liquidity is always > 0 for a
// level actually stored in a side; a level with liquidity <= 0 represents a
// deletion and is never kept.
type Level struct {
	Price     float64
	Liquidity float64
}

const btreeDegree = 32

func bidLess(a, b Level) bool { return a.Price > b.Price } // highest-first
func askLess(a, b Level) bool { return a.Price < b.Price } // lowest-first

// Book holds the two ordered sides under a single reader-writer lock, so
// bids/asks/book reads never observe a torn snapshot across a concurrent
// delta or snapshot write (spec: never split the two sides across two
// independent locks).
type Book struct {
	mu   sync.RWMutex
	bids *btree.BTreeG[Level]
	asks *btree.BTreeG[Level]
}

// New returns an empty Book.
func New() *Book {
	return &Book{
		bids: btree.NewG(btreeDegree, bidLess),
		asks: btree.NewG(btreeDegree, askLess),
	}
}

func sideTree(b *Book, side Side) *btree.BTreeG[Level] {
	if side == Bid {
		return b.bids
	}
	return b.asks
}

// Bids returns the bid side ordered highest price first. Empty side yields
// an empty, non-nil slice.
func (b *Book) Bids() []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return collect(b.bids)
}

// Asks returns the ask side ordered lowest price first.
func (b *Book) Asks() []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return collect(b.asks)
}

func collect(t *btree.BTreeG[Level]) []Level {
	out := make([]Level, 0, t.Len())
	t.Ascend(func(l Level) bool {
		out = append(out, l)
		return true
	})
	return out
}

// Book returns a consistent (bids, asks) pair taken under one read lock.
func (b *Book) Book() (bids, asks []Level) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return collect(b.bids), collect(b.asks)
}

// SideEmpty is returned by BestBid/BestAsk when the respective side has no
// levels.
var SideEmpty = Level{}

// BestBid returns the highest-price bid level, or (SideEmpty, false).
func (b *Book) BestBid() (Level, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.Min()
}

// BestAsk returns the lowest-price ask level, or (SideEmpty, false).
func (b *Book) BestAsk() (Level, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asks.Min()
}

// ApplyDelta inserts or replaces (side, price) with liquidity, or deletes the
// price when liquidity <= 0. Deleting a price that is not present is a no-op.
// A NaN liquidity is treated as a delete, and a NaN or infinite price is
// dropped (the book never stores a level that would break ordering for every
// other level). An infinite liquidity at a finite price is stored as given.
func (b *Book) ApplyDelta(side Side, price, liquidity float64) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t := sideTree(b, side)
	if math.IsNaN(liquidity) || liquidity <= 0 {
		t.Delete(Level{Price: price})
		return
	}
	t.ReplaceOrInsert(Level{Price: price, Liquidity: liquidity})
}

// ApplySnapshot atomically replaces both sides. Input levels need not be
// sorted; duplicate prices within a side collapse last-write-wins (later
// entries in the slice win), matching the order the venue sent them in.
// Levels with liquidity <= 0 are dropped rather than stored.
func (b *Book) ApplySnapshot(bids, asks []Level) {
	newBids := btree.NewG(btreeDegree, bidLess)
	newAsks := btree.NewG(btreeDegree, askLess)

	for _, l := range bids {
		if l.Liquidity <= 0 || math.IsNaN(l.Price) || math.IsInf(l.Price, 0) {
			continue
		}
		newBids.ReplaceOrInsert(l)
	}
	for _, l := range asks {
		if l.Liquidity <= 0 || math.IsNaN(l.Price) || math.IsInf(l.Price, 0) {
			continue
		}
		newAsks.ReplaceOrInsert(l)
	}

	b.mu.Lock()
	b.bids = newBids
	b.asks = newAsks
	b.mu.Unlock()
}
