package redis

import (
	"testing"

	"github.com/marketfeed/l2ingest/internal/orderbook"
)

func TestToDecimalStringFormatsFinitely(t *testing.T) {
	got := toDecimalString(1234.5)
	if got != "1234.5" {
		t.Fatalf("expected 1234.5, got %s", got)
	}
}

func TestLevelsToWirePreservesOrderAndCount(t *testing.T) {
	levels := []orderbook.Level{{Price: 100, Liquidity: 1.5}, {Price: 101, Liquidity: 2}}
	wire := levelsToWire(levels)
	if len(wire) != 2 {
		t.Fatalf("expected 2 wire levels, got %d", len(wire))
	}
	if wire[0].Price != "100" || wire[0].Liquidity != "1.5" {
		t.Fatalf("unexpected first level: %+v", wire[0])
	}
	if wire[1].Price != "101" || wire[1].Liquidity != "2" {
		t.Fatalf("unexpected second level: %+v", wire[1])
	}
}

func TestChannelNaming(t *testing.T) {
	s := &Sink{cfg: DefaultConfig("localhost:6379")}
	if got := s.bookChannel("BITFINEX.SPOT:BTC-USD"); got != "l2.book.BITFINEX.SPOT:BTC-USD" {
		t.Fatalf("unexpected book channel: %s", got)
	}
	if got := s.tradesChannel("BITFINEX.SPOT:BTC-USD"); got != "l2.trades.BITFINEX.SPOT:BTC-USD" {
		t.Fatalf("unexpected trades channel: %s", got)
	}
}
