// Package sink defines the narrow interfaces the session talks to for
// downstream consumption — a snapshot/delta consumer for the order-book
// mirror and a trade consumer for prints. Both are collaborators: this
// package only names the boundary; internal/sink/redis is one worked
// implementation of it.
package sink

import (
	"context"

	"github.com/marketfeed/l2ingest/internal/orderbook"
	"github.com/marketfeed/l2ingest/internal/translator"
)

// BookSink receives order-book mutations already normalized and applied to
// the local mirror, keyed by a market's canonical tag.
type BookSink interface {
	ApplySnapshot(ctx context.Context, tag string, bids, asks []orderbook.Level) error
	ApplyDeltas(ctx context.Context, tag string, deltas []translator.Delta) error
}

// TradeSink receives market-buy and market-sell prints.
type TradeSink interface {
	Buys(ctx context.Context, tag string, trades []translator.Trade) error
	Sells(ctx context.Context, tag string, trades []translator.Trade) error
}

// NoopBookSink and NoopTradeSink satisfy the interfaces without forwarding
// anything; useful for markets configured with no downstream consumer.
type NoopBookSink struct{}

func (NoopBookSink) ApplySnapshot(context.Context, string, []orderbook.Level, []orderbook.Level) error {
	return nil
}
func (NoopBookSink) ApplyDeltas(context.Context, string, []translator.Delta) error { return nil }

type NoopTradeSink struct{}

func (NoopTradeSink) Buys(context.Context, string, []translator.Trade) error  { return nil }
func (NoopTradeSink) Sells(context.Context, string, []translator.Trade) error { return nil }
