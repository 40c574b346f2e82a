// Package translator defines the normalized instruction vocabulary and the
// per-venue translation strategy interface. Concrete venues (bitfinex,
// poloniex) each implement Translator[S] with their own translation-state
// type S — a sum type per venue rather than an untyped map, per the design
// notes this scheme is modeled on.
package translator

import (
	"time"

	"github.com/marketfeed/l2ingest/internal/orderbook"
)

// Instruction is the normalized output of a single Translate call. It is a
// closed set of concrete types, never an untyped map.
type Instruction interface {
	instruction()
}

// NoOp is an advisory/heartbeat/subscription-acknowledgement instruction; it
// has no effect on the book or trade sink.
type NoOp struct{}

func (NoOp) instruction() {}

// Snapshot replaces the book entirely.
type Snapshot struct {
	Bids []orderbook.Level
	Asks []orderbook.Level
}

func (Snapshot) instruction() {}

// Delta is one entry of a Deltas instruction.
type Delta struct {
	Side      orderbook.Side
	Price     float64
	Liquidity float64
}

// Deltas applies each delta to the book, in order.
type Deltas struct {
	Deltas []Delta
}

func (Deltas) instruction() {}

// Trade is a single print.
type Trade struct {
	Price     float64
	Size      float64
	Timestamp time.Time
}

// Buys forwards market-buy prints.
type Buys struct {
	Trades []Trade
}

func (Buys) instruction() {}

// Sells forwards market-sell prints.
type Sells struct {
	Trades []Trade
}

func (Sells) instruction() {}

// OutboundFrame wraps a value the session marshals to JSON and writes as a
// text frame. Kept distinct from raw bytes so translators never depend on
// encoding/json wire details leaking from session into translator.
type OutboundFrame struct {
	Payload any
}

// Translator is a pluggable per-venue strategy. S is the venue's
// translation-state type, carrying subscription identifiers and sequence
// numbers needed to interpret later messages.
type Translator[S any] interface {
	// InitialState produces the starting translation state for one market.
	InitialState(base, quote string) S

	// SubscribeMsg returns the one-time frames to send after connecting.
	SubscribeMsg(base, quote string) []OutboundFrame

	// PingMsg returns the possibly-empty keepalive frames to emit on the
	// ping timer; may depend on state (e.g. only after subscription is
	// confirmed).
	PingMsg(state S) []OutboundFrame

	// Synchronised reports whether the mirror is trusted to be consistent.
	// Conservatively true in every venue today; implementers should treat
	// this as an extension point for future gap detection.
	Synchronised(state S) bool

	// Translate consumes one decoded message and produces zero or more
	// instructions plus the next state. Must be pure: no I/O, no mutation
	// outside the returned state. Unknown or uninteresting messages yield
	// [NoOp] and pass the state through unchanged. A message whose shape is
	// recognized but ambiguous for this venue returns an error instead of
	// silently dropping it.
	Translate(msg []byte, state S) ([]Instruction, S, error)
}
