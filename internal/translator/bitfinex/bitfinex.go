// Package bitfinex implements the Bitfinex translator.Translator strategy:
// two channels (book, trades) multiplexed over one connection, channel IDs
// assigned on subscription confirmation, array-shaped data frames.
package bitfinex

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/marketfeed/l2ingest/internal/apperror"
	"github.com/marketfeed/l2ingest/internal/orderbook"
	"github.com/marketfeed/l2ingest/internal/translator"
)

// State carries the channel IDs the venue assigns once subscriptions are
// confirmed. Both are absent (nil) until the corresponding "subscribed"
// event arrives.
type State struct {
	BookCID   *int
	TradesCID *int
}

// Translator implements translator.Translator[State] for Bitfinex.
type Translator struct{}

var _ translator.Translator[State] = Translator{}

// InitialState returns a State with both channel IDs absent.
func (Translator) InitialState(_, _ string) State {
	return State{}
}

// SubscribeMsg emits one subscribe frame for "book" and one for "trades",
// both on the Bitfinex symbol form t<BASE><QUOTE>.
func (Translator) SubscribeMsg(base, quote string) []translator.OutboundFrame {
	symbol := "t" + strings.ToUpper(base) + strings.ToUpper(quote)
	return []translator.OutboundFrame{
		{Payload: map[string]any{"event": "subscribe", "channel": "book", "symbol": symbol}},
		{Payload: map[string]any{"event": "subscribe", "channel": "trades", "symbol": symbol}},
	}
}

// PingMsg emits a ping frame per confirmed channel; zero, one, or two
// frames depending on which channel IDs are known.
func (Translator) PingMsg(state State) []translator.OutboundFrame {
	var frames []translator.OutboundFrame
	if state.BookCID != nil {
		frames = append(frames, translator.OutboundFrame{Payload: map[string]any{"event": "ping", "cid": *state.BookCID}})
	}
	if state.TradesCID != nil {
		frames = append(frames, translator.OutboundFrame{Payload: map[string]any{"event": "ping", "cid": *state.TradesCID}})
	}
	return frames
}

// Synchronised is conservatively always true; no gap-detection logic exists
// for Bitfinex today. Extension point for a future implementer.
func (Translator) Synchronised(_ State) bool {
	return true
}

// Translate decodes one inbound frame per the rules in order: heartbeat,
// control events, subscription confirmations, book data, trade data.
func (Translator) Translate(msg []byte, state State) ([]translator.Instruction, State, error) {
	var v any
	if err := json.Unmarshal(msg, &v); err != nil {
		return nil, state, apperror.DecodeError(apperror.CodeDecodeInvalidJSON, "bitfinex: invalid JSON frame", err)
	}

	switch t := v.(type) {
	case map[string]any:
		return decodeEvent(t, state)
	case []any:
		return decodeArray(t, state)
	default:
		return []translator.Instruction{translator.NoOp{}}, state, nil
	}
}

func decodeEvent(obj map[string]any, state State) ([]translator.Instruction, State, error) {
	event, _ := obj["event"].(string)

	switch event {
	case "info", "conf", "pong":
		return []translator.Instruction{translator.NoOp{}}, state, nil
	case "subscribed":
		channel, _ := obj["channel"].(string)
		chanID, ok := toInt(obj["chanId"])
		if !ok {
			return []translator.Instruction{translator.NoOp{}}, state, nil
		}
		switch channel {
		case "book":
			state.BookCID = &chanID
		case "trades":
			state.TradesCID = &chanID
		}
		return []translator.Instruction{translator.NoOp{}}, state, nil
	default:
		return []translator.Instruction{translator.NoOp{}}, state, nil
	}
}

func decodeArray(arr []any, state State) ([]translator.Instruction, State, error) {
	if len(arr) == 2 {
		if s, ok := arr[1].(string); ok && s == "hb" {
			return []translator.Instruction{translator.NoOp{}}, state, nil
		}

		chanIDF, ok := arr[0].(float64)
		if !ok {
			return []translator.Instruction{translator.NoOp{}}, state, nil
		}
		chanID := int(chanIDF)

		switch {
		case state.BookCID != nil && chanID == *state.BookCID:
			instrs, err := decodeBookData(arr[1])
			if err != nil {
				return nil, state, err
			}
			return instrs, state, nil
		case state.TradesCID != nil && chanID == *state.TradesCID:
			// The summary array form on the trades channel carries no new
			// trade information.
			return []translator.Instruction{translator.NoOp{}}, state, nil
		default:
			return []translator.Instruction{translator.NoOp{}}, state, nil
		}
	}

	if len(arr) == 3 {
		chanIDF, ok := arr[0].(float64)
		if !ok {
			return []translator.Instruction{translator.NoOp{}}, state, nil
		}
		chanID := int(chanIDF)

		// This shape is exhaustive only for trades. If it does not match
		// the confirmed trades channel it may be a misrouted book update;
		// reject rather than silently pattern-failing.
		if state.TradesCID == nil || chanID != *state.TradesCID {
			return nil, state, apperror.DecodeError(apperror.CodeDecodeAmbiguousFrame,
				"bitfinex: [chan_id, tag, data] triple does not match trades_cid", nil)
		}

		instr, err := decodeTrade(arr[2])
		if err != nil {
			return nil, state, err
		}
		return []translator.Instruction{instr}, state, nil
	}

	return []translator.Instruction{translator.NoOp{}}, state, nil
}

// decodeBookData handles the data payload of a book-channel message: either
// a single [price, count, amount] delta, or a list of such triples (a full
// snapshot).
func decodeBookData(data any) ([]translator.Instruction, error) {
	arr, ok := data.([]any)
	if !ok {
		return nil, apperror.DecodeError(apperror.CodeDecodeUnknownPattern, "bitfinex: book data is not an array", nil)
	}

	if len(arr) == 3 {
		if _, isNumber := arr[0].(float64); isNumber {
			price, count, amount, err := parseTriple(arr)
			if err != nil {
				return nil, err
			}
			side, liquidity := deltaFromTriple(count, amount)
			return []translator.Instruction{translator.Deltas{Deltas: []translator.Delta{
				{Side: side, Price: price, Liquidity: liquidity},
			}}}, nil
		}
	}

	var bids, asks []orderbook.Level
	for _, row := range arr {
		triple, ok := row.([]any)
		if !ok || len(triple) != 3 {
			return nil, apperror.DecodeError(apperror.CodeDecodeUnknownPattern, "bitfinex: snapshot row is not a 3-tuple", nil)
		}
		price, _, amount, err := parseTriple(triple)
		if err != nil {
			return nil, err
		}
		if amount > 0 {
			bids = append(bids, orderbook.Level{Price: price, Liquidity: amount})
		} else {
			asks = append(asks, orderbook.Level{Price: price, Liquidity: -amount})
		}
	}

	return []translator.Instruction{translator.Snapshot{Bids: bids, Asks: asks}}, nil
}

func decodeTrade(data any) (translator.Instruction, error) {
	arr, ok := data.([]any)
	if !ok || len(arr) != 4 {
		return nil, apperror.DecodeError(apperror.CodeDecodeUnknownPattern, "bitfinex: trade data is not a 4-tuple", nil)
	}

	epochMs, ok := toFloat(arr[1])
	if !ok {
		return nil, apperror.DecodeError(apperror.CodeDecodeUnknownPattern, "bitfinex: trade epoch_ms is not numeric", nil)
	}
	amount, ok := toFloat(arr[2])
	if !ok {
		return nil, apperror.DecodeError(apperror.CodeDecodeUnknownPattern, "bitfinex: trade amount is not numeric", nil)
	}
	price, ok := toFloat(arr[3])
	if !ok {
		return nil, apperror.DecodeError(apperror.CodeDecodeUnknownPattern, "bitfinex: trade price is not numeric", nil)
	}

	ts := time.UnixMicro(int64(epochMs * 1000)).UTC()

	if amount > 0 {
		return translator.Buys{Trades: []translator.Trade{{Price: price, Size: amount, Timestamp: ts}}}, nil
	}
	return translator.Sells{Trades: []translator.Trade{{Price: price, Size: -amount, Timestamp: ts}}}, nil
}

func parseTriple(arr []any) (price float64, count int, amount float64, err error) {
	p, ok1 := toFloat(arr[0])
	c, ok2 := toFloat(arr[1])
	a, ok3 := toFloat(arr[2])
	if !ok1 || !ok2 || !ok3 {
		return 0, 0, 0, apperror.DecodeError(apperror.CodeDecodeUnknownPattern, "bitfinex: triple element is not numeric", nil)
	}
	return p, int(c), a, nil
}

// deltaFromTriple implements rule 5's sign/count logic: positive amount is
// a bid, non-positive is an ask; a zero count means delete (liquidity 0).
func deltaFromTriple(count int, amount float64) (orderbook.Side, float64) {
	if amount > 0 {
		if count == 0 {
			return orderbook.Bid, 0
		}
		return orderbook.Bid, amount
	}
	if count == 0 {
		return orderbook.Ask, 0
	}
	return orderbook.Ask, -amount
}

func toFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func toInt(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}
