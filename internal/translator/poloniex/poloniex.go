// Package poloniex implements the Poloniex spot translator.Translator
// strategy: one channel per market, sequence-numbered message batches, and
// string-encoded price/size fields.
package poloniex

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/marketfeed/l2ingest/internal/apperror"
	"github.com/marketfeed/l2ingest/internal/orderbook"
	"github.com/marketfeed/l2ingest/internal/translator"
)

// State carries the last-seen sequence number. The scheme stores it but
// makes no gap-detection guarantee (per the open design note); it exists so
// a future implementer has somewhere to hang that logic without changing
// the State shape.
type State struct {
	PreviousSequenceNumber int64
}

// Translator implements translator.Translator[State] for Poloniex spot.
// Futures is intentionally not aliased to this scheme — see the selector
// switch in internal/supervisor, which only binds "poloniex-spot".
type Translator struct{}

var _ translator.Translator[State] = Translator{}

func (Translator) InitialState(_, _ string) State {
	return State{}
}

// SubscribeMsg emits the single channel-subscribe frame for <QUOTE>_<BASE>.
func (Translator) SubscribeMsg(base, quote string) []translator.OutboundFrame {
	return []translator.OutboundFrame{
		{Payload: map[string]any{"command": "subscribe", "channel": quote + "_" + base}},
	}
}

// PingMsg emits the unconditional keepalive frame.
func (Translator) PingMsg(_ State) []translator.OutboundFrame {
	return []translator.OutboundFrame{{Payload: map[string]any{"op": "ping"}}}
}

// Synchronised is conservatively always true.
func (Translator) Synchronised(_ State) bool {
	return true
}

func (Translator) Translate(msg []byte, state State) ([]translator.Instruction, State, error) {
	var v any
	if err := json.Unmarshal(msg, &v); err != nil {
		return nil, state, apperror.DecodeError(apperror.CodeDecodeInvalidJSON, "poloniex: invalid JSON frame", err)
	}
	arr, ok := v.([]any)
	if !ok {
		return []translator.Instruction{translator.NoOp{}}, state, nil
	}

	if len(arr) == 1 {
		if n, ok := toFloat(arr[0]); ok && (n == 1010 || n == 1002 || n == 1003) {
			return []translator.Instruction{translator.NoOp{}}, state, nil
		}
		return []translator.Instruction{translator.NoOp{}}, state, nil
	}

	if len(arr) < 3 {
		return []translator.Instruction{translator.NoOp{}}, state, nil
	}

	if seq, ok := toFloat(arr[1]); ok {
		state.PreviousSequenceNumber = int64(seq)
	}

	messages, ok := arr[2].([]any)
	if !ok {
		return []translator.Instruction{translator.NoOp{}}, state, nil
	}

	var instructions []translator.Instruction
	for _, raw := range messages {
		entry, ok := raw.([]any)
		if !ok || len(entry) == 0 {
			continue
		}
		tag, ok := entry[0].(string)
		if !ok {
			continue
		}

		switch tag {
		case "i":
			instr, ok := decodeSnapshot(entry)
			if ok {
				instructions = append(instructions, instr)
			}
		case "o":
			instr, ok := decodeDelta(entry)
			if ok {
				instructions = append(instructions, instr)
			}
		case "t":
			instr, ok := decodeTrade(entry)
			if ok {
				instructions = append(instructions, instr)
			}
		}
	}

	if len(instructions) == 0 {
		instructions = []translator.Instruction{translator.NoOp{}}
	}

	return instructions, state, nil
}

// decodeSnapshot handles ["i", {orderBook: [asksMap, bidsMap]}, epoch_ms].
func decodeSnapshot(entry []any) (translator.Instruction, bool) {
	if len(entry) < 2 {
		return nil, false
	}
	snapshot, ok := entry[1].(map[string]any)
	if !ok {
		return nil, false
	}
	ob, ok := snapshot["orderBook"].([]any)
	if !ok || len(ob) != 2 {
		return nil, false
	}
	asksMap, ok1 := ob[0].(map[string]any)
	bidsMap, ok2 := ob[1].(map[string]any)
	if !ok1 || !ok2 {
		return nil, false
	}

	bids := levelsFromMap(bidsMap)
	asks := levelsFromMap(asksMap)

	return translator.Snapshot{Bids: bids, Asks: asks}, true
}

func levelsFromMap(m map[string]any) []orderbook.Level {
	levels := make([]orderbook.Level, 0, len(m))
	for priceStr, sizeRaw := range m {
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			continue
		}
		sizeStr, ok := sizeRaw.(string)
		if !ok {
			continue
		}
		size, err := strconv.ParseFloat(sizeStr, 64)
		if err != nil {
			continue
		}
		levels = append(levels, orderbook.Level{Price: price, Liquidity: size})
	}
	return levels
}

// decodeDelta handles ["o", side_flag, price_str, size_str, epoch_ms].
// side_flag 1 is bid, 0 is ask.
func decodeDelta(entry []any) (translator.Instruction, bool) {
	if len(entry) < 4 {
		return nil, false
	}
	sideFlag, ok := toFloat(entry[1])
	if !ok {
		return nil, false
	}
	priceStr, ok := entry[2].(string)
	if !ok {
		return nil, false
	}
	sizeStr, ok := entry[3].(string)
	if !ok {
		return nil, false
	}

	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return nil, false
	}
	size, err := strconv.ParseFloat(sizeStr, 64)
	if err != nil {
		return nil, false
	}

	side := orderbook.Ask
	if sideFlag == 1 {
		side = orderbook.Bid
	}

	return translator.Deltas{Deltas: []translator.Delta{{Side: side, Price: price, Liquidity: size}}}, true
}

// decodeTrade handles ["t", trade_id, side_flag, price_str, size_str, _ts, epoch_str].
func decodeTrade(entry []any) (translator.Instruction, bool) {
	if len(entry) < 7 {
		return nil, false
	}
	sideFlag, ok := toFloat(entry[2])
	if !ok {
		return nil, false
	}
	priceStr, ok := entry[3].(string)
	if !ok {
		return nil, false
	}
	sizeStr, ok := entry[4].(string)
	if !ok {
		return nil, false
	}
	epochStr, ok := entry[6].(string)
	if !ok {
		return nil, false
	}

	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return nil, false
	}
	size, err := strconv.ParseFloat(sizeStr, 64)
	if err != nil {
		return nil, false
	}
	epochMs, err := strconv.ParseInt(epochStr, 10, 64)
	if err != nil {
		return nil, false
	}

	ts := time.UnixMilli(epochMs).UTC()

	if sideFlag == 1 {
		return translator.Buys{Trades: []translator.Trade{{Price: price, Size: size, Timestamp: ts}}}, true
	}
	return translator.Sells{Trades: []translator.Trade{{Price: price, Size: size, Timestamp: ts}}}, true
}

func toFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}
