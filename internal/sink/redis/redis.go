// Package redis is a worked example of internal/sink's BookSink and
// TradeSink interfaces: it publishes normalized snapshot/delta/trade events
// to per-market Redis pub/sub channels. Grounded on the teacher corpus's
// Redis trade-execution publisher (same Publish-to-topic shape, generalized
// from a single global client and two fixed topics to one client shared
// across every configured market, with one channel per market tag).
//
// This is a message-bus notifier, not the relational/timeseries persistence
// layer the spec places out of scope — nothing here reads the published
// events back.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/marketfeed/l2ingest/internal/apperror"
	"github.com/marketfeed/l2ingest/internal/logger"
	"github.com/marketfeed/l2ingest/internal/orderbook"
	"github.com/marketfeed/l2ingest/internal/translator"
)

// Config configures the Redis connection and channel naming.
type Config struct {
	Addr           string
	Password       string
	DB             int
	ChannelPrefix  string
	PublishTimeout time.Duration
}

// DefaultConfig returns sane defaults for ChannelPrefix and PublishTimeout.
func DefaultConfig(addr string) Config {
	return Config{Addr: addr, ChannelPrefix: "l2", PublishTimeout: 3 * time.Second}
}

// Sink implements both sink.BookSink and sink.TradeSink over one Redis
// client, publishing to "<prefix>.book.<tag>" and "<prefix>.trades.<tag>".
type Sink struct {
	client *redis.Client
	cfg    Config
	log    logger.LoggerInterface
}

// New creates a Sink. It does not ping the server; call Ping to verify
// connectivity before relying on the connection.
func New(cfg Config, log logger.LoggerInterface) *Sink {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Sink{client: client, cfg: cfg, log: log}
}

// Ping verifies connectivity to the Redis server.
func (s *Sink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close shuts down the underlying Redis client.
func (s *Sink) Close() error {
	return s.client.Close()
}

func (s *Sink) bookChannel(tag string) string   { return s.cfg.ChannelPrefix + ".book." + tag }
func (s *Sink) tradesChannel(tag string) string { return s.cfg.ChannelPrefix + ".trades." + tag }

// bookLevel is the wire shape for one price level: price/liquidity arrive
// from the translator as float64 per spec, but are reformatted to
// shopspring/decimal strings here, at the one boundary where venues already
// hand us decimal strings and no further float arithmetic happens.
type bookLevel struct {
	Price     string `json:"price"`
	Liquidity string `json:"liquidity"`
}

type bookSnapshotEvent struct {
	Market string      `json:"market"`
	Bids   []bookLevel `json:"bids"`
	Asks   []bookLevel `json:"asks"`
}

type bookDeltaEvent struct {
	Market string      `json:"market"`
	Side   string      `json:"side"`
	Levels []bookLevel `json:"levels"`
}

type tradeEvent struct {
	Market    string    `json:"market"`
	Side      string    `json:"side"`
	Price     string    `json:"price"`
	Size      string    `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

func toDecimalString(f float64) string {
	return decimal.NewFromFloat(f).String()
}

func levelsToWire(levels []orderbook.Level) []bookLevel {
	out := make([]bookLevel, len(levels))
	for i, l := range levels {
		out[i] = bookLevel{Price: toDecimalString(l.Price), Liquidity: toDecimalString(l.Liquidity)}
	}
	return out
}

// ApplySnapshot publishes a full book replacement.
func (s *Sink) ApplySnapshot(ctx context.Context, tag string, bids, asks []orderbook.Level) error {
	return s.publish(ctx, s.bookChannel(tag), bookSnapshotEvent{
		Market: tag,
		Bids:   levelsToWire(bids),
		Asks:   levelsToWire(asks),
	})
}

// ApplyDeltas publishes one event per side present in deltas, bid event
// first, then ask event. Within each side the levels keep the order the
// translator emitted them in; interleaving across sides is not kept.
func (s *Sink) ApplyDeltas(ctx context.Context, tag string, deltas []translator.Delta) error {
	var bidLevels, askLevels []bookLevel
	for _, d := range deltas {
		lv := bookLevel{Price: toDecimalString(d.Price), Liquidity: toDecimalString(d.Liquidity)}
		if d.Side == orderbook.Bid {
			bidLevels = append(bidLevels, lv)
		} else {
			askLevels = append(askLevels, lv)
		}
	}

	if len(bidLevels) > 0 {
		if err := s.publish(ctx, s.bookChannel(tag), bookDeltaEvent{Market: tag, Side: "bid", Levels: bidLevels}); err != nil {
			return err
		}
	}
	if len(askLevels) > 0 {
		if err := s.publish(ctx, s.bookChannel(tag), bookDeltaEvent{Market: tag, Side: "ask", Levels: askLevels}); err != nil {
			return err
		}
	}
	return nil
}

// Buys publishes each buy print to the market's trades channel.
func (s *Sink) Buys(ctx context.Context, tag string, trades []translator.Trade) error {
	return s.publishTrades(ctx, tag, "buy", trades)
}

// Sells publishes each sell print to the market's trades channel.
func (s *Sink) Sells(ctx context.Context, tag string, trades []translator.Trade) error {
	return s.publishTrades(ctx, tag, "sell", trades)
}

func (s *Sink) publishTrades(ctx context.Context, tag, side string, trades []translator.Trade) error {
	for _, t := range trades {
		err := s.publish(ctx, s.tradesChannel(tag), tradeEvent{
			Market:    tag,
			Side:      side,
			Price:     toDecimalString(t.Price),
			Size:      toDecimalString(t.Size),
			Timestamp: t.Timestamp,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) publish(ctx context.Context, channel string, payload any) error {
	publishCtx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
	defer cancel()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("redis sink: marshal event: %w", err)
	}

	if err := s.client.Publish(publishCtx, channel, data).Err(); err != nil {
		s.log.Warn(ctx, "redis publish failed", "channel", channel, "error", err)
		return apperror.SinkError(apperror.CodeSinkUnavailable, channel, err)
	}
	return nil
}
