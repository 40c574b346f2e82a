// Package market defines the market descriptor — the immutable,
// configuration-time record identifying one (exchange, market type, base,
// quote) data feed.
package market

import (
	"strings"
	"time"
)

// Type is a market type, e.g. spot or perpetual futures.
type Type string

const (
	Spot Type = "spot"
	Perp Type = "perp"
)

// Descriptor is a (exchange, market-type, base, quote) tuple plus the
// transport/translator selection needed to start a session for it. Created
// at configuration time and immutable thereafter.
type Descriptor struct {
	Exchange           string
	Type               Type
	Base               string
	Quote              string
	Endpoint           string
	TranslatorSelector string
	PingRequired       bool
	PingInterval       time.Duration
}

// Tag is the canonical downstream identifier: <EXCHANGE>.<TYPE>:<BASE>-<QUOTE>,
// fully uppercased. Fields contain no dots, colons, or hyphens.
func (d Descriptor) Tag() string {
	return strings.ToUpper(d.Exchange) + "." + strings.ToUpper(string(d.Type)) + ":" +
		strings.ToUpper(d.Base) + "-" + strings.ToUpper(d.Quote)
}
