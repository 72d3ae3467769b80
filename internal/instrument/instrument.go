// Package instrument derives the identity of one copyable market side from a
// trade event, and the position key that scopes it to a trader.
package instrument

import (
	"errors"
	"fmt"
	"strings"

	"github.com/freelilwilly/polymarket-tracker/internal/model"
)

const (
	unknownMarket  = "Unknown Market"
	unknownOutcome = "Unknown"
	unknownBase    = "unknown"
	separator      = "|"
)

// ErrInvalidPositionKey is returned when a position key has no trader part.
var ErrInvalidPositionKey = errors.New("instrument: invalid position key")

// Instrument is one outcome of one market.
type Instrument struct {
	Market  string `json:"market"`  // display title
	Outcome string `json:"outcome"` // outcome label as sent upstream
	Key     string `json:"key"`     // lower-cased "base|outcome"
}

// FromEvent derives the instrument a trade was executed on. The market base
// id prefers the asset token, then the market slug, event slug and condition
// id; the key is case-normalized so "Yes" and "YES" land on the same side.
func FromEvent(ev model.TradeEvent) Instrument {
	market := firstNonEmpty(ev.Title, ev.Slug, ev.EventSlug)
	if market == "" {
		market = unknownMarket
	}
	outcome := ev.Outcome
	if outcome == "" {
		outcome = unknownOutcome
	}
	base := firstNonEmpty(ev.Asset, ev.Slug, ev.EventSlug, ev.ConditionID)
	if base == "" {
		base = unknownBase
	}
	return Instrument{
		Market:  market,
		Outcome: outcome,
		Key:     strings.ToLower(base + separator + outcome),
	}
}

// PositionKey scopes an instrument key to a trader.
func PositionKey(trader, instrumentKey string) string {
	return trader + separator + instrumentKey
}

// SplitPositionKey returns the trader and instrument key of a position key.
func SplitPositionKey(key string) (trader, instrumentKey string, err error) {
	trader, instrumentKey, ok := strings.Cut(key, separator)
	if !ok || trader == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPositionKey, key)
	}
	return trader, instrumentKey, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
