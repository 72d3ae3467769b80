// Package risk caps how much of an observed trade the copy account mirrors.
//
// A BUY is copied at the smallest of five ceilings: the sizing target, a flat
// per-trade cap, the trader's remaining exposure headroom, the instrument's
// remaining exposure headroom and the account's free cash. A SELL closes
// shares against the sizing target and per-trade cap only, except at
// resolution (price effectively 1) where the whole position settles.
package risk

import (
	"errors"
	"math"
)

var (
	// ErrIneligible is returned for sides other than BUY/SELL or a
	// non-positive price.
	ErrIneligible = errors.New("risk: trade side or price not eligible for copying")

	// ErrNoCapacity is returned when every ceiling leaves nothing to copy.
	ErrNoCapacity = errors.New("risk: no remaining capacity to copy trade")

	// ErrNoPosition is returned for a SELL with no open shares to close.
	ErrNoPosition = errors.New("risk: no open position to close")
)

// ResolvedPrice is the price at or above which a SELL is treated as market
// resolution in favour of the held outcome.
const ResolvedPrice = 1 - 1e-9

// Limiter turns a multiplier and the current exposure into copy amounts.
// All caps are fractions of the starting bankroll.
type Limiter struct {
	// Bankroll is the starting bankroll the fractions apply to.
	Bankroll float64

	// BaseRisk is the fraction of bankroll risked at multiplier 1.
	BaseRisk float64

	// MaxTrade caps the notional of a single copied trade.
	MaxTrade float64

	// MaxMarket caps open cost basis per instrument, across traders.
	MaxMarket float64

	// MaxAccount caps open cost basis per tracked trader.
	MaxAccount float64
}

// NewLimiter creates a limiter. The bankroll is floored at 1 and the
// fractions at 0.
func NewLimiter(bankroll, baseRisk, maxTrade, maxMarket, maxAccount float64) *Limiter {
	return &Limiter{
		Bankroll:   math.Max(1, bankroll),
		BaseRisk:   math.Max(0, baseRisk),
		MaxTrade:   math.Max(0, maxTrade),
		MaxMarket:  math.Max(0, maxMarket),
		MaxAccount: math.Max(0, maxAccount),
	}
}

// Exposure is the capital already committed when a trade arrives.
type Exposure struct {
	AccountOpen float64 // open cost basis of the trader
	MarketOpen  float64 // open cost basis of the instrument
	FreeCash    float64 // bankroll + realized P&L - open cost basis
}

// Caps are the ceilings that apply to one trade.
type Caps struct {
	Target          float64 `json:"target"`
	PerTrade        float64 `json:"per_trade"`
	AccountHeadroom float64 `json:"account_headroom"`
	MarketHeadroom  float64 `json:"market_headroom"`
	FreeCash        float64 `json:"free_cash"`
}

// Caps computes the ceilings for a trade sized at multiplier. Headrooms and
// free cash are floored at 0.
func (l *Limiter) Caps(multiplier float64, exp Exposure) Caps {
	return Caps{
		Target:          l.Bankroll * l.BaseRisk * multiplier,
		PerTrade:        l.Bankroll * l.MaxTrade,
		AccountHeadroom: math.Max(0, l.Bankroll*l.MaxAccount-exp.AccountOpen),
		MarketHeadroom:  math.Max(0, l.Bankroll*l.MaxMarket-exp.MarketOpen),
		FreeCash:        math.Max(0, exp.FreeCash),
	}
}

// BuyNotional returns the notional to copy on a BUY.
func (c Caps) BuyNotional() (float64, error) {
	n := math.Min(c.Target, math.Min(c.PerTrade,
		math.Min(c.AccountHeadroom, math.Min(c.MarketHeadroom, c.FreeCash))))
	if !(n > 0) {
		return 0, ErrNoCapacity
	}
	return n, nil
}

// CloseShares returns how many of held shares a SELL at price closes.
func (c Caps) CloseShares(held, price float64) (float64, error) {
	if held <= 0 {
		return 0, ErrNoPosition
	}
	if price <= 0 {
		return 0, ErrIneligible
	}
	if price >= ResolvedPrice {
		return held, nil
	}
	shares := math.Min(held, math.Min(c.Target, c.PerTrade)/price)
	if !(shares > 0) {
		return 0, ErrNoCapacity
	}
	return shares, nil
}
