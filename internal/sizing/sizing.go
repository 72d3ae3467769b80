// Package sizing maps a trader's observed trade size onto a copy multiplier.
//
// A trade is ranked against the trader's own size history (its percentile),
// the percentile is bent through a power curve between the minimum and
// maximum multiplier, and trades that are small relative to the trader's
// median size are shrunk by a haircut:
//
//	base = min + (max - min) * p^power
//	m    = base * max(haircutMin, (size/median)^haircutPower)   if size/median < ratio
//
// The result is clamped to [0, max(min, max)].
package sizing

import (
	"math"
	"sort"
	"sync"
)

// NeutralPercentile is the rank assigned to a trader's first observed size.
const NeutralPercentile = 0.5

// Curve holds the multiplier curve parameters. It is stateless; the size
// history is passed in by the caller.
type Curve struct {
	MinMultiplier    float64
	MaxMultiplier    float64
	Power            float64 // percentile exponent, > 0
	LowSizeRatio     float64 // size/median below which the haircut applies, 0 disables
	HaircutPower     float64 // > 0
	HaircutMinFactor float64 // in [0, 1]
}

// NewCurve returns a curve with out-of-range parameters clamped: powers are
// floored at 0.01, the ratio at 0 and the haircut floor is kept in [0, 1].
func NewCurve(minMult, maxMult, power, lowSizeRatio, haircutPower, haircutMin float64) Curve {
	return Curve{
		MinMultiplier:    minMult,
		MaxMultiplier:    maxMult,
		Power:            math.Max(0.01, power),
		LowSizeRatio:     math.Max(0, lowSizeRatio),
		HaircutPower:     math.Max(0.01, haircutPower),
		HaircutMinFactor: clamp(haircutMin, 0, 1),
	}
}

// Ceiling is the largest multiplier the curve can return.
func (c Curve) Ceiling() float64 {
	return math.Max(c.MaxMultiplier, c.MinMultiplier)
}

// Multiplier converts a size percentile into a copy multiplier. size and
// median are the observed trade size and the trader's median size before
// the trade was observed.
func (c Curve) Multiplier(percentile, size, median float64) float64 {
	p := clamp(percentile, 0, 1)
	m := c.MinMultiplier + (c.MaxMultiplier-c.MinMultiplier)*math.Pow(p, c.Power)

	if median > 0 && size > 0 && c.LowSizeRatio > 0 {
		relative := size / median
		if relative < c.LowSizeRatio {
			m *= math.Max(c.HaircutMinFactor, math.Pow(relative, c.HaircutPower))
		}
	}
	return clamp(m, 0, c.Ceiling())
}

// Percentile returns the fraction of history at or below size, or
// NeutralPercentile when history is empty.
func Percentile(history []float64, size float64) float64 {
	if len(history) == 0 {
		return NeutralPercentile
	}
	var leq int
	for _, h := range history {
		if h <= size {
			leq++
		}
	}
	return clamp(float64(leq)/float64(len(history)), 0, 1)
}

// Median returns the median of values, 0 when empty. values is not modified.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	ordered := make([]float64, n)
	copy(ordered, values)
	sort.Float64s(ordered)
	mid := n / 2
	if n%2 == 1 {
		return ordered[mid]
	}
	return (ordered[mid-1] + ordered[mid]) / 2
}

// History is the per-trader record of observed trade sizes. Observe records
// every size it ranks, zero included; Seed keeps positive sizes only. Safe
// for concurrent use.
type History struct {
	mu    sync.RWMutex
	sizes map[string][]float64
}

// NewHistory creates an empty size history.
func NewHistory() *History {
	return &History{sizes: make(map[string][]float64)}
}

// Seed replaces a trader's history with the positive entries of sizes.
func (h *History) Seed(trader string, sizes []float64) {
	kept := make([]float64, 0, len(sizes))
	for _, s := range sizes {
		if s > 0 && !math.IsInf(s, 0) {
			kept = append(kept, s)
		}
	}
	h.mu.Lock()
	h.sizes[trader] = kept
	h.mu.Unlock()
}

// Observe ranks size against the trader's history and then records it.
// The percentile is computed before size is appended.
func (h *History) Observe(trader string, size float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	history := h.sizes[trader]
	p := Percentile(history, size)
	h.sizes[trader] = append(history, size)
	return p
}

// Median returns the median of the trader's recorded sizes.
func (h *History) Median(trader string) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Median(h.sizes[trader])
}

// Len returns how many sizes are recorded for trader.
func (h *History) Len(trader string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sizes[trader])
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
