package ledger

import "math"

// Params configures an Engine. They are fixed for the engine's lifetime.
// Out-of-range values are clamped by Normalize, never rejected.
type Params struct {
	StartingBankroll      float64 `yaml:"starting_bankroll" json:"starting_bankroll"`
	BaseRiskPct           float64 `yaml:"base_risk_pct" json:"base_risk_pct"`
	MinMultiplier         float64 `yaml:"min_multiplier" json:"min_multiplier"`
	MaxMultiplier         float64 `yaml:"max_multiplier" json:"max_multiplier"`
	MaxTradeNotionalPct   float64 `yaml:"max_trade_notional_pct" json:"max_trade_notional_pct"`
	MaxMarketNotionalPct  float64 `yaml:"max_market_notional_pct" json:"max_market_notional_pct"`
	MaxAccountNotionalPct float64 `yaml:"max_account_notional_pct" json:"max_account_notional_pct"`
	CurvePower            float64 `yaml:"curve_power" json:"curve_power"`
	LowSizeThresholdRatio float64 `yaml:"low_size_threshold_ratio" json:"low_size_threshold_ratio"`
	LowSizeHaircutPower   float64 `yaml:"low_size_haircut_power" json:"low_size_haircut_power"`
	LowSizeHaircutMin     float64 `yaml:"low_size_haircut_min_factor" json:"low_size_haircut_min_factor"`
}

// DefaultParams returns the parameters of the reference tail-copy profile.
func DefaultParams() Params {
	return Params{
		StartingBankroll:      1000,
		BaseRiskPct:           0.01,
		MinMultiplier:         0.5,
		MaxMultiplier:         3.0,
		MaxTradeNotionalPct:   0.05,
		MaxMarketNotionalPct:  0.10,
		MaxAccountNotionalPct: 0.25,
		CurvePower:            1.35,
		LowSizeThresholdRatio: 0.12,
		LowSizeHaircutPower:   0.5,
		LowSizeHaircutMin:     0.35,
	}
}

// Normalize clamps every parameter into its valid range: bankroll >= 1,
// risk and cap fractions >= 0, powers >= 0.01, threshold >= 0 and the
// haircut floor in [0, 1]. Non-finite values fall back to DefaultParams.
func (p Params) Normalize() Params {
	d := DefaultParams()
	finite(&p.StartingBankroll, d.StartingBankroll)
	finite(&p.BaseRiskPct, d.BaseRiskPct)
	finite(&p.MinMultiplier, d.MinMultiplier)
	finite(&p.MaxMultiplier, d.MaxMultiplier)
	finite(&p.MaxTradeNotionalPct, d.MaxTradeNotionalPct)
	finite(&p.MaxMarketNotionalPct, d.MaxMarketNotionalPct)
	finite(&p.MaxAccountNotionalPct, d.MaxAccountNotionalPct)
	finite(&p.CurvePower, d.CurvePower)
	finite(&p.LowSizeThresholdRatio, d.LowSizeThresholdRatio)
	finite(&p.LowSizeHaircutPower, d.LowSizeHaircutPower)
	finite(&p.LowSizeHaircutMin, d.LowSizeHaircutMin)

	p.StartingBankroll = math.Max(1, p.StartingBankroll)
	p.BaseRiskPct = math.Max(0, p.BaseRiskPct)
	p.MaxTradeNotionalPct = math.Max(0, p.MaxTradeNotionalPct)
	p.MaxMarketNotionalPct = math.Max(0, p.MaxMarketNotionalPct)
	p.MaxAccountNotionalPct = math.Max(0, p.MaxAccountNotionalPct)
	p.CurvePower = math.Max(0.01, p.CurvePower)
	p.LowSizeThresholdRatio = math.Max(0, p.LowSizeThresholdRatio)
	p.LowSizeHaircutPower = math.Max(0.01, p.LowSizeHaircutPower)
	p.LowSizeHaircutMin = math.Max(0, math.Min(1, p.LowSizeHaircutMin))
	return p
}

func finite(v *float64, fallback float64) {
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		*v = fallback
	}
}
