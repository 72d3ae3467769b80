package risk

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestCaps_Scenario(t *testing.T) {
	l := NewLimiter(1000, 0.02, 1, 1, 1)
	caps := l.Caps(1.25, Exposure{FreeCash: 1000})

	if caps.Target != 25 {
		t.Errorf("expected target 25, got %v", caps.Target)
	}
	n, err := caps.BuyNotional()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 25 {
		t.Errorf("expected notional 25, got %v", n)
	}
}

func TestBuyNotional_EachCapBinds(t *testing.T) {
	l := NewLimiter(1000, 0.1, 0.05, 0.5, 0.5)

	tests := []struct {
		name string
		exp  Exposure
		want float64
	}{
		{"per-trade cap", Exposure{FreeCash: 1000}, 50},
		{"account headroom", Exposure{AccountOpen: 480, FreeCash: 1000}, 20},
		{"market headroom", Exposure{MarketOpen: 490, FreeCash: 1000}, 10},
		{"free cash", Exposure{FreeCash: 5}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := l.Caps(1, tt.exp).BuyNotional()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(n-tt.want) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.want, n)
			}
		})
	}
}

func TestBuyNotional_NoCapacity(t *testing.T) {
	l := NewLimiter(1000, 0.1, 1, 1, 0.2)

	cases := []Exposure{
		{AccountOpen: 200, FreeCash: 1000},
		{AccountOpen: 250, FreeCash: 1000}, // over the cap floors at 0
		{FreeCash: -40},
	}
	for _, exp := range cases {
		if _, err := l.Caps(1, exp).BuyNotional(); !errors.Is(err, ErrNoCapacity) {
			t.Errorf("expected ErrNoCapacity for %+v, got %v", exp, err)
		}
	}

	if _, err := l.Caps(0, Exposure{FreeCash: 1000}).BuyNotional(); !errors.Is(err, ErrNoCapacity) {
		t.Errorf("expected ErrNoCapacity for zero multiplier, got %v", err)
	}
}

func TestBuyNotional_NeverExceedsAnyCap(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		l := NewLimiter(1+rng.Float64()*10000, rng.Float64()*0.2,
			rng.Float64(), rng.Float64(), rng.Float64())
		exp := Exposure{
			AccountOpen: rng.Float64() * l.Bankroll,
			MarketOpen:  rng.Float64() * l.Bankroll,
			FreeCash:    (rng.Float64()*2 - 0.5) * l.Bankroll,
		}
		caps := l.Caps(rng.Float64()*3, exp)
		n, err := caps.BuyNotional()
		if err != nil {
			continue
		}
		for _, ceiling := range []float64{caps.Target, caps.PerTrade, caps.AccountHeadroom, caps.MarketHeadroom, caps.FreeCash} {
			if n > ceiling {
				t.Fatalf("notional %v exceeds ceiling %v (caps %+v)", n, ceiling, caps)
			}
		}
	}
}

func TestCloseShares_Partial(t *testing.T) {
	l := NewLimiter(1000, 0.02, 1, 1, 1)
	caps := l.Caps(1.25, Exposure{})
	// close target 25 at 0.60 is 41.67 shares of 62.5 held.
	shares, err := caps.CloseShares(62.5, 0.6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(shares-25/0.6) > 1e-9 {
		t.Errorf("expected %v shares, got %v", 25/0.6, shares)
	}
}

func TestCloseShares_CappedByHeld(t *testing.T) {
	l := NewLimiter(1000, 0.5, 1, 1, 1)
	shares, err := l.Caps(1, Exposure{}).CloseShares(10, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shares != 10 {
		t.Errorf("expected all 10 shares, got %v", shares)
	}
}

func TestCloseShares_ResolutionIgnoresCaps(t *testing.T) {
	l := NewLimiter(1000, 0, 0, 0, 0)
	for _, price := range []float64{1, 0.999999999, 1 - 5e-10} {
		shares, err := l.Caps(0, Exposure{}).CloseShares(500, price)
		if err != nil {
			t.Fatalf("unexpected error at price %v: %v", price, err)
		}
		if shares != 500 {
			t.Errorf("expected full settlement at price %v, got %v", price, shares)
		}
	}
}

func TestCloseShares_Errors(t *testing.T) {
	l := NewLimiter(1000, 0.02, 1, 1, 1)
	caps := l.Caps(1, Exposure{})

	if _, err := caps.CloseShares(0, 0.5); !errors.Is(err, ErrNoPosition) {
		t.Errorf("expected ErrNoPosition, got %v", err)
	}
	if _, err := caps.CloseShares(10, 0); !errors.Is(err, ErrIneligible) {
		t.Errorf("expected ErrIneligible, got %v", err)
	}
	zero := NewLimiter(1000, 0, 1, 1, 1).Caps(1, Exposure{})
	if _, err := zero.CloseShares(10, 0.5); !errors.Is(err, ErrNoCapacity) {
		t.Errorf("expected ErrNoCapacity, got %v", err)
	}
}

func TestNewLimiter_Clamps(t *testing.T) {
	l := NewLimiter(0, -1, -0.5, -0.5, -0.5)
	if l.Bankroll != 1 {
		t.Errorf("bankroll should floor at 1, got %v", l.Bankroll)
	}
	if l.BaseRisk != 0 || l.MaxTrade != 0 || l.MaxMarket != 0 || l.MaxAccount != 0 {
		t.Errorf("fractions should floor at 0, got %+v", l)
	}
}
