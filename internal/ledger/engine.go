// Package ledger is the copy-trading accounting engine. It sizes each
// observed trade, caps it against the account's risk limits, applies it to
// the book of open positions and keeps per-trader and account-wide P&L.
//
// Engine is single-writer: all mutation goes through Record (and SeedHistory)
// under one mutex, so events are applied strictly in call order.
package ledger

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/freelilwilly/polymarket-tracker/internal/coerce"
	"github.com/freelilwilly/polymarket-tracker/internal/instrument"
	"github.com/freelilwilly/polymarket-tracker/internal/model"
	"github.com/freelilwilly/polymarket-tracker/internal/risk"
	"github.com/freelilwilly/polymarket-tracker/internal/sizing"
)

// DustShares is the share count at or below which a position is closed out.
const DustShares = 1e-10

const unknownTrader = "unknown_wallet"

// position is one open copy position.
type position struct {
	traderID   string
	traderName string
	inst       instrument.Instrument
	shares     float64
	avgCost    float64
	lastPrice  float64
}

// account is the running tally for one tracked trader.
type account struct {
	name           string
	copiedTrades   int64
	copiedNotional float64
	realized       float64
	gains          float64
	losses         float64
}

// Result is the outcome of recording one trade event.
type Result struct {
	Row model.AuditRow
	// Reason explains an IGNORED status; nil otherwise.
	Reason error
}

// Totals are the account-wide figures derived from the live ledger.
type Totals struct {
	RealizedPnL     float64
	RealizedGains   float64
	RealizedLosses  float64
	ProcessedTrades int64
	UnsoldValue     float64
	OpenCostBasis   float64
	UnrealizedPnL   float64
	FreeBankroll    float64
	TotalEquity     float64
	RealizedROIPct  float64
}

// Engine owns the size history, open positions and P&L of one copy account.
type Engine struct {
	mu sync.Mutex

	params  Params
	curve   sizing.Curve
	limiter *risk.Limiter
	history *sizing.History
	now     func() time.Time

	runID      string
	runStart   time.Time
	lastUpdate time.Time
	seq        int64

	positions   map[string]*position
	accounts    map[string]*account
	accountOpen map[string]float64 // trader -> open cost basis
	marketOpen  map[string]float64 // instrument key -> open cost basis

	realized  float64
	gains     float64
	losses    float64
	processed int64
}

// NewEngine creates an engine with normalized params. now supplies event
// timestamps; nil means time.Now.
func NewEngine(p Params, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	p = p.Normalize()
	start := now().UTC()
	return &Engine{
		params: p,
		curve: sizing.NewCurve(p.MinMultiplier, p.MaxMultiplier, p.CurvePower,
			p.LowSizeThresholdRatio, p.LowSizeHaircutPower, p.LowSizeHaircutMin),
		limiter: risk.NewLimiter(p.StartingBankroll, p.BaseRiskPct,
			p.MaxTradeNotionalPct, p.MaxMarketNotionalPct, p.MaxAccountNotionalPct),
		history:     sizing.NewHistory(),
		now:         now,
		runID:       uuid.NewString(),
		runStart:    start,
		lastUpdate:  start,
		positions:   make(map[string]*position),
		accounts:    make(map[string]*account),
		accountOpen: make(map[string]float64),
		marketOpen:  make(map[string]float64),
	}
}

// Params returns the normalized parameters the engine runs with.
func (e *Engine) Params() Params { return e.params }

// RunID identifies this engine instance in persisted audit rows.
func (e *Engine) RunID() string { return e.runID }

// SeedHistory replaces a trader's size history, keeping positive sizes only.
func (e *Engine) SeedHistory(trader string, sizes []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.Seed(trader, sizes)
}

// Record applies one trade event executed by trader and returns its audit
// row. category and tradeKey are carried into the audit row unchanged.
func (e *Engine) Record(ev model.TradeEvent, trader model.Trader, category, tradeKey string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	traderID := trader.ID
	if traderID == "" {
		traderID = unknownTrader
	}
	name := trader.Name
	if name == "" {
		name = traderID
	}
	side := coerce.Side(ev.Side)
	size := coerce.Size(ev.Size).Value
	price := coerce.Price(ev.Price).Value
	inst := instrument.FromEvent(ev)
	key := instrument.PositionKey(traderID, inst.Key)

	median := e.history.Median(traderID)
	percentile := e.history.Observe(traderID, size)
	multiplier := e.curve.Multiplier(percentile, size, median)

	caps := e.limiter.Caps(multiplier, risk.Exposure{
		AccountOpen: e.accountOpen[traderID],
		MarketOpen:  e.marketOpen[inst.Key],
		FreeCash:    e.totals().FreeBankroll,
	})

	acct := e.accounts[traderID]
	if acct == nil {
		acct = &account{}
		e.accounts[traderID] = acct
	}
	acct.name = name

	status := model.StatusIgnored
	var notional, shares, tradePnL float64
	var reason error
	switch {
	case price <= 0 || (side != model.SideBuy && side != model.SideSell):
		reason = risk.ErrIneligible
	case side == model.SideBuy:
		notional, shares, reason = e.open(key, traderID, name, inst, price, caps)
		if reason == nil {
			status = model.StatusOpened
		}
	default:
		notional, shares, tradePnL, reason = e.close(key, traderID, inst, price, caps)
		if reason == nil {
			status = model.StatusClosed
		}
	}

	if status != model.StatusIgnored {
		e.processed++
		e.realized += tradePnL
		acct.realized += tradePnL
		if tradePnL >= 0 {
			e.gains += tradePnL
			acct.gains += tradePnL
		} else {
			e.losses -= tradePnL
			acct.losses -= tradePnL
		}
		acct.copiedTrades++
		acct.copiedNotional += notional
	}

	e.seq++
	e.lastUpdate = e.now().UTC()
	t := e.totals()

	return Result{
		Reason: reason,
		Row: model.AuditRow{
			ID:               uuid.NewString(),
			RunID:            e.runID,
			Seq:              e.seq,
			LoggedAt:         e.lastUpdate,
			TradeTimestamp:   coerce.Timestamp(ev.Timestamp),
			TraderID:         traderID,
			TraderName:       name,
			Market:           inst.Market,
			Category:         category,
			Outcome:          inst.Outcome,
			Side:             side,
			ObservedSize:     dec(size),
			ObservedPrice:    dec(price),
			Percentile:       percentile,
			Multiplier:       multiplier,
			TargetNotional:   dec(caps.Target),
			CopiedNotional:   dec(notional),
			CopiedShares:     dec(shares),
			Status:           status,
			RealizedPnL:      dec(tradePnL),
			RealizedPnLTotal: dec(t.RealizedPnL),
			RealizedROIPct:   dec(t.RealizedROIPct),
			UnsoldValue:      dec(t.UnsoldValue),
			TotalEquity:      dec(t.TotalEquity),
			TradeKey:         tradeKey,
		},
	}
}

// open copies a BUY into the position at key.
func (e *Engine) open(key, traderID, name string, inst instrument.Instrument, price float64, caps risk.Caps) (notional, shares float64, err error) {
	notional, err = caps.BuyNotional()
	if err != nil {
		return 0, 0, err
	}
	shares = notional / price
	// A subnormal price overflows shares; refuse it before touching the book.
	if math.IsInf(shares, 0) || math.IsNaN(shares) {
		return 0, 0, risk.ErrNoCapacity
	}

	pos := e.positions[key]
	if pos == nil {
		pos = &position{traderID: traderID, traderName: name, inst: inst}
		e.positions[key] = pos
	}
	total := pos.shares + shares
	pos.avgCost = (pos.shares*pos.avgCost + shares*price) / total
	pos.shares = total
	pos.lastPrice = price

	e.accountOpen[traderID] += notional
	e.marketOpen[inst.Key] += notional
	return notional, shares, nil
}

// close copies a SELL against the position at key. The open-notional
// trackers release cost basis, not sale proceeds.
func (e *Engine) close(key, traderID string, inst instrument.Instrument, price float64, caps risk.Caps) (notional, shares, pnl float64, err error) {
	pos := e.positions[key]
	if pos == nil {
		return 0, 0, 0, risk.ErrNoPosition
	}
	shares, err = caps.CloseShares(pos.shares, price)
	if err != nil {
		return 0, 0, 0, err
	}

	notional = shares * price
	pnl = (price - pos.avgCost) * shares
	released := shares * pos.avgCost

	pos.shares -= shares
	pos.lastPrice = price
	e.accountOpen[traderID] = math.Max(0, e.accountOpen[traderID]-released)
	e.marketOpen[inst.Key] = math.Max(0, e.marketOpen[inst.Key]-released)

	if pos.shares <= DustShares {
		delete(e.positions, key)
	}
	return notional, shares, pnl, nil
}

// Totals returns the account-wide figures as of the last applied event.
func (e *Engine) Totals() Totals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totals()
}

func (e *Engine) totals() Totals {
	var unsold, basis float64
	for _, p := range e.positions {
		unsold += p.shares * p.lastPrice
		basis += p.shares * p.avgCost
	}
	unrealized := unsold - basis
	bankroll := e.params.StartingBankroll
	return Totals{
		RealizedPnL:     e.realized,
		RealizedGains:   e.gains,
		RealizedLosses:  e.losses,
		ProcessedTrades: e.processed,
		UnsoldValue:     unsold,
		OpenCostBasis:   basis,
		UnrealizedPnL:   unrealized,
		FreeBankroll:    bankroll + e.realized - basis,
		TotalEquity:     bankroll + e.realized + unrealized,
		RealizedROIPct:  e.realized / bankroll * 100,
	}
}

// HasOpenPositions reports whether trader holds any copied shares.
func (e *Engine) HasOpenPositions(trader string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.positions {
		if p.traderID == trader && p.shares > 0 {
			return true
		}
	}
	return false
}

// TradersWithOpenPositions lists, sorted, every trader holding copied shares.
func (e *Engine) TradersWithOpenPositions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]bool)
	for key, p := range e.positions {
		if p.shares <= 0 {
			continue
		}
		trader, _, err := instrument.SplitPositionKey(key)
		if err != nil {
			continue
		}
		seen[trader] = true
	}
	traders := make([]string, 0, len(seen))
	for t := range seen {
		traders = append(traders, t)
	}
	sort.Strings(traders)
	return traders
}

// IsIgnoredReason reports whether err is one of the reasons a trade is not
// copied, as opposed to a failure.
func IsIgnoredReason(err error) bool {
	return errors.Is(err, risk.ErrIneligible) ||
		errors.Is(err, risk.ErrNoCapacity) ||
		errors.Is(err, risk.ErrNoPosition)
}

// dec converts engine floats at the snapshot boundary. decimal panics on
// NaN and Inf, so those become zero.
func dec(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}
