// Package model defines the domain types shared across the copy-trading
// tracker: inbound trade events and the four record sets of the outbound
// snapshot. Monetary values in snapshot records use shopspring/decimal.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/freelilwilly/polymarket-tracker/internal/coerce"
)

// Status is the outcome of recording one trade event.
type Status string

const (
	StatusOpened  Status = "OPENED"
	StatusClosed  Status = "CLOSED"
	StatusIgnored Status = "IGNORED"
)

// Trade sides accepted for copying.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// TradeEvent is one trade executed by a tracked trader, as delivered by the
// upstream activity source. Numeric fields are loosely typed because the
// source is not trusted to send well-formed numbers.
type TradeEvent struct {
	ID              string `json:"id,omitempty"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	Side            string `json:"side"`
	Size            any    `json:"size"`
	Price           any    `json:"price"`
	Timestamp       any    `json:"timestamp"`
	Title           string `json:"title,omitempty"`
	Slug            string `json:"slug,omitempty"`
	EventSlug       string `json:"event_slug,omitempty"`
	Asset           string `json:"asset,omitempty"`
	ConditionID     string `json:"condition_id,omitempty"`
	Outcome         string `json:"outcome,omitempty"`
}

// TradeKey returns the idempotency key of a trade: the source trade id when
// present, otherwise a composite of the fields that identify the fill.
func TradeKey(ev TradeEvent) string {
	if ev.ID != "" {
		return ev.ID
	}
	return fmt.Sprintf("%s:%s:%s:%s:%s:%s:%s",
		ev.TransactionHash, coerce.String(ev.Timestamp), ev.Asset, ev.Outcome,
		ev.Side, coerce.String(ev.Size), coerce.String(ev.Price))
}

// Trader identifies the account whose trades are mirrored.
type Trader struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AuditRow is the immutable record of one processed trade event.
// Rows are keyed by (RunID, Seq) so re-persisting them is idempotent.
type AuditRow struct {
	ID               string          `json:"id"`
	RunID            string          `json:"run_id"`
	Seq              int64           `json:"seq"`
	LoggedAt         time.Time       `json:"logged_at"`
	TradeTimestamp   string          `json:"trade_timestamp"`
	TraderID         string          `json:"trader_id"`
	TraderName       string          `json:"trader_name"`
	Market           string          `json:"market"`
	Category         string          `json:"category"`
	Outcome          string          `json:"outcome"`
	Side             string          `json:"side"`
	ObservedSize     decimal.Decimal `json:"observed_size"`
	ObservedPrice    decimal.Decimal `json:"observed_price"`
	Percentile       float64         `json:"percentile"`
	Multiplier       float64         `json:"multiplier"`
	TargetNotional   decimal.Decimal `json:"target_notional"`
	CopiedNotional   decimal.Decimal `json:"copied_notional"`
	CopiedShares     decimal.Decimal `json:"copied_shares"`
	Status           Status          `json:"status"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	RealizedPnLTotal decimal.Decimal `json:"realized_pnl_total"`
	RealizedROIPct   decimal.Decimal `json:"realized_roi_pct"`
	UnsoldValue      decimal.Decimal `json:"unsold_value"`
	TotalEquity      decimal.Decimal `json:"total_equity_est"`
	TradeKey         string          `json:"trade_key"`
}

// Summary is the single current row describing the whole copy account.
type Summary struct {
	RunID            string          `json:"run_id"`
	RunStart         time.Time       `json:"run_start"`
	LastUpdate       time.Time       `json:"last_update"`
	StartingBankroll decimal.Decimal `json:"starting_bankroll"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	RealizedGains    decimal.Decimal `json:"realized_gains"`
	RealizedLosses   decimal.Decimal `json:"realized_losses"`
	RealizedROIPct   decimal.Decimal `json:"realized_roi_pct"`
	UnsoldValue      decimal.Decimal `json:"unsold_value"`
	TotalEquity      decimal.Decimal `json:"total_equity_est"`
	OpenPositions    int             `json:"open_positions"`
	TrackedAccounts  int             `json:"tracked_accounts"`
	ProcessedTrades  int64           `json:"processed_trades"`
}

// Position is one live copied position, marked to its last observed price.
type Position struct {
	TraderID      string          `json:"trader_id"`
	TraderName    string          `json:"trader_name"`
	Market        string          `json:"market"`
	Outcome       string          `json:"outcome"`
	InstrumentKey string          `json:"instrument_key"`
	Shares        decimal.Decimal `json:"shares"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	LastPrice     decimal.Decimal `json:"last_price"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Account aggregates copy activity for one tracked trader.
type Account struct {
	TraderID       string          `json:"trader_id"`
	TraderName     string          `json:"trader_name"`
	CopiedTrades   int64           `json:"copied_trades"`
	CopiedNotional decimal.Decimal `json:"copied_notional"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	RealizedGains  decimal.Decimal `json:"realized_gains"`
	RealizedLosses decimal.Decimal `json:"realized_losses"`
	OpenNotional   decimal.Decimal `json:"open_notional"`
}

// Snapshot is the materialized state written to the store after each event.
// Audit carries the rows not yet durably written; the other sets replace
// whatever the store held before.
type Snapshot struct {
	Audit     []AuditRow `json:"audit"`
	Summary   Summary    `json:"summary"`
	Positions []Position `json:"positions"`
	Accounts  []Account  `json:"accounts"`
}
