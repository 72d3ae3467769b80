// Package report periodically reads the persisted summary and logs the
// copy account's performance, warning when realized ROI falls to the
// configured threshold.
package report

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/freelilwilly/polymarket-tracker/internal/model"
	"github.com/freelilwilly/polymarket-tracker/internal/store"
)

// SummarySource is anything that can return the current summary row.
type SummarySource interface {
	GetSummary(ctx context.Context) (*model.Summary, error)
}

// Report is one reading of the summary with derived figures.
type Report struct {
	Label      string
	At         time.Time
	Summary    model.Summary
	EquityROI  decimal.Decimal // (equity - bankroll) / bankroll * 100
	Warning    bool            // realized ROI at or below the threshold
	WarnROIPct decimal.Decimal
}

// Reporter builds and logs reports from a SummarySource.
type Reporter struct {
	source   SummarySource
	label    string
	warnROI  decimal.Decimal
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewReporter creates a reporter. A nil logger means slog.Default().
func NewReporter(source SummarySource, label string, warnROIPct float64, interval time.Duration, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		source:   source,
		label:    label,
		warnROI:  decimal.NewFromFloat(warnROIPct),
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Build reads the summary and derives the report.
func (r *Reporter) Build(ctx context.Context) (*Report, error) {
	sm, err := r.source.GetSummary(ctx)
	if err != nil {
		return nil, err
	}
	return &Report{
		Label:      r.label,
		At:         r.now().UTC(),
		Summary:    *sm,
		EquityROI:  EquityROI(sm.TotalEquity, sm.StartingBankroll),
		Warning:    sm.RealizedROIPct.LessThanOrEqual(r.warnROI),
		WarnROIPct: r.warnROI,
	}, nil
}

// EquityROI returns (equity - bankroll) / bankroll * 100, or zero for a
// non-positive bankroll.
func EquityROI(equity, bankroll decimal.Decimal) decimal.Decimal {
	if !bankroll.IsPositive() {
		return decimal.Zero
	}
	return equity.Sub(bankroll).Div(bankroll).Mul(decimal.NewFromInt(100))
}

// Emit builds one report and logs it. Failures are logged, not returned,
// so a missing summary never stops the reporter.
func (r *Reporter) Emit(ctx context.Context) {
	rep, err := r.Build(ctx)
	if errors.Is(err, store.ErrNotFound) {
		r.logger.Info("tail metrics", "profile", r.label, "status", "no summary yet")
		return
	}
	if err != nil {
		r.logger.Error("reporter error", "profile", r.label, "err", err)
		return
	}

	sm := rep.Summary
	r.logger.Info("tail metrics",
		"profile", rep.Label,
		"run_start", sm.RunStart,
		"last_update", sm.LastUpdate,
		"trades", sm.ProcessedTrades,
		"starting_bankroll", sm.StartingBankroll.StringFixed(2),
		"realized_pnl", sm.RealizedPnL.StringFixed(2),
		"realized_gains", sm.RealizedGains.StringFixed(2),
		"realized_losses", sm.RealizedLosses.StringFixed(2),
		"unsold_value", sm.UnsoldValue.StringFixed(2),
		"open_positions", sm.OpenPositions,
		"tracked_accounts", sm.TrackedAccounts,
		"ending_equity", sm.TotalEquity.StringFixed(2),
		"realized_roi_pct", sm.RealizedROIPct.StringFixed(2),
		"equity_roi_pct", rep.EquityROI.StringFixed(2),
	)
	if rep.Warning {
		r.logger.Warn("realized ROI at or below threshold",
			"profile", rep.Label,
			"realized_roi_pct", sm.RealizedROIPct.StringFixed(2),
			"warn_roi_pct", rep.WarnROIPct.StringFixed(2),
		)
	}
}

// Run emits a report immediately and then every interval until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	r.logger.Info("reporter started", "profile", r.label, "interval", r.interval.String())
	r.Emit(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Emit(ctx)
		}
	}
}
