// Package tracker serves the copy-trading ledger over HTTP: it records trade
// events through the ledger engine, persists the resulting snapshot and
// broadcasts each audit row to WebSocket clients.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/freelilwilly/polymarket-tracker/internal/ledger"
	"github.com/freelilwilly/polymarket-tracker/internal/metrics"
	"github.com/freelilwilly/polymarket-tracker/internal/model"
	"github.com/freelilwilly/polymarket-tracker/internal/risk"
	"github.com/freelilwilly/polymarket-tracker/internal/store"
)

// ErrPersist wraps snapshot write failures. The ledger has already applied
// the event when it is returned; the snapshot stays pending for Flush.
var ErrPersist = errors.New("persist snapshot")

// PersistPolicy controls how often a snapshot write is attempted before the
// failure is reported.
type PersistPolicy struct {
	Attempts int
	Backoff  time.Duration // doubled after each failed attempt
}

// DefaultPersistPolicy tries three times starting at 200ms.
func DefaultPersistPolicy() PersistPolicy {
	return PersistPolicy{Attempts: 3, Backoff: 200 * time.Millisecond}
}

// Service records trade events. Uses a mutex so that applying an event and
// persisting its snapshot happen as one step, in call order.
type Service struct {
	engine *ledger.Engine
	store  store.Store
	policy PersistPolicy
	wsHub  *WSHub // optional WebSocket hub for real-time broadcasts

	mu      sync.Mutex
	pending []model.AuditRow // audit rows not yet written to the store
}

// NewService creates a new tracker service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(engine *ledger.Engine, st store.Store, policy PersistPolicy, hub *WSHub) *Service {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &Service{
		engine: engine,
		store:  st,
		policy: policy,
		wsHub:  hub,
	}
}

// Engine returns the ledger engine the service records into.
func (s *Service) Engine() *ledger.Engine { return s.engine }

// Record applies one trade event and persists the resulting snapshot. When
// tradeKey is empty it is derived from the event. The returned result is
// valid even when err wraps ErrPersist.
func (s *Service) Record(ctx context.Context, ev model.TradeEvent, trader model.Trader, category, tradeKey string) (ledger.Result, error) {
	start := time.Now()
	if tradeKey == "" {
		tradeKey = model.TradeKey(ev)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.engine.Record(ev, trader, category, tradeKey)
	s.pending = append(s.pending, res.Row)
	observe(res)

	row := res.Row
	attrs := []any{
		"seq", row.Seq,
		"trader", row.TraderID,
		"market", row.Market,
		"outcome", row.Outcome,
		"side", row.Side,
		"status", row.Status,
		"copied_notional", row.CopiedNotional.StringFixed(4),
		"realized_pnl", row.RealizedPnL.StringFixed(4),
		"trade_key", row.TradeKey,
	}
	if res.Reason != nil {
		attrs = append(attrs, "reason", res.Reason.Error())
	}
	slog.Info("trade recorded", attrs...)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: "trade_recorded", Audit: &row})
	}

	err := s.persistLocked(ctx)
	metrics.RecordLatency.Observe(time.Since(start).Seconds())
	return res, err
}

// SeedHistory replaces a trader's size history.
func (s *Service) SeedHistory(trader string, sizes []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.SeedHistory(trader, sizes)
	slog.Info("size history seeded", "trader", trader, "sizes", len(sizes))
}

// Flush retries persistence of the current snapshot and any pending audit
// rows. It is safe to call at any time.
func (s *Service) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

// Pending returns how many audit rows are waiting to be persisted.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// persistLocked writes the engine's current snapshot plus pending audit
// rows, retrying with exponential backoff. Caller must hold s.mu.
func (s *Service) persistLocked(ctx context.Context) error {
	snap := s.engine.Snapshot()
	snap.Audit = s.pending
	updateGauges(&snap.Summary)

	backoff := s.policy.Backoff
	var err error
	for attempt := 1; attempt <= s.policy.Attempts; attempt++ {
		if err = s.store.SaveSnapshot(ctx, &snap); err == nil {
			s.pending = nil
			metrics.PendingAuditRows.Set(0)
			return nil
		}
		slog.Warn("snapshot write failed",
			"attempt", attempt,
			"pending_audit", len(s.pending),
			"err", err,
		)
		if attempt == s.policy.Attempts {
			break
		}
		if werr := sleep(ctx, backoff); werr != nil {
			err = werr
			break
		}
		backoff *= 2
	}

	metrics.PersistFailures.Inc()
	metrics.PendingAuditRows.Set(float64(len(s.pending)))
	slog.Error("snapshot not persisted", "pending_audit", len(s.pending), "err", err)
	return fmt.Errorf("%w: %w", ErrPersist, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func observe(res ledger.Result) {
	row := res.Row
	metrics.TradesTotal.WithLabelValues(string(row.Status)).Inc()
	if row.Status == model.StatusIgnored {
		metrics.IgnoredTotal.WithLabelValues(reasonLabel(res.Reason)).Inc()
		return
	}
	metrics.CopiedNotional.WithLabelValues(row.Side).Add(row.CopiedNotional.InexactFloat64())
}

func updateGauges(sm *model.Summary) {
	metrics.RealizedPnL.Set(sm.RealizedPnL.InexactFloat64())
	metrics.TotalEquity.Set(sm.TotalEquity.InexactFloat64())
	metrics.UnsoldValue.Set(sm.UnsoldValue.InexactFloat64())
	metrics.OpenPositions.Set(float64(sm.OpenPositions))
}

func reasonLabel(err error) string {
	switch {
	case errors.Is(err, risk.ErrIneligible):
		return "ineligible"
	case errors.Is(err, risk.ErrNoCapacity):
		return "no_capacity"
	case errors.Is(err, risk.ErrNoPosition):
		return "no_position"
	default:
		return "other"
	}
}
