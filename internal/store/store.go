// Package store persists the tracker's snapshot: the append-only audit log
// plus the current summary, positions and accounts. Implementations include
// PostgreSQL (source of truth), Redis (write-through cache) and in-memory
// (for testing and local runs).
package store

import (
	"context"
	"errors"

	"github.com/freelilwilly/polymarket-tracker/internal/model"
)

// ErrNotFound is returned when no summary has been saved yet.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface. SaveSnapshot must be idempotent:
// saving the same snapshot twice leaves the store exactly as saving it once.
type Store interface {
	// SaveSnapshot appends snap.Audit (rows already stored are skipped) and
	// replaces the summary, positions and accounts with the snapshot's.
	SaveSnapshot(ctx context.Context, snap *model.Snapshot) error

	// GetSummary returns the current summary row.
	GetSummary(ctx context.Context) (*model.Summary, error)

	// ListPositions returns the current open positions.
	ListPositions(ctx context.Context) ([]model.Position, error)

	// ListAccounts returns the current per-trader aggregates.
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// ListAudit returns up to limit audit rows, newest first. limit <= 0
	// returns every row.
	ListAudit(ctx context.Context, limit int) ([]model.AuditRow, error)
}

// auditKey identifies an audit row across runs.
type auditKey struct {
	runID string
	seq   int64
}
