package store

import (
	"context"
	"sync"

	"github.com/freelilwilly/polymarket-tracker/internal/model"
)

// MemoryStore implements Store with in-memory slices. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	audit     []model.AuditRow
	seen      map[auditKey]struct{}
	summary   *model.Summary
	positions []model.Position
	accounts  []model.Account
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seen: make(map[auditKey]struct{}),
	}
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap *model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range snap.Audit {
		k := auditKey{row.RunID, row.Seq}
		if _, ok := s.seen[k]; ok {
			continue
		}
		s.seen[k] = struct{}{}
		s.audit = append(s.audit, row)
	}

	// Store copies to avoid external mutation.
	summary := snap.Summary
	s.summary = &summary
	s.positions = append([]model.Position(nil), snap.Positions...)
	s.accounts = append([]model.Account(nil), snap.Accounts...)
	return nil
}

func (s *MemoryStore) GetSummary(_ context.Context) (*model.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.summary == nil {
		return nil, ErrNotFound
	}
	summary := *s.summary
	return &summary, nil
}

func (s *MemoryStore) ListPositions(_ context.Context) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Position{}, s.positions...), nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Account{}, s.accounts...), nil
}

func (s *MemoryStore) ListAudit(_ context.Context, limit int) ([]model.AuditRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.audit)
	if limit > 0 && limit < n {
		n = limit
	}
	rows := make([]model.AuditRow, 0, n)
	for i := len(s.audit) - 1; i >= 0 && len(rows) < n; i-- {
		rows = append(rows, s.audit[i])
	}
	return rows, nil
}
