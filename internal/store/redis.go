package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/freelilwilly/polymarket-tracker/internal/model"
)

const (
	summaryKey   = "tracker:summary"
	positionsKey = "tracker:positions"
	accountsKey  = "tracker:accounts"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis cache of the
// current record sets. Snapshots are written to the primary first and then
// cached; reads check Redis first then fall back to the primary. The audit
// log is never cached.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through ---

func (s *CachedStore) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if err := s.primary.SaveSnapshot(ctx, snap); err != nil {
		// Drop cached sets so readers fall back to the primary.
		s.rdb.Del(ctx, summaryKey, positionsKey, accountsKey)
		return err
	}
	s.cache(ctx, summaryKey, snap.Summary)
	s.cache(ctx, positionsKey, snap.Positions)
	s.cache(ctx, accountsKey, snap.Accounts)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetSummary(ctx context.Context) (*model.Summary, error) {
	var sm model.Summary
	if s.lookup(ctx, summaryKey, &sm) {
		return &sm, nil
	}

	// Cache miss: read from primary.
	out, err := s.primary.GetSummary(ctx)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, summaryKey, out)
	return out, nil
}

func (s *CachedStore) ListPositions(ctx context.Context) ([]model.Position, error) {
	var positions []model.Position
	if s.lookup(ctx, positionsKey, &positions) {
		return positions, nil
	}

	positions, err := s.primary.ListPositions(ctx)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, positionsKey, positions)
	return positions, nil
}

func (s *CachedStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	if s.lookup(ctx, accountsKey, &accounts) {
		return accounts, nil
	}

	accounts, err := s.primary.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, accountsKey, accounts)
	return accounts, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListAudit(ctx context.Context, limit int) ([]model.AuditRow, error) {
	return s.primary.ListAudit(ctx, limit)
}

// --- Cache helpers ---

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func (s *CachedStore) lookup(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}
