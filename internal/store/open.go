package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Open builds the store selected by the URLs: PostgreSQL, optionally behind
// a Redis cache, or the in-memory store when databaseURL is empty. The
// returned close function releases every connection opened.
func Open(ctx context.Context, databaseURL, redisURL string, cacheTTL time.Duration) (Store, func(), error) {
	if databaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		return NewMemoryStore(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	pg := NewPostgresStore(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	slog.Info("connected to PostgreSQL")

	if redisURL == "" {
		return pg, pool.Close, nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	slog.Info("Redis cache enabled", "ttl", cacheTTL.String())

	closeAll := func() {
		rdb.Close()
		pool.Close()
	}
	return NewCachedStore(pg, rdb, cacheTTL), closeAll, nil
}
