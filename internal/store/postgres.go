package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/freelilwilly/polymarket-tracker/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the tracker tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveSnapshot writes the whole snapshot in one transaction so readers never
// see positions from one event next to a summary from another.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range snap.Audit {
		if err := insertAudit(ctx, tx, &snap.Audit[i]); err != nil {
			return err
		}
	}
	if err := upsertSummary(ctx, tx, &snap.Summary); err != nil {
		return err
	}
	if err := replacePositions(ctx, tx, snap.Positions); err != nil {
		return err
	}
	if err := replaceAccounts(ctx, tx, snap.Accounts); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func insertAudit(ctx context.Context, tx pgx.Tx, r *model.AuditRow) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO trade_audit (run_id, seq, id, logged_at, trade_timestamp,
		        trader_id, trader_name, market, category, outcome, side,
		        observed_size, observed_price, percentile, multiplier,
		        target_notional, copied_notional, copied_shares, status,
		        realized_pnl, realized_pnl_total, realized_roi_pct, unsold_value,
		        total_equity_est, trade_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
		         $12::NUMERIC, $13::NUMERIC, $14, $15,
		         $16::NUMERIC, $17::NUMERIC, $18::NUMERIC, $19,
		         $20::NUMERIC, $21::NUMERIC, $22::NUMERIC, $23::NUMERIC,
		         $24::NUMERIC, $25)
		 ON CONFLICT (run_id, seq) DO NOTHING`,
		r.RunID, r.Seq, r.ID, r.LoggedAt, r.TradeTimestamp,
		r.TraderID, r.TraderName, r.Market, r.Category, r.Outcome, r.Side,
		r.ObservedSize.String(), r.ObservedPrice.String(), r.Percentile, r.Multiplier,
		r.TargetNotional.String(), r.CopiedNotional.String(), r.CopiedShares.String(), string(r.Status),
		r.RealizedPnL.String(), r.RealizedPnLTotal.String(), r.RealizedROIPct.String(), r.UnsoldValue.String(),
		r.TotalEquity.String(), r.TradeKey,
	)
	if err != nil {
		return fmt.Errorf("insert audit %s/%d: %w", r.RunID, r.Seq, err)
	}
	return nil
}

func upsertSummary(ctx context.Context, tx pgx.Tx, sm *model.Summary) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO tracker_summary (id, run_id, run_start, last_update,
		        starting_bankroll, realized_pnl, realized_gains, realized_losses,
		        realized_roi_pct, unsold_value, total_equity_est,
		        open_positions, tracked_accounts, processed_trades)
		 VALUES (1, $1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC,
		         $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE SET
		        run_id = EXCLUDED.run_id, run_start = EXCLUDED.run_start,
		        last_update = EXCLUDED.last_update,
		        starting_bankroll = EXCLUDED.starting_bankroll,
		        realized_pnl = EXCLUDED.realized_pnl,
		        realized_gains = EXCLUDED.realized_gains,
		        realized_losses = EXCLUDED.realized_losses,
		        realized_roi_pct = EXCLUDED.realized_roi_pct,
		        unsold_value = EXCLUDED.unsold_value,
		        total_equity_est = EXCLUDED.total_equity_est,
		        open_positions = EXCLUDED.open_positions,
		        tracked_accounts = EXCLUDED.tracked_accounts,
		        processed_trades = EXCLUDED.processed_trades`,
		sm.RunID, sm.RunStart, sm.LastUpdate,
		sm.StartingBankroll.String(), sm.RealizedPnL.String(), sm.RealizedGains.String(), sm.RealizedLosses.String(),
		sm.RealizedROIPct.String(), sm.UnsoldValue.String(), sm.TotalEquity.String(),
		sm.OpenPositions, sm.TrackedAccounts, sm.ProcessedTrades,
	)
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

func replacePositions(ctx context.Context, tx pgx.Tx, positions []model.Position) error {
	if _, err := tx.Exec(ctx, `DELETE FROM tracker_positions`); err != nil {
		return fmt.Errorf("clear positions: %w", err)
	}
	for _, p := range positions {
		_, err := tx.Exec(ctx,
			`INSERT INTO tracker_positions (trader_id, trader_name, market, outcome,
			        instrument_key, shares, avg_cost, last_price, current_value,
			        cost_basis, unrealized_pnl)
			 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC,
			         $9::NUMERIC, $10::NUMERIC, $11::NUMERIC)`,
			p.TraderID, p.TraderName, p.Market, p.Outcome, p.InstrumentKey,
			p.Shares.String(), p.AvgCost.String(), p.LastPrice.String(),
			p.CurrentValue.String(), p.CostBasis.String(), p.UnrealizedPnL.String(),
		)
		if err != nil {
			return fmt.Errorf("insert position %s|%s: %w", p.TraderID, p.InstrumentKey, err)
		}
	}
	return nil
}

func replaceAccounts(ctx context.Context, tx pgx.Tx, accounts []model.Account) error {
	if _, err := tx.Exec(ctx, `DELETE FROM tracker_accounts`); err != nil {
		return fmt.Errorf("clear accounts: %w", err)
	}
	for _, a := range accounts {
		_, err := tx.Exec(ctx,
			`INSERT INTO tracker_accounts (trader_id, trader_name, copied_trades,
			        copied_notional, realized_pnl, realized_gains, realized_losses,
			        open_notional)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC)`,
			a.TraderID, a.TraderName, a.CopiedTrades,
			a.CopiedNotional.String(), a.RealizedPnL.String(), a.RealizedGains.String(),
			a.RealizedLosses.String(), a.OpenNotional.String(),
		)
		if err != nil {
			return fmt.Errorf("insert account %s: %w", a.TraderID, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetSummary(ctx context.Context) (*model.Summary, error) {
	var sm model.Summary
	var bankroll, realized, gains, losses, roi, unsold, equity string

	err := s.pool.QueryRow(ctx,
		`SELECT run_id, run_start, last_update,
		        starting_bankroll::TEXT, realized_pnl::TEXT, realized_gains::TEXT,
		        realized_losses::TEXT, realized_roi_pct::TEXT, unsold_value::TEXT,
		        total_equity_est::TEXT,
		        open_positions, tracked_accounts, processed_trades
		 FROM tracker_summary WHERE id = 1`).
		Scan(&sm.RunID, &sm.RunStart, &sm.LastUpdate,
			&bankroll, &realized, &gains,
			&losses, &roi, &unsold,
			&equity,
			&sm.OpenPositions, &sm.TrackedAccounts, &sm.ProcessedTrades)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}

	sm.StartingBankroll, _ = decimal.NewFromString(bankroll)
	sm.RealizedPnL, _ = decimal.NewFromString(realized)
	sm.RealizedGains, _ = decimal.NewFromString(gains)
	sm.RealizedLosses, _ = decimal.NewFromString(losses)
	sm.RealizedROIPct, _ = decimal.NewFromString(roi)
	sm.UnsoldValue, _ = decimal.NewFromString(unsold)
	sm.TotalEquity, _ = decimal.NewFromString(equity)
	return &sm, nil
}

func (s *PostgresStore) ListPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT trader_id, trader_name, market, outcome, instrument_key,
		        shares::TEXT, avg_cost::TEXT, last_price::TEXT,
		        current_value::TEXT, cost_basis::TEXT, unrealized_pnl::TEXT
		 FROM tracker_positions ORDER BY trader_id, instrument_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	positions := []model.Position{}
	for rows.Next() {
		var p model.Position
		var shares, avgCost, lastPrice, value, basis, pnl string
		if err := rows.Scan(&p.TraderID, &p.TraderName, &p.Market, &p.Outcome, &p.InstrumentKey,
			&shares, &avgCost, &lastPrice,
			&value, &basis, &pnl); err != nil {
			return nil, err
		}
		p.Shares, _ = decimal.NewFromString(shares)
		p.AvgCost, _ = decimal.NewFromString(avgCost)
		p.LastPrice, _ = decimal.NewFromString(lastPrice)
		p.CurrentValue, _ = decimal.NewFromString(value)
		p.CostBasis, _ = decimal.NewFromString(basis)
		p.UnrealizedPnL, _ = decimal.NewFromString(pnl)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT trader_id, trader_name, copied_trades,
		        copied_notional::TEXT, realized_pnl::TEXT, realized_gains::TEXT,
		        realized_losses::TEXT, open_notional::TEXT
		 FROM tracker_accounts ORDER BY trader_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []model.Account{}
	for rows.Next() {
		var a model.Account
		var notional, realized, gains, losses, open string
		if err := rows.Scan(&a.TraderID, &a.TraderName, &a.CopiedTrades,
			&notional, &realized, &gains,
			&losses, &open); err != nil {
			return nil, err
		}
		a.CopiedNotional, _ = decimal.NewFromString(notional)
		a.RealizedPnL, _ = decimal.NewFromString(realized)
		a.RealizedGains, _ = decimal.NewFromString(gains)
		a.RealizedLosses, _ = decimal.NewFromString(losses)
		a.OpenNotional, _ = decimal.NewFromString(open)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) ListAudit(ctx context.Context, limit int) ([]model.AuditRow, error) {
	query := `SELECT run_id, seq, id, logged_at, trade_timestamp,
	                 trader_id, trader_name, market, category, outcome, side,
	                 observed_size::TEXT, observed_price::TEXT, percentile, multiplier,
	                 target_notional::TEXT, copied_notional::TEXT, copied_shares::TEXT, status,
	                 realized_pnl::TEXT, realized_pnl_total::TEXT, realized_roi_pct::TEXT,
	                 unsold_value::TEXT, total_equity_est::TEXT, trade_key
	          FROM trade_audit ORDER BY logged_at DESC, seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAuditRows(rows)
}

// pgxRows is the subset of pgx.Rows used by scanAuditRows.
type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanAuditRows(rows pgxRows) ([]model.AuditRow, error) {
	audit := []model.AuditRow{}
	for rows.Next() {
		var r model.AuditRow
		var status string
		var size, price, target, notional, shares, pnl, total, roi, unsold, equity string

		if err := rows.Scan(&r.RunID, &r.Seq, &r.ID, &r.LoggedAt, &r.TradeTimestamp,
			&r.TraderID, &r.TraderName, &r.Market, &r.Category, &r.Outcome, &r.Side,
			&size, &price, &r.Percentile, &r.Multiplier,
			&target, &notional, &shares, &status,
			&pnl, &total, &roi,
			&unsold, &equity, &r.TradeKey); err != nil {
			return nil, err
		}

		r.Status = model.Status(status)
		r.ObservedSize, _ = decimal.NewFromString(size)
		r.ObservedPrice, _ = decimal.NewFromString(price)
		r.TargetNotional, _ = decimal.NewFromString(target)
		r.CopiedNotional, _ = decimal.NewFromString(notional)
		r.CopiedShares, _ = decimal.NewFromString(shares)
		r.RealizedPnL, _ = decimal.NewFromString(pnl)
		r.RealizedPnLTotal, _ = decimal.NewFromString(total)
		r.RealizedROIPct, _ = decimal.NewFromString(roi)
		r.UnsoldValue, _ = decimal.NewFromString(unsold)
		r.TotalEquity, _ = decimal.NewFromString(equity)

		audit = append(audit, r)
	}
	return audit, rows.Err()
}
