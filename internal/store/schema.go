package store

// Schema creates the tracker tables. Monetary columns are NUMERIC; the
// summary table holds a single row with id = 1.
const Schema = `
CREATE TABLE IF NOT EXISTS trade_audit (
	run_id             TEXT        NOT NULL,
	seq                BIGINT      NOT NULL,
	id                 TEXT        NOT NULL,
	logged_at          TIMESTAMPTZ NOT NULL,
	trade_timestamp    TEXT        NOT NULL,
	trader_id          TEXT        NOT NULL,
	trader_name        TEXT        NOT NULL,
	market             TEXT        NOT NULL,
	category           TEXT        NOT NULL,
	outcome            TEXT        NOT NULL,
	side               TEXT        NOT NULL,
	observed_size      NUMERIC     NOT NULL,
	observed_price     NUMERIC     NOT NULL,
	percentile         DOUBLE PRECISION NOT NULL,
	multiplier         DOUBLE PRECISION NOT NULL,
	target_notional    NUMERIC     NOT NULL,
	copied_notional    NUMERIC     NOT NULL,
	copied_shares      NUMERIC     NOT NULL,
	status             TEXT        NOT NULL,
	realized_pnl       NUMERIC     NOT NULL,
	realized_pnl_total NUMERIC     NOT NULL,
	realized_roi_pct   NUMERIC     NOT NULL,
	unsold_value       NUMERIC     NOT NULL,
	total_equity_est   NUMERIC     NOT NULL,
	trade_key          TEXT        NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_trade_audit_logged_at ON trade_audit(logged_at);

CREATE TABLE IF NOT EXISTS tracker_summary (
	id                INT         PRIMARY KEY,
	run_id            TEXT        NOT NULL,
	run_start         TIMESTAMPTZ NOT NULL,
	last_update       TIMESTAMPTZ NOT NULL,
	starting_bankroll NUMERIC     NOT NULL,
	realized_pnl      NUMERIC     NOT NULL,
	realized_gains    NUMERIC     NOT NULL,
	realized_losses   NUMERIC     NOT NULL,
	realized_roi_pct  NUMERIC     NOT NULL,
	unsold_value      NUMERIC     NOT NULL,
	total_equity_est  NUMERIC     NOT NULL,
	open_positions    INT         NOT NULL,
	tracked_accounts  INT         NOT NULL,
	processed_trades  BIGINT      NOT NULL
);

CREATE TABLE IF NOT EXISTS tracker_positions (
	trader_id      TEXT    NOT NULL,
	trader_name    TEXT    NOT NULL,
	market         TEXT    NOT NULL,
	outcome        TEXT    NOT NULL,
	instrument_key TEXT    NOT NULL,
	shares         NUMERIC NOT NULL,
	avg_cost       NUMERIC NOT NULL,
	last_price     NUMERIC NOT NULL,
	current_value  NUMERIC NOT NULL,
	cost_basis     NUMERIC NOT NULL,
	unrealized_pnl NUMERIC NOT NULL,
	PRIMARY KEY (trader_id, instrument_key)
);

CREATE TABLE IF NOT EXISTS tracker_accounts (
	trader_id       TEXT    PRIMARY KEY,
	trader_name     TEXT    NOT NULL,
	copied_trades   BIGINT  NOT NULL,
	copied_notional NUMERIC NOT NULL,
	realized_pnl    NUMERIC NOT NULL,
	realized_gains  NUMERIC NOT NULL,
	realized_losses NUMERIC NOT NULL,
	open_notional   NUMERIC NOT NULL
);
`
