package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the tables the services expect. Statements are
// idempotent so both the API and the worker can run it at startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			user_id     text PRIMARY KEY,
			email       text NOT NULL DEFAULT '',
			username    text NOT NULL DEFAULT '',
			kyc_status  text NOT NULL DEFAULT 'unverified',
			created_at  timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS assets (
			user_id       text NOT NULL REFERENCES accounts(user_id),
			symbol        text NOT NULL,
			amount_micros bigint NOT NULL DEFAULT 0,
			updated_at    timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, symbol)
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id            uuid PRIMARY KEY,
			user_id       text NOT NULL REFERENCES accounts(user_id),
			kind          text NOT NULL,
			symbol        text NOT NULL,
			amount_micros bigint NOT NULL,
			status        text NOT NULL DEFAULT 'completed',
			created_at    timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS transactions_user_created_idx
			ON transactions (user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS economy (
			user_id             text PRIMARY KEY REFERENCES accounts(user_id),
			apricots            bigint NOT NULL DEFAULT 0,
			lifetime_apricots   bigint NOT NULL DEFAULT 0,
			tap_level           bigint NOT NULL DEFAULT 1,
			energy              bigint NOT NULL DEFAULT 500,
			max_energy          bigint NOT NULL DEFAULT 500,
			energy_updated_at   timestamptz NOT NULL DEFAULT now(),
			bot_level           bigint NOT NULL DEFAULT 0,
			cipher_progress     int NOT NULL DEFAULT 0,
			last_cipher_claim_on date,
			last_check_in_on    date,
			check_in_streak     int NOT NULL DEFAULT 0,
			updated_at          timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS completed_tasks (
			user_id    text NOT NULL REFERENCES accounts(user_id),
			task_id    text NOT NULL,
			reward     bigint NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, task_id)
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			id                   int PRIMARY KEY,
			apricots_per_dmc     bigint NOT NULL,
			ai_enabled           boolean NOT NULL,
			platform_fee_percent double precision NOT NULL,
			secret_cipher_word   text NOT NULL,
			cipher_reward        bigint NOT NULL,
			updated_at           timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS price_points (
			symbol       text NOT NULL,
			tick_at      timestamptz NOT NULL DEFAULT now(),
			price_micros bigint NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS price_points_symbol_tick_idx
			ON price_points (symbol, tick_at DESC)`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			user_id    text NOT NULL,
			key        text NOT NULL,
			action     text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, key)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
