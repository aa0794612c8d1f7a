package postgres

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/errors"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/storage/sqlstore"
)

// Dialect is the postgres flavour of the vault schema.
var Dialect = sqlstore.Dialect{
	Name:                 "postgres",
	NumberedPlaceholders: true,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS vault_state_v1 (
			id             SMALLINT PRIMARY KEY CHECK (id = 1),
			version        BIGINT NOT NULL,
			initialized    BIGINT NOT NULL,
			asset_ref      TEXT NOT NULL,
			admin          TEXT NOT NULL,
			deposit_fee_bp BIGINT NOT NULL,
			total_deposits NUMERIC(78, 0) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vault_state_v2 (
			id              SMALLINT PRIMARY KEY CHECK (id = 1),
			deposits_paused BOOLEAN NOT NULL,
			yield_rate_bp   BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vault_state_v3 (
			id                  SMALLINT PRIMARY KEY CHECK (id = 1),
			withdrawal_delay_ns BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			owner      TEXT PRIMARY KEY,
			balance    NUMERIC(78, 0) NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS yield_checkpoints (
			owner TEXT PRIMARY KEY,
			since BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS withdrawal_requests (
			owner        TEXT PRIMARY KEY,
			amount       NUMERIC(78, 0) NOT NULL,
			requested_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			seq        BIGSERIAL PRIMARY KEY,
			id         TEXT NOT NULL UNIQUE,
			account_id TEXT NOT NULL,
			kind       TEXT NOT NULL,
			amount     NUMERIC(78, 0) NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries (account_id)`,
	},
}

// NewPostgresVaultStore connects to the database described by connString
// and creates the vault tables.
func NewPostgresVaultStore(ctx context.Context, connString string) (*sqlstore.SQLVaultStore, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrStorage, "open postgres: %s", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(errors.ErrStorage, "ping postgres: %s", err)
	}

	store := sqlstore.New(db, Dialect)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
