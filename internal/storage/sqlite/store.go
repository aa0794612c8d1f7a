package sqlite

import (
	"context"
	"database/sql"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/errors"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/storage/sqlstore"
)

// Dialect is the sqlite flavour of the vault schema. Amounts are kept as TEXT
// so no numeric affinity conversion can lose precision.
var Dialect = sqlstore.Dialect{
	Name: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS vault_state_v1 (
			id             INTEGER PRIMARY KEY CHECK (id = 1),
			version        INTEGER NOT NULL,
			initialized    INTEGER NOT NULL,
			asset_ref      TEXT NOT NULL,
			admin          TEXT NOT NULL,
			deposit_fee_bp INTEGER NOT NULL,
			total_deposits TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vault_state_v2 (
			id              INTEGER PRIMARY KEY CHECK (id = 1),
			deposits_paused INTEGER NOT NULL,
			yield_rate_bp   INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vault_state_v3 (
			id                  INTEGER PRIMARY KEY CHECK (id = 1),
			withdrawal_delay_ns INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			owner      TEXT PRIMARY KEY,
			balance    TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS yield_checkpoints (
			owner TEXT PRIMARY KEY,
			since INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS withdrawal_requests (
			owner        TEXT PRIMARY KEY,
			amount       TEXT NOT NULL,
			requested_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			account_id TEXT NOT NULL,
			kind       TEXT NOT NULL,
			amount     TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries (account_id)`,
	},
}

// NewSQLiteVaultStore opens (or creates) the SQLite database at path and
// creates the vault tables. Use ":memory:" for a throwaway database.
func NewSQLiteVaultStore(ctx context.Context, path string) (*sqlstore.SQLVaultStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrStorage, "open sqlite: %s", err)
	}
	// A single connection serializes writers and keeps an in-memory
	// database alive for the lifetime of the store.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, errors.Wrapf(errors.ErrStorage, "set WAL mode: %s", err)
		}
	}

	store := sqlstore.New(db, Dialect)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.WithField("path", path).Info("sqlite vault store opened")
	return store, nil
}
