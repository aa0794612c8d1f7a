// Package sqlstore implements interfaces.VaultStore on top of database/sql.
// Driver specific details (DDL and placeholders) are provided by a Dialect so
// the same code serves both the postgres and the sqlite stores.
//
// Every version of the vault keeps its fields in its own table:
// vault_state_v1 is never altered by later versions, which add
// vault_state_v2 and vault_state_v3 rows during their migration.
package sqlstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/errors"
	interfaces "github.com/sheikh-saqib/custody-vault-ledger/internal/interfaces"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
)

// Dialect describes the differences between supported SQL engines.
type Dialect struct {
	Name string
	// Schema holds the statements creating all tables. They must be
	// idempotent.
	Schema []string
	// NumberedPlaceholders switches "?" placeholders to "$1", "$2"...
	NumberedPlaceholders bool
}

// SQLVaultStore persists the vault in a relational database.
type SQLVaultStore struct {
	db      *sql.DB
	dialect Dialect
}

// New returns a store using db. Call Migrate before first use.
func New(db *sql.DB, dialect Dialect) *SQLVaultStore {
	return &SQLVaultStore{
		db:      db,
		dialect: dialect,
	}
}

// Migrate creates the tables if they do not exist.
func (s *SQLVaultStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(errors.ErrStorage, "%s schema: %s", s.dialect.Name, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLVaultStore) Close() error {
	return s.db.Close()
}

// Update runs fn inside a database transaction which is committed when fn
// returns nil and rolled back otherwise.
func (s *SQLVaultStore) Update(ctx context.Context, fn func(tx interfaces.VaultTx) error) (err error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(errors.ErrStorage, "begin: %s", err)
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if err = fn(&sqlTx{tx: dbTx, dialect: s.dialect}); err != nil {
		return err
	}
	if cerr := dbTx.Commit(); cerr != nil {
		err = errors.Wrapf(errors.ErrStorage, "commit: %s", cerr)
		return err
	}
	return nil
}

// View runs fn inside a transaction that is always rolled back.
func (s *SQLVaultStore) View(ctx context.Context, fn func(tx interfaces.VaultTx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(errors.ErrStorage, "begin: %s", err)
	}
	defer dbTx.Rollback()

	return fn(&sqlTx{tx: dbTx, dialect: s.dialect, readOnly: true})
}

type sqlTx struct {
	tx       *sql.Tx
	dialect  Dialect
	readOnly bool
}

// rebind rewrites "?" placeholders for dialects using numbered ones.
func (t *sqlTx) rebind(query string) string {
	if !t.dialect.NumberedPlaceholders {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (t *sqlTx) exec(ctx context.Context, query string, args ...interface{}) error {
	if t.readOnly {
		return errors.Wrap(errors.ErrStorage, "read-only transaction")
	}
	if _, err := t.tx.ExecContext(ctx, t.rebind(query), args...); err != nil {
		return errors.Wrapf(errors.ErrStorage, "exec: %s", err)
	}
	return nil
}

func (t *sqlTx) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.rebind(query), args...)
}

func toUnix(ts time.Time) int64 {
	return ts.UnixNano()
}

func fromUnix(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func (t *sqlTx) State(ctx context.Context) (*models.State, error) {
	var (
		st    models.State
		ver   int64
		init  int64
		feeBp int64
	)
	err := t.queryRow(ctx, `SELECT version, initialized, asset_ref, admin, deposit_fee_bp, total_deposits
		FROM vault_state_v1 WHERE id = 1`).
		Scan(&ver, &init, &st.V1.AssetRef, &st.V1.Admin, &feeBp, &st.V1.TotalDeposits)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "vault state")
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrStorage, "load state: %s", err)
	}
	st.Version = models.Version(ver)
	st.Initialized = models.Version(init)
	st.V1.DepositFeeBp = uint32(feeBp)

	var (
		paused bool
		rateBp int64
	)
	err = t.queryRow(ctx, `SELECT deposits_paused, yield_rate_bp FROM vault_state_v2 WHERE id = 1`).
		Scan(&paused, &rateBp)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, errors.Wrapf(errors.ErrStorage, "load version 2 state: %s", err)
	default:
		st.V2 = &models.ConfigV2{DepositsPaused: paused, YieldRateBp: uint32(rateBp)}
	}

	var delay int64
	err = t.queryRow(ctx, `SELECT withdrawal_delay_ns FROM vault_state_v3 WHERE id = 1`).Scan(&delay)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, errors.Wrapf(errors.ErrStorage, "load version 3 state: %s", err)
	default:
		st.V3 = &models.ConfigV3{WithdrawalDelay: time.Duration(delay)}
	}
	return &st, nil
}

func (t *sqlTx) PutState(ctx context.Context, st *models.State) error {
	err := t.exec(ctx, `INSERT INTO vault_state_v1
		(id, version, initialized, asset_ref, admin, deposit_fee_bp, total_deposits)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			version = excluded.version,
			initialized = excluded.initialized,
			asset_ref = excluded.asset_ref,
			admin = excluded.admin,
			deposit_fee_bp = excluded.deposit_fee_bp,
			total_deposits = excluded.total_deposits`,
		int64(st.Version), int64(st.Initialized), string(st.V1.AssetRef), string(st.V1.Admin),
		int64(st.V1.DepositFeeBp), st.V1.TotalDeposits)
	if err != nil {
		return errors.Wrap(err, "save state")
	}
	if st.V2 != nil {
		err := t.exec(ctx, `INSERT INTO vault_state_v2 (id, deposits_paused, yield_rate_bp)
			VALUES (1, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				deposits_paused = excluded.deposits_paused,
				yield_rate_bp = excluded.yield_rate_bp`,
			st.V2.DepositsPaused, int64(st.V2.YieldRateBp))
		if err != nil {
			return errors.Wrap(err, "save version 2 state")
		}
	}
	if st.V3 != nil {
		err := t.exec(ctx, `INSERT INTO vault_state_v3 (id, withdrawal_delay_ns)
			VALUES (1, ?)
			ON CONFLICT (id) DO UPDATE SET withdrawal_delay_ns = excluded.withdrawal_delay_ns`,
			int64(st.V3.WithdrawalDelay))
		if err != nil {
			return errors.Wrap(err, "save version 3 state")
		}
	}
	return nil
}

func (t *sqlTx) Account(ctx context.Context, owner models.Address) (*models.Account, error) {
	var (
		a       models.Account
		created int64
	)
	err := t.queryRow(ctx, `SELECT owner, balance, created_at FROM accounts WHERE owner = ?`, string(owner)).
		Scan(&a.Owner, &a.Balance, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrStorage, "load account: %s", err)
	}
	a.CreatedAt = fromUnix(created)
	return &a, nil
}

func (t *sqlTx) PutAccount(ctx context.Context, a *models.Account) error {
	return t.exec(ctx, `INSERT INTO accounts (owner, balance, created_at) VALUES (?, ?, ?)
		ON CONFLICT (owner) DO UPDATE SET balance = excluded.balance`,
		string(a.Owner), a.Balance, toUnix(a.CreatedAt))
}

func (t *sqlTx) Accounts(ctx context.Context) ([]models.Account, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT owner, balance, created_at FROM accounts ORDER BY owner`)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrStorage, "list accounts: %s", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var (
			a       models.Account
			created int64
		)
		if err := rows.Scan(&a.Owner, &a.Balance, &created); err != nil {
			return nil, errors.Wrapf(errors.ErrStorage, "scan account: %s", err)
		}
		a.CreatedAt = fromUnix(created)
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrStorage, "list accounts: %s", err)
	}
	return accounts, nil
}

func (t *sqlTx) YieldCheckpoint(ctx context.Context, owner models.Address) (*models.YieldCheckpoint, error) {
	var since int64
	err := t.queryRow(ctx, `SELECT since FROM yield_checkpoints WHERE owner = ?`, string(owner)).Scan(&since)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrStorage, "load checkpoint: %s", err)
	}
	return &models.YieldCheckpoint{Owner: owner, Since: fromUnix(since)}, nil
}

func (t *sqlTx) PutYieldCheckpoint(ctx context.Context, cp *models.YieldCheckpoint) error {
	return t.exec(ctx, `INSERT INTO yield_checkpoints (owner, since) VALUES (?, ?)
		ON CONFLICT (owner) DO UPDATE SET since = excluded.since`,
		string(cp.Owner), toUnix(cp.Since))
}

func (t *sqlTx) WithdrawalRequest(ctx context.Context, owner models.Address) (*models.WithdrawalRequest, error) {
	var (
		req       = models.WithdrawalRequest{Owner: owner}
		requested int64
	)
	err := t.queryRow(ctx, `SELECT amount, requested_at FROM withdrawal_requests WHERE owner = ?`, string(owner)).
		Scan(&req.Amount, &requested)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrStorage, "load withdrawal request: %s", err)
	}
	req.RequestedAt = fromUnix(requested)
	return &req, nil
}

func (t *sqlTx) PutWithdrawalRequest(ctx context.Context, req *models.WithdrawalRequest) error {
	return t.exec(ctx, `INSERT INTO withdrawal_requests (owner, amount, requested_at) VALUES (?, ?, ?)
		ON CONFLICT (owner) DO UPDATE SET amount = excluded.amount, requested_at = excluded.requested_at`,
		string(req.Owner), req.Amount, toUnix(req.RequestedAt))
}

func (t *sqlTx) DeleteWithdrawalRequest(ctx context.Context, owner models.Address) error {
	return t.exec(ctx, `DELETE FROM withdrawal_requests WHERE owner = ?`, string(owner))
}

func (t *sqlTx) SaveEntry(ctx context.Context, e models.LedgerEntry) error {
	return t.exec(ctx, `INSERT INTO ledger_entries (id, account_id, kind, amount, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, string(e.AccountID), string(e.Kind), e.Amount, toUnix(e.CreatedAt))
}

func (t *sqlTx) GetEntriesByAccount(ctx context.Context, accountID models.Address) ([]models.LedgerEntry, error) {
	return t.entries(ctx, `SELECT id, account_id, kind, amount, created_at FROM ledger_entries
		WHERE account_id = ? ORDER BY seq`, string(accountID))
}

func (t *sqlTx) GetLedgerEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	return t.entries(ctx, `SELECT id, account_id, kind, amount, created_at FROM ledger_entries ORDER BY seq`)
}

func (t *sqlTx) entries(ctx context.Context, query string, args ...interface{}) ([]models.LedgerEntry, error) {
	rows, err := t.tx.QueryContext(ctx, t.rebind(query), args...)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrStorage, "list entries: %s", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var (
			e       models.LedgerEntry
			created int64
			amount  decimal.Decimal
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Kind, &amount, &created); err != nil {
			return nil, errors.Wrapf(errors.ErrStorage, "scan entry: %s", err)
		}
		e.Amount = amount
		e.CreatedAt = fromUnix(created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrStorage, "list entries: %s", err)
	}
	return entries, nil
}

var _ interfaces.VaultStore = (*SQLVaultStore)(nil)
