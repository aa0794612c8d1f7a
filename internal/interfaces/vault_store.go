package interfaces

import (
	"context"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
)

// VaultStore persists the vault state. All reads and writes happen inside a
// transaction: changes made through the VaultTx passed to Update are
// persisted only when the callback returns nil.
type VaultStore interface {
	Update(ctx context.Context, fn func(tx VaultTx) error) error
	View(ctx context.Context, fn func(tx VaultTx) error) error
}

// VaultTx gives access to the vault records within a single transaction.
type VaultTx interface {
	// State returns the vault state, or an ErrNotFound error before the vault
	// has been initialized.
	State(ctx context.Context) (*models.State, error)
	PutState(ctx context.Context, state *models.State) error

	// Account returns nil when the owner never deposited.
	Account(ctx context.Context, owner models.Address) (*models.Account, error)
	PutAccount(ctx context.Context, account *models.Account) error
	Accounts(ctx context.Context) ([]models.Account, error)

	// YieldCheckpoint returns nil when no checkpoint is recorded.
	YieldCheckpoint(ctx context.Context, owner models.Address) (*models.YieldCheckpoint, error)
	PutYieldCheckpoint(ctx context.Context, cp *models.YieldCheckpoint) error

	// WithdrawalRequest returns nil when the owner has no pending request.
	WithdrawalRequest(ctx context.Context, owner models.Address) (*models.WithdrawalRequest, error)
	PutWithdrawalRequest(ctx context.Context, req *models.WithdrawalRequest) error
	DeleteWithdrawalRequest(ctx context.Context, owner models.Address) error

	SaveEntry(ctx context.Context, entry models.LedgerEntry) error
	GetEntriesByAccount(ctx context.Context, accountID models.Address) ([]models.LedgerEntry, error)
	GetLedgerEntries(ctx context.Context) ([]models.LedgerEntry, error)
}
