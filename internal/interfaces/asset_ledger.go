package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
)

// AssetLedger is the external fungible asset held in custody. The vault never
// assumes a call succeeds, and treats the implementation as untrusted: it may
// call back into the vault.
type AssetLedger interface {
	// TransferFrom moves amount from one account to another using an
	// allowance granted by from to spender.
	TransferFrom(ctx context.Context, spender, from, to models.Address, amount decimal.Decimal) error
	// Transfer moves amount held by from to another account.
	Transfer(ctx context.Context, from, to models.Address, amount decimal.Decimal) error
	BalanceOf(ctx context.Context, account models.Address) (decimal.Decimal, error)
}
