package vault

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/errors"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models/events"
)

var bpDenominator = decimal.NewFromInt(models.MaxBasisPoints)

// InitParams configures a vault at version 1 initialization.
type InitParams struct {
	AssetRef     models.Address
	Admin        models.Address
	DepositFeeBp uint32
}

func (p InitParams) validate() error {
	if p.AssetRef == "" {
		return errors.Wrap(errors.ErrInput, "asset is required")
	}
	if p.Admin == "" {
		return errors.Wrap(errors.ErrInput, "admin is required")
	}
	return validateBasisPoints(p.DepositFeeBp)
}

// Initialize creates the vault at version 1. It succeeds once per vault; the
// caller must be the admin being installed.
func (v *Vault) Initialize(ctx context.Context, caller models.Address, params InitParams) error {
	return v.update(ctx, "initialize", caller, func(o *operation) error {
		_, err := o.tx.State(o.ctx)
		switch {
		case err == nil:
			return errors.Wrap(ErrAlreadyInitialized, "version 1")
		case !errors.ErrNotFound.Is(err):
			return errors.Wrap(err, "load state")
		}

		if err := params.validate(); err != nil {
			return err
		}
		if caller != params.Admin {
			return errors.Wrap(errors.ErrUnauthorized, "initialization must be authorized by the admin")
		}

		o.state = &models.State{
			Version:     models.V1,
			Initialized: models.V1,
			V1: models.ConfigV1{
				AssetRef:      params.AssetRef,
				Admin:         params.Admin,
				DepositFeeBp:  params.DepositFeeBp,
				TotalDeposits: decimal.Zero,
			},
		}
		if err := o.save(); err != nil {
			return err
		}
		o.emit(events.VaultEvent{
			Type:  events.Initialized,
			Value: uint64(params.DepositFeeBp),
		})
		return nil
	})
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.Wrapf(ErrInvalidAmount, "%s is not positive", amount)
	}
	if !amount.IsInteger() {
		return errors.Wrapf(ErrInvalidAmount, "%s is not a whole number of base units", amount)
	}
	return nil
}

// depositFee returns floor(amount * bp / 10000).
func depositFee(amount decimal.Decimal, bp uint32) decimal.Decimal {
	fee, _ := amount.Mul(decimal.NewFromInt(int64(bp))).QuoRem(bpDenominator, 0)
	return fee
}

// Deposit pulls amount from the caller into custody and credits it net of the
// deposit fee. The fee stays in custody.
func (v *Vault) Deposit(ctx context.Context, caller models.Address, amount decimal.Decimal) error {
	return v.update(ctx, "deposit", caller, func(o *operation) error {
		st, err := o.load(models.V1)
		if err != nil {
			return err
		}
		if st.V2 != nil && st.V2.DepositsPaused {
			return errors.Wrap(ErrDepositsPaused, "deposit")
		}
		if err := validateAmount(amount); err != nil {
			return err
		}

		acc, err := o.account(caller)
		if err != nil {
			return err
		}
		if _, err := o.settleYield(acc); err != nil {
			return err
		}

		fee := depositFee(amount, st.V1.DepositFeeBp)
		net := amount.Sub(fee)
		if err := o.credit(acc, net, models.EntryDeposit); err != nil {
			return err
		}
		if fee.IsPositive() {
			if err := o.entry(o.vault.custody, models.EntryFee, fee); err != nil {
				return err
			}
		}
		if err := o.save(); err != nil {
			return err
		}
		if err := o.pull(caller, amount); err != nil {
			return err
		}

		o.emit(events.VaultEvent{
			Type:   events.Deposited,
			Owner:  caller.String(),
			Amount: net,
			Fee:    fee,
		})
		return nil
	})
}

// Withdraw debits amount from the caller's balance and sends it back. Once
// queued withdrawals exist, the amount reserved by a pending request cannot
// be withdrawn directly.
func (v *Vault) Withdraw(ctx context.Context, caller models.Address, amount decimal.Decimal) error {
	return v.update(ctx, "withdraw", caller, func(o *operation) error {
		st, err := o.load(models.V1)
		if err != nil {
			return err
		}
		if err := validateAmount(amount); err != nil {
			return err
		}

		acc, err := o.account(caller)
		if err != nil {
			return err
		}
		if _, err := o.settleYield(acc); err != nil {
			return err
		}

		available := acc.Balance
		if st.V3 != nil {
			req, err := o.tx.WithdrawalRequest(o.ctx, caller)
			if err != nil {
				return errors.Wrap(err, "load withdrawal request")
			}
			if req != nil {
				available = available.Sub(req.Amount)
			}
		}
		if amount.GreaterThan(available) {
			return errors.Wrapf(ErrInsufficientBalance, "available %s, requested %s", available, amount)
		}

		if err := o.debit(acc, amount, models.EntryWithdrawal); err != nil {
			return err
		}
		if err := o.save(); err != nil {
			return err
		}
		if err := o.push(caller, amount); err != nil {
			return err
		}

		o.emit(events.VaultEvent{
			Type:   events.Withdrawn,
			Owner:  caller.String(),
			Amount: amount,
		})
		return nil
	})
}

// SetDepositFee changes the deposit fee. Admin only.
func (v *Vault) SetDepositFee(ctx context.Context, caller models.Address, bp uint32) error {
	return v.update(ctx, "set_deposit_fee", caller, func(o *operation) error {
		st, err := o.load(models.V1)
		if err != nil {
			return err
		}
		if err := requireAdmin(st, caller); err != nil {
			return err
		}
		if err := validateBasisPoints(bp); err != nil {
			return err
		}
		st.V1.DepositFeeBp = bp
		if err := o.save(); err != nil {
			return err
		}
		o.emit(events.VaultEvent{Type: events.DepositFeeChanged, Value: uint64(bp)})
		return nil
	})
}

// BalanceOf returns the balance credited to owner.
func (v *Vault) BalanceOf(ctx context.Context, owner models.Address) (decimal.Decimal, error) {
	balance := decimal.Zero
	err := v.view(ctx, func(o *operation) error {
		if _, err := o.load(models.V1); err != nil {
			return err
		}
		acc, err := o.tx.Account(o.ctx, owner)
		if err != nil {
			return errors.Wrap(err, "load account")
		}
		if acc != nil {
			balance = acc.Balance
		}
		return nil
	})
	return balance, err
}

// GetDepositFee returns the deposit fee in basis points.
func (v *Vault) GetDepositFee(ctx context.Context) (uint32, error) {
	var fee uint32
	err := v.view(ctx, func(o *operation) error {
		st, err := o.load(models.V1)
		if err != nil {
			return err
		}
		fee = st.V1.DepositFeeBp
		return nil
	})
	return fee, err
}

// TotalDeposits returns the sum of all balances.
func (v *Vault) TotalDeposits(ctx context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	err := v.view(ctx, func(o *operation) error {
		st, err := o.load(models.V1)
		if err != nil {
			return err
		}
		total = st.V1.TotalDeposits
		return nil
	})
	return total, err
}

// State returns a copy of the vault state.
func (v *Vault) State(ctx context.Context) (*models.State, error) {
	var st *models.State
	err := v.view(ctx, func(o *operation) error {
		var err error
		st, err = o.load(models.V1)
		return err
	})
	return st, err
}

// LedgerEntries returns the journal, restricted to account when it is not
// empty.
func (v *Vault) LedgerEntries(ctx context.Context, account models.Address) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := v.view(ctx, func(o *operation) error {
		var err error
		if account == "" {
			entries, err = o.tx.GetLedgerEntries(o.ctx)
		} else {
			entries, err = o.tx.GetEntriesByAccount(o.ctx, account)
		}
		return errors.Wrap(err, "ledger entries")
	})
	return entries, err
}
