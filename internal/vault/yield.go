package vault

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/errors"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models/events"
)

// SecondsPerYear is the accrual period of the yearly yield rate.
const SecondsPerYear = 365 * 24 * 60 * 60

var yieldDenominator = bpDenominator.Mul(decimal.NewFromInt(SecondsPerYear))

// accruedYield returns floor(balance * rateBp * seconds / (10000 * SecondsPerYear)).
// Only whole elapsed seconds count.
func accruedYield(balance decimal.Decimal, rateBp uint32, elapsed time.Duration) decimal.Decimal {
	seconds := int64(elapsed / time.Second)
	if seconds <= 0 || rateBp == 0 || !balance.IsPositive() {
		return decimal.Zero
	}
	y, _ := balance.
		Mul(decimal.NewFromInt(int64(rateBp))).
		Mul(decimal.NewFromInt(seconds)).
		QuoRem(yieldDenominator, 0)
	return y
}

// pendingYield returns the yield acc accrued since its checkpoint.
func (o *operation) pendingYield(acc *models.Account) (decimal.Decimal, error) {
	if o.state.V2 == nil {
		return decimal.Zero, nil
	}
	cp, err := o.tx.YieldCheckpoint(o.ctx, acc.Owner)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "load checkpoint")
	}
	if cp == nil {
		return decimal.Zero, nil
	}
	return accruedYield(acc.Balance, o.state.V2.YieldRateBp, o.now.Sub(cp.Since)), nil
}

// settleYield credits the pending yield of acc and moves its checkpoint to
// now. It does nothing before version 2.
func (o *operation) settleYield(acc *models.Account) (decimal.Decimal, error) {
	if o.state.V2 == nil {
		return decimal.Zero, nil
	}
	y, err := o.pendingYield(acc)
	if err != nil {
		return decimal.Zero, err
	}
	if y.IsPositive() {
		if err := o.credit(acc, y, models.EntryYield); err != nil {
			return decimal.Zero, err
		}
	}
	return y, o.resetCheckpoint(acc.Owner)
}

// settleAll settles every account at the current rate.
func (o *operation) settleAll() error {
	accounts, err := o.tx.Accounts(o.ctx)
	if err != nil {
		return errors.Wrap(err, "load accounts")
	}
	for i := range accounts {
		if _, err := o.settleYield(&accounts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (o *operation) resetCheckpoint(owner models.Address) error {
	err := o.tx.PutYieldCheckpoint(o.ctx, &models.YieldCheckpoint{Owner: owner, Since: o.now})
	return errors.Wrap(err, "save checkpoint")
}

// InitializeV2 sets the yield rate once version 2 is active. Admin only, runs
// once. Accrual starts at initialization, not at the upgrade.
func (v *Vault) InitializeV2(ctx context.Context, caller models.Address, yieldRateBp uint32) error {
	return v.update(ctx, "initialize_v2", caller, func(o *operation) error {
		st, err := o.load(models.V1)
		if err != nil {
			return err
		}
		if err := requireAdmin(st, caller); err != nil {
			return err
		}
		if err := o.initializing(models.V2); err != nil {
			return err
		}
		if err := validateBasisPoints(yieldRateBp); err != nil {
			return err
		}
		if err := o.settleAll(); err != nil {
			return err
		}

		st.V2.YieldRateBp = yieldRateBp
		st.Initialized = models.V2
		if err := o.save(); err != nil {
			return err
		}
		o.emit(events.VaultEvent{Type: events.Initialized, Value: uint64(yieldRateBp)})
		return nil
	})
}

// SetYieldRate changes the yearly yield rate. Admin only. Yield accrued so far
// is credited to every account at the old rate first.
func (v *Vault) SetYieldRate(ctx context.Context, caller models.Address, bp uint32) error {
	return v.update(ctx, "set_yield_rate", caller, func(o *operation) error {
		st, err := o.load(models.V2)
		if err != nil {
			return err
		}
		if err := requireAdmin(st, caller); err != nil {
			return err
		}
		if err := validateBasisPoints(bp); err != nil {
			return err
		}
		if err := o.settleAll(); err != nil {
			return err
		}
		st.V2.YieldRateBp = bp
		if err := o.save(); err != nil {
			return err
		}
		o.emit(events.VaultEvent{Type: events.YieldRateChanged, Value: uint64(bp)})
		return nil
	})
}

// GetYieldRate returns the yearly yield rate in basis points.
func (v *Vault) GetYieldRate(ctx context.Context) (uint32, error) {
	var rate uint32
	err := v.view(ctx, func(o *operation) error {
		st, err := o.load(models.V2)
		if err != nil {
			return err
		}
		rate = st.V2.YieldRateBp
		return nil
	})
	return rate, err
}

// GetUserYield returns the yield owner accrued since its checkpoint. It is
// computed on every call and never stored.
func (v *Vault) GetUserYield(ctx context.Context, owner models.Address) (decimal.Decimal, error) {
	y := decimal.Zero
	err := v.view(ctx, func(o *operation) error {
		if _, err := o.load(models.V2); err != nil {
			return err
		}
		acc, err := o.tx.Account(o.ctx, owner)
		if err != nil {
			return errors.Wrap(err, "load account")
		}
		if acc == nil {
			return nil
		}
		y, err = o.pendingYield(acc)
		return err
	})
	return y, err
}

// ClaimYield credits the caller's pending yield to its balance and returns
// the credited amount.
func (v *Vault) ClaimYield(ctx context.Context, caller models.Address) (decimal.Decimal, error) {
	claimed := decimal.Zero
	err := v.update(ctx, "claim_yield", caller, func(o *operation) error {
		if _, err := o.load(models.V2); err != nil {
			return err
		}
		acc, err := o.tx.Account(o.ctx, caller)
		if err != nil {
			return errors.Wrap(err, "load account")
		}
		if acc == nil {
			return nil
		}
		// Keep the checkpoint while nothing whole has accrued yet.
		pending, err := o.pendingYield(acc)
		if err != nil || !pending.IsPositive() {
			return err
		}
		claimed, err = o.settleYield(acc)
		if err != nil {
			return err
		}
		if err := o.save(); err != nil {
			return err
		}
		o.emit(events.VaultEvent{
			Type:   events.YieldClaimed,
			Owner:  caller.String(),
			Amount: claimed,
		})
		return nil
	})
	return claimed, err
}

// PauseDeposits blocks deposits. Withdrawals stay available. Admin only.
func (v *Vault) PauseDeposits(ctx context.Context, caller models.Address) error {
	return v.setPaused(ctx, "pause_deposits", caller, true)
}

// ResumeDeposits lifts a deposit pause. Admin only.
func (v *Vault) ResumeDeposits(ctx context.Context, caller models.Address) error {
	return v.setPaused(ctx, "resume_deposits", caller, false)
}

func (v *Vault) setPaused(ctx context.Context, name string, caller models.Address, paused bool) error {
	return v.update(ctx, name, caller, func(o *operation) error {
		st, err := o.load(models.V2)
		if err != nil {
			return err
		}
		if err := requireAdmin(st, caller); err != nil {
			return err
		}
		st.V2.DepositsPaused = paused
		if err := o.save(); err != nil {
			return err
		}
		t := events.DepositsResumed
		if paused {
			t = events.DepositsPaused
		}
		o.emit(events.VaultEvent{Type: t})
		return nil
	})
}

// DepositsPaused reports whether deposits are paused.
func (v *Vault) DepositsPaused(ctx context.Context) (bool, error) {
	var paused bool
	err := v.view(ctx, func(o *operation) error {
		st, err := o.load(models.V2)
		if err != nil {
			return err
		}
		paused = st.V2.DepositsPaused
		return nil
	})
	return paused, err
}
