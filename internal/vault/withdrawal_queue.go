package vault

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/errors"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models/events"
)

func validateDelay(delay time.Duration) error {
	if delay < 0 {
		return errors.Wrapf(errors.ErrInput, "negative withdrawal delay %s", delay)
	}
	return nil
}

// InitializeV3 sets the withdrawal delay once version 3 is active. Admin
// only, runs once.
func (v *Vault) InitializeV3(ctx context.Context, caller models.Address, delay time.Duration) error {
	return v.update(ctx, "initialize_v3", caller, func(o *operation) error {
		st, err := o.load(models.V1)
		if err != nil {
			return err
		}
		if err := requireAdmin(st, caller); err != nil {
			return err
		}
		if err := o.initializing(models.V3); err != nil {
			return err
		}
		if err := validateDelay(delay); err != nil {
			return err
		}

		st.V3.WithdrawalDelay = delay
		st.Initialized = models.V3
		if err := o.save(); err != nil {
			return err
		}
		o.emit(events.VaultEvent{Type: events.Initialized, Value: uint64(delay / time.Second)})
		return nil
	})
}

// SetWithdrawalDelay changes the delay between a withdrawal request and its
// execution. Pending requests are checked against the new delay. Admin only.
func (v *Vault) SetWithdrawalDelay(ctx context.Context, caller models.Address, delay time.Duration) error {
	return v.update(ctx, "set_withdrawal_delay", caller, func(o *operation) error {
		st, err := o.load(models.V3)
		if err != nil {
			return err
		}
		if err := requireAdmin(st, caller); err != nil {
			return err
		}
		if err := validateDelay(delay); err != nil {
			return err
		}
		st.V3.WithdrawalDelay = delay
		if err := o.save(); err != nil {
			return err
		}
		o.emit(events.VaultEvent{Type: events.WithdrawalDelaySet, Value: uint64(delay / time.Second)})
		return nil
	})
}

// GetWithdrawalDelay returns the withdrawal delay.
func (v *Vault) GetWithdrawalDelay(ctx context.Context) (time.Duration, error) {
	var delay time.Duration
	err := v.view(ctx, func(o *operation) error {
		st, err := o.load(models.V3)
		if err != nil {
			return err
		}
		delay = st.V3.WithdrawalDelay
		return nil
	})
	return delay, err
}

// RequestWithdrawal queues a withdrawal of amount. No funds move until the
// request is executed. An owner can have a single pending request; a second
// one is rejected rather than replacing the first.
func (v *Vault) RequestWithdrawal(ctx context.Context, caller models.Address, amount decimal.Decimal) error {
	return v.update(ctx, "request_withdrawal", caller, func(o *operation) error {
		if _, err := o.load(models.V3); err != nil {
			return err
		}
		if err := validateAmount(amount); err != nil {
			return err
		}

		pending, err := o.tx.WithdrawalRequest(o.ctx, caller)
		if err != nil {
			return errors.Wrap(err, "load withdrawal request")
		}
		if pending != nil {
			return errors.Wrapf(ErrRequestPending, "%s requested at %s", pending.Amount, pending.RequestedAt)
		}

		acc, err := o.account(caller)
		if err != nil {
			return err
		}
		if amount.GreaterThan(acc.Balance) {
			return errors.Wrapf(ErrInsufficientBalance, "balance %s, requested %s", acc.Balance, amount)
		}

		err = o.tx.PutWithdrawalRequest(o.ctx, &models.WithdrawalRequest{
			Owner:       caller,
			Amount:      amount,
			RequestedAt: o.now,
		})
		if err != nil {
			return errors.Wrap(err, "save withdrawal request")
		}
		o.emit(events.VaultEvent{
			Type:   events.WithdrawalRequested,
			Owner:  caller.String(),
			Amount: amount,
		})
		return nil
	})
}

// ExecuteWithdrawal pays out the caller's pending request once the delay has
// elapsed.
func (v *Vault) ExecuteWithdrawal(ctx context.Context, caller models.Address) error {
	return v.update(ctx, "execute_withdrawal", caller, func(o *operation) error {
		st, err := o.load(models.V3)
		if err != nil {
			return err
		}
		req, err := o.tx.WithdrawalRequest(o.ctx, caller)
		if err != nil {
			return errors.Wrap(err, "load withdrawal request")
		}
		if req == nil {
			return errors.Wrapf(ErrNoRequest, "owner %s", caller)
		}
		readyAt := req.ReadyAt(st.V3.WithdrawalDelay)
		if o.now.Before(readyAt) {
			return errors.Wrapf(ErrDelayNotElapsed, "executable at %s", readyAt.Format(time.RFC3339))
		}

		acc, err := o.account(caller)
		if err != nil {
			return err
		}
		if _, err := o.settleYield(acc); err != nil {
			return err
		}
		if err := o.debit(acc, req.Amount, models.EntryWithdrawal); err != nil {
			return err
		}
		if err := o.tx.DeleteWithdrawalRequest(o.ctx, caller); err != nil {
			return errors.Wrap(err, "delete withdrawal request")
		}
		if err := o.save(); err != nil {
			return err
		}
		if err := o.push(caller, req.Amount); err != nil {
			return err
		}

		o.emit(events.VaultEvent{
			Type:   events.WithdrawalExecuted,
			Owner:  caller.String(),
			Amount: req.Amount,
		})
		return nil
	})
}

// EmergencyWithdraw pays out the caller's whole balance at once, ignoring the
// withdrawal delay and the deposit pause, and drops any pending request.
// Unclaimed yield is forfeited.
func (v *Vault) EmergencyWithdraw(ctx context.Context, caller models.Address) error {
	return v.update(ctx, "emergency_withdraw", caller, func(o *operation) error {
		if _, err := o.load(models.V3); err != nil {
			return err
		}
		acc, err := o.account(caller)
		if err != nil {
			return err
		}
		amount := acc.Balance
		if !amount.IsPositive() {
			return errors.Wrap(ErrInsufficientBalance, "nothing to withdraw")
		}

		if err := o.debit(acc, amount, models.EntryEmergency); err != nil {
			return err
		}
		if err := o.resetCheckpoint(caller); err != nil {
			return err
		}
		if err := o.tx.DeleteWithdrawalRequest(o.ctx, caller); err != nil {
			return errors.Wrap(err, "delete withdrawal request")
		}
		if err := o.save(); err != nil {
			return err
		}
		if err := o.push(caller, amount); err != nil {
			return err
		}

		o.emit(events.VaultEvent{
			Type:   events.EmergencyWithdrawn,
			Owner:  caller.String(),
			Amount: amount,
		})
		return nil
	})
}

// GetWithdrawalRequest returns the pending request of owner, or nil.
func (v *Vault) GetWithdrawalRequest(ctx context.Context, owner models.Address) (*models.WithdrawalRequest, error) {
	var req *models.WithdrawalRequest
	err := v.view(ctx, func(o *operation) error {
		if _, err := o.load(models.V3); err != nil {
			return err
		}
		var err error
		req, err = o.tx.WithdrawalRequest(o.ctx, owner)
		return errors.Wrap(err, "load withdrawal request")
	})
	return req, err
}
