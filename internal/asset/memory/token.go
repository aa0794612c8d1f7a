// Package memory provides an in-memory fungible token implementing
// interfaces.AssetLedger. It backs the demo server and the tests.
package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/errors"
	interfaces "github.com/sheikh-saqib/custody-vault-ledger/internal/interfaces"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
)

type allowanceKey struct {
	owner   models.Address
	spender models.Address
}

// Token is an in-memory token ledger with allowances.
type Token struct {
	mu         sync.Mutex
	symbol     string
	balances   map[models.Address]decimal.Decimal
	allowances map[allowanceKey]decimal.Decimal

	// failWith, when set, makes every transfer fail.
	failWith error
	// hook is invoked before every transfer, outside of the token lock.
	hook func(ctx context.Context)
}

// NewToken returns an empty token.
func NewToken(symbol string) *Token {
	return &Token{
		symbol:     symbol,
		balances:   make(map[models.Address]decimal.Decimal),
		allowances: make(map[allowanceKey]decimal.Decimal),
	}
}

// Symbol returns the token symbol.
func (t *Token) Symbol() string {
	return t.symbol
}

// Mint credits amount to account out of thin air.
func (t *Token) Mint(_ context.Context, account models.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.Wrap(errors.ErrInput, "mint amount must be positive")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.balances[account] = t.balances[account].Add(amount)
	return nil
}

// Approve lets spender move up to amount out of owner's balance.
func (t *Token) Approve(_ context.Context, owner, spender models.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return errors.Wrap(errors.ErrInput, "negative allowance")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.allowances[allowanceKey{owner: owner, spender: spender}] = amount
	return nil
}

// Allowance returns how much spender may still move out of owner's balance.
func (t *Token) Allowance(_ context.Context, owner, spender models.Address) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.allowances[allowanceKey{owner: owner, spender: spender}]
}

// FailTransfers makes all following transfers return err. Pass nil to
// restore normal behaviour.
func (t *Token) FailTransfers(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failWith = err
}

// OnTransfer registers fn to be called at the start of every transfer.
func (t *Token) OnTransfer(fn func(ctx context.Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.hook = fn
}

func (t *Token) runHook(ctx context.Context) {
	t.mu.Lock()
	hook := t.hook
	t.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
}

func (t *Token) TransferFrom(ctx context.Context, spender, from, to models.Address, amount decimal.Decimal) error {
	t.runHook(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failWith != nil {
		return t.failWith
	}
	key := allowanceKey{owner: from, spender: spender}
	allowance := t.allowances[key]
	if allowance.LessThan(amount) {
		return errors.Wrapf(errors.ErrInput, "allowance %s below %s", allowance, amount)
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	t.allowances[key] = allowance.Sub(amount)
	return nil
}

func (t *Token) Transfer(ctx context.Context, from, to models.Address, amount decimal.Decimal) error {
	t.runHook(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failWith != nil {
		return t.failWith
	}
	return t.move(from, to, amount)
}

func (t *Token) move(from, to models.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return errors.Wrap(errors.ErrInput, "negative amount")
	}
	balance := t.balances[from]
	if balance.LessThan(amount) {
		return errors.Wrapf(errors.ErrInput, "balance %s below %s", balance, amount)
	}
	t.balances[from] = balance.Sub(amount)
	t.balances[to] = t.balances[to].Add(amount)
	return nil
}

func (t *Token) BalanceOf(_ context.Context, account models.Address) (decimal.Decimal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.balances[account], nil
}

var _ interfaces.AssetLedger = (*Token)(nil)
