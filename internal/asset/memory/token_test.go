package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/errors"
)

func TestTransferFromUsesAllowance(t *testing.T) {
	ctx := context.Background()
	tok := NewToken("USDC")
	require.NoError(t, tok.Mint(ctx, "alice", decimal.NewFromInt(100)))
	require.NoError(t, tok.Approve(ctx, "alice", "vault", decimal.NewFromInt(60)))

	require.NoError(t, tok.TransferFrom(ctx, "vault", "alice", "vault", decimal.NewFromInt(40)))
	assert.True(t, tok.Allowance(ctx, "alice", "vault").Equal(decimal.NewFromInt(20)))

	err := tok.TransferFrom(ctx, "vault", "alice", "vault", decimal.NewFromInt(30))
	assert.True(t, errors.ErrInput.Is(err))

	alice, err := tok.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.Equal(decimal.NewFromInt(60)))
	vault, err := tok.BalanceOf(ctx, "vault")
	require.NoError(t, err)
	assert.True(t, vault.Equal(decimal.NewFromInt(40)))
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	tok := NewToken("USDC")
	require.NoError(t, tok.Mint(ctx, "vault", decimal.NewFromInt(10)))

	err := tok.Transfer(ctx, "vault", "bob", decimal.NewFromInt(11))
	assert.True(t, errors.ErrInput.Is(err))

	require.NoError(t, tok.Transfer(ctx, "vault", "bob", decimal.NewFromInt(10)))
	bob, err := tok.BalanceOf(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, bob.Equal(decimal.NewFromInt(10)))
}

func TestFailTransfersAndHook(t *testing.T) {
	ctx := context.Background()
	tok := NewToken("USDC")
	require.NoError(t, tok.Mint(ctx, "vault", decimal.NewFromInt(10)))

	calls := 0
	tok.OnTransfer(func(context.Context) { calls++ })
	tok.FailTransfers(assert.AnError)

	assert.ErrorIs(t, tok.Transfer(ctx, "vault", "bob", decimal.NewFromInt(1)), assert.AnError)
	assert.Equal(t, 1, calls)

	tok.FailTransfers(nil)
	require.NoError(t, tok.Transfer(ctx, "vault", "bob", decimal.NewFromInt(1)))
	assert.Equal(t, 2, calls)
	assert.Equal(t, "USDC", tok.Symbol())
}

func TestMintRejectsNonPositive(t *testing.T) {
	tok := NewToken("USDC")
	assert.True(t, errors.ErrInput.Is(tok.Mint(context.Background(), "alice", decimal.Zero)))
	assert.True(t, errors.ErrInput.Is(tok.Approve(context.Background(), "alice", "vault", decimal.NewFromInt(-1))))
}
