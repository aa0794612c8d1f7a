// Package storetest holds the behaviour every interfaces.VaultStore
// implementation must share. Store packages run it from their own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/errors"
	interfaces "github.com/sheikh-saqib/custody-vault-ledger/internal/interfaces"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
)

// Run executes the store contract against stores created by newStore. Each
// subtest gets a fresh, empty store.
func Run(t *testing.T, newStore func(t *testing.T) interfaces.VaultStore) {
	tests := map[string]func(t *testing.T, s interfaces.VaultStore){
		"state":              testState,
		"accounts":           testAccounts,
		"checkpoints":        testCheckpoints,
		"withdrawalRequests": testWithdrawalRequests,
		"entries":            testEntries,
		"rollback":           testRollback,
		"readOnlyView":       testReadOnlyView,
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			tc(t, newStore(t))
		})
	}
}

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func update(t *testing.T, s interfaces.VaultStore, fn func(tx interfaces.VaultTx) error) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), fn))
}

func view(t *testing.T, s interfaces.VaultStore, fn func(tx interfaces.VaultTx) error) {
	t.Helper()
	require.NoError(t, s.View(context.Background(), fn))
}

func sampleState() *models.State {
	return &models.State{
		Version:     models.V1,
		Initialized: models.V1,
		V1: models.ConfigV1{
			AssetRef:      "USDC",
			Admin:         "admin",
			DepositFeeBp:  250,
			TotalDeposits: decimal.RequireFromString("123456789012345678901234567890"),
		},
	}
}

func testState(t *testing.T, s interfaces.VaultStore) {
	ctx := context.Background()

	err := s.View(ctx, func(tx interfaces.VaultTx) error {
		_, err := tx.State(ctx)
		return err
	})
	assert.True(t, errors.ErrNotFound.Is(err), "got %v", err)

	st := sampleState()
	update(t, s, func(tx interfaces.VaultTx) error {
		return tx.PutState(ctx, st)
	})
	view(t, s, func(tx interfaces.VaultTx) error {
		got, err := tx.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.V1, got.Version)
		assert.Equal(t, st.V1.Admin, got.V1.Admin)
		assert.Equal(t, st.V1.DepositFeeBp, got.V1.DepositFeeBp)
		assert.True(t, st.V1.TotalDeposits.Equal(got.V1.TotalDeposits))
		assert.Nil(t, got.V2)
		assert.Nil(t, got.V3)
		return nil
	})

	st.Version = models.V3
	st.Initialized = models.V2
	st.V2 = &models.ConfigV2{DepositsPaused: true, YieldRateBp: 700}
	st.V3 = &models.ConfigV3{WithdrawalDelay: 36 * time.Hour}
	update(t, s, func(tx interfaces.VaultTx) error {
		return tx.PutState(ctx, st)
	})
	view(t, s, func(tx interfaces.VaultTx) error {
		got, err := tx.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.V3, got.Version)
		assert.Equal(t, models.V2, got.Initialized)
		require.NotNil(t, got.V2)
		assert.Equal(t, *st.V2, *got.V2)
		require.NotNil(t, got.V3)
		assert.Equal(t, *st.V3, *got.V3)
		return nil
	})
}

func testAccounts(t *testing.T, s interfaces.VaultStore) {
	ctx := context.Background()

	update(t, s, func(tx interfaces.VaultTx) error {
		acc, err := tx.Account(ctx, "bob")
		require.NoError(t, err)
		assert.Nil(t, acc)

		require.NoError(t, tx.PutAccount(ctx, &models.Account{Owner: "bob", Balance: decimal.NewFromInt(10), CreatedAt: epoch}))
		require.NoError(t, tx.PutAccount(ctx, &models.Account{Owner: "alice", Balance: decimal.NewFromInt(5), CreatedAt: epoch}))

		// Staged writes are visible within the transaction.
		acc, err = tx.Account(ctx, "bob")
		require.NoError(t, err)
		require.NotNil(t, acc)
		assert.True(t, acc.Balance.Equal(decimal.NewFromInt(10)))
		return nil
	})
	update(t, s, func(tx interfaces.VaultTx) error {
		return tx.PutAccount(ctx, &models.Account{Owner: "bob", Balance: decimal.NewFromInt(7), CreatedAt: epoch})
	})

	view(t, s, func(tx interfaces.VaultTx) error {
		accounts, err := tx.Accounts(ctx)
		require.NoError(t, err)
		require.Len(t, accounts, 2)
		assert.Equal(t, models.Address("alice"), accounts[0].Owner)
		assert.Equal(t, models.Address("bob"), accounts[1].Owner)
		assert.True(t, accounts[1].Balance.Equal(decimal.NewFromInt(7)))
		assert.True(t, epoch.Equal(accounts[1].CreatedAt))
		return nil
	})
}

func testCheckpoints(t *testing.T, s interfaces.VaultStore) {
	ctx := context.Background()

	update(t, s, func(tx interfaces.VaultTx) error {
		cp, err := tx.YieldCheckpoint(ctx, "alice")
		require.NoError(t, err)
		assert.Nil(t, cp)
		return tx.PutYieldCheckpoint(ctx, &models.YieldCheckpoint{Owner: "alice", Since: epoch})
	})
	update(t, s, func(tx interfaces.VaultTx) error {
		return tx.PutYieldCheckpoint(ctx, &models.YieldCheckpoint{Owner: "alice", Since: epoch.Add(time.Hour)})
	})
	view(t, s, func(tx interfaces.VaultTx) error {
		cp, err := tx.YieldCheckpoint(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, cp)
		assert.True(t, epoch.Add(time.Hour).Equal(cp.Since))
		return nil
	})
}

func testWithdrawalRequests(t *testing.T, s interfaces.VaultStore) {
	ctx := context.Background()
	req := &models.WithdrawalRequest{Owner: "alice", Amount: decimal.NewFromInt(40), RequestedAt: epoch}

	update(t, s, func(tx interfaces.VaultTx) error {
		return tx.PutWithdrawalRequest(ctx, req)
	})
	view(t, s, func(tx interfaces.VaultTx) error {
		got, err := tx.WithdrawalRequest(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, req.Owner, got.Owner)
		assert.True(t, req.Amount.Equal(got.Amount))
		assert.True(t, req.RequestedAt.Equal(got.RequestedAt))
		return nil
	})

	update(t, s, func(tx interfaces.VaultTx) error {
		require.NoError(t, tx.DeleteWithdrawalRequest(ctx, "alice"))
		got, err := tx.WithdrawalRequest(ctx, "alice")
		require.NoError(t, err)
		assert.Nil(t, got)
		// Deleting a missing request is not an error.
		return tx.DeleteWithdrawalRequest(ctx, "bob")
	})
	view(t, s, func(tx interfaces.VaultTx) error {
		got, err := tx.WithdrawalRequest(ctx, "alice")
		require.NoError(t, err)
		assert.Nil(t, got)
		return nil
	})
}

func testEntries(t *testing.T, s interfaces.VaultStore) {
	ctx := context.Background()
	entries := []models.LedgerEntry{
		{ID: "e1", AccountID: "alice", Kind: models.EntryDeposit, Amount: decimal.NewFromInt(95), CreatedAt: epoch},
		{ID: "e2", AccountID: "vault", Kind: models.EntryFee, Amount: decimal.NewFromInt(5), CreatedAt: epoch},
		{ID: "e3", AccountID: "alice", Kind: models.EntryWithdrawal, Amount: decimal.NewFromInt(-50), CreatedAt: epoch.Add(time.Minute)},
	}
	update(t, s, func(tx interfaces.VaultTx) error {
		for _, e := range entries {
			if err := tx.SaveEntry(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})

	view(t, s, func(tx interfaces.VaultTx) error {
		all, err := tx.GetLedgerEntries(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		for i, e := range all {
			assert.Equal(t, entries[i].ID, e.ID)
			assert.Equal(t, entries[i].Kind, e.Kind)
			assert.True(t, entries[i].Amount.Equal(e.Amount))
			assert.True(t, entries[i].CreatedAt.Equal(e.CreatedAt))
		}

		own, err := tx.GetEntriesByAccount(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, own, 2)
		assert.Equal(t, "e1", own[0].ID)
		assert.Equal(t, "e3", own[1].ID)
		return nil
	})
}

func testRollback(t *testing.T, s interfaces.VaultStore) {
	ctx := context.Background()
	update(t, s, func(tx interfaces.VaultTx) error {
		return tx.PutState(ctx, sampleState())
	})

	err := s.Update(ctx, func(tx interfaces.VaultTx) error {
		st := sampleState()
		st.V1.DepositFeeBp = 9000
		require.NoError(t, tx.PutState(ctx, st))
		require.NoError(t, tx.PutAccount(ctx, &models.Account{Owner: "alice", Balance: decimal.NewFromInt(1), CreatedAt: epoch}))
		require.NoError(t, tx.SaveEntry(ctx, models.LedgerEntry{ID: "lost", AccountID: "alice", Kind: models.EntryDeposit, Amount: decimal.NewFromInt(1), CreatedAt: epoch}))
		return errors.ErrCollaborator
	})
	assert.True(t, errors.ErrCollaborator.Is(err))

	view(t, s, func(tx interfaces.VaultTx) error {
		st, err := tx.State(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 250, st.V1.DepositFeeBp)

		acc, err := tx.Account(ctx, "alice")
		require.NoError(t, err)
		assert.Nil(t, acc)

		all, err := tx.GetLedgerEntries(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
		return nil
	})
}

func testReadOnlyView(t *testing.T, s interfaces.VaultStore) {
	ctx := context.Background()
	err := s.View(ctx, func(tx interfaces.VaultTx) error {
		return tx.PutState(ctx, sampleState())
	})
	assert.True(t, errors.ErrStorage.Is(err))
}
