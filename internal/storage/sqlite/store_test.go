package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	interfaces "github.com/sheikh-saqib/custody-vault-ledger/internal/interfaces"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/storage/storetest"
)

func TestSQLiteVaultStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) interfaces.VaultStore {
		store, err := NewSQLiteVaultStore(context.Background(), ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestSQLiteVaultStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.db")

	store, err := NewSQLiteVaultStore(ctx, path)
	require.NoError(t, err)
	err = store.Update(ctx, func(tx interfaces.VaultTx) error {
		return tx.PutState(ctx, &models.State{
			Version:     models.V1,
			Initialized: models.V1,
			V1:          models.ConfigV1{AssetRef: "USDC", Admin: "admin"},
		})
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteVaultStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	err = reopened.View(ctx, func(tx interfaces.VaultTx) error {
		st, err := tx.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.Address("admin"), st.V1.Admin)
		return nil
	})
	require.NoError(t, err)
}
