package memory

import (
	"testing"

	interfaces "github.com/sheikh-saqib/custody-vault-ledger/internal/interfaces"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/storage/storetest"
)

func TestMemoryVaultStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) interfaces.VaultStore {
		return NewMemoryVaultStore()
	})
}
