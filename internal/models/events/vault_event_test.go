package events

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionKey(t *testing.T) {
	assert.Equal(t, "alice", VaultEvent{Caller: "admin", Owner: "alice"}.PartitionKey())
	assert.Equal(t, "admin", VaultEvent{Caller: "admin"}.PartitionKey())
}

func TestVaultEventJSON(t *testing.T) {
	data, err := json.Marshal(VaultEvent{
		Type:   Deposited,
		Owner:  "alice",
		Amount: decimal.NewFromInt(95),
		Fee:    decimal.NewFromInt(5),
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "deposited", got["type"])
	assert.Equal(t, "95", got["amount"])
	assert.Equal(t, "5", got["fee"])
}
