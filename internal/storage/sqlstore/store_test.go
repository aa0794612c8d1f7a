package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebind(t *testing.T) {
	query := `INSERT INTO t (a, b) VALUES (?, ?) ON CONFLICT (a) DO UPDATE SET b = ?`

	numbered := &sqlTx{dialect: Dialect{NumberedPlaceholders: true}}
	assert.Equal(t, `INSERT INTO t (a, b) VALUES ($1, $2) ON CONFLICT (a) DO UPDATE SET b = $3`, numbered.rebind(query))

	plain := &sqlTx{dialect: Dialect{}}
	assert.Equal(t, query, plain.rebind(query))
}
