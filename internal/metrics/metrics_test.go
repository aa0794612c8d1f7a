package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe("deposit", "ok")
	m.Observe("deposit", "ok")
	m.Observe("deposit", "policy")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Operations.WithLabelValues("deposit", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("deposit", "policy")))

	count, err := testutil.GatherAndCount(reg, "custody_vault_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestObserveNil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.Observe("deposit", "ok") })
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	m.Version.Set(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Version))
}
