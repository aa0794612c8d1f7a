package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "custody_vault"

// Metrics holds the vault collectors.
type Metrics struct {
	Operations    *prometheus.CounterVec
	Version       prometheus.Gauge
	TotalDeposits prometheus.Gauge
}

// New creates the vault collectors and registers them with reg. A nil reg
// leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Vault operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		Version: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "version",
			Help:      "Active vault version.",
		}),
		TotalDeposits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_deposits",
			Help:      "Sum of all account balances in base units.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Operations, m.Version, m.TotalDeposits)
	}
	return m
}

// Observe counts an operation. outcome is "ok" or the error category.
func (m *Metrics) Observe(operation, outcome string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
}
