package ledger

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts ledger writes by operation.
type Metrics struct {
	writes *prometheus.CounterVec
}

// NewMetrics registers the ledger collectors against the given registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	writes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moneymint_ledger_writes_total",
		Help: "Committed ledger writes partitioned by operation.",
	}, []string{"op"})
	registerer.MustRegister(writes)
	return &Metrics{writes: writes}
}

// ObserveWrite records one committed write.
func (m *Metrics) ObserveWrite(op string) {
	if m == nil || m.writes == nil {
		return
	}
	m.writes.WithLabelValues(op).Inc()
}
