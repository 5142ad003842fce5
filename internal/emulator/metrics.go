package emulator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes recorded by the emulator.
const (
	outcomeOK       = "ok"
	outcomeConflict = "conflict"
	outcomeInvalid  = "invalid"
)

// metrics tracks template traffic.
//
// Labels on requests: method (GET|PUT), outcome (ok|conflict|invalid)
type metrics struct {
	requests *prometheus.CounterVec
	writes   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rconf_emulator_requests_total",
				Help: "Total number of template requests by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		writes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rconf_emulator_template_writes_total",
				Help: "Total number of accepted template writes",
			},
		),
	}
}

func (m *metrics) observe(method, outcome string) {
	m.requests.WithLabelValues(method, outcome).Inc()
}
