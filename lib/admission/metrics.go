package admission

import (
	"fmt"
	"github.com/VictoriaMetrics/metrics"
	"time"
)

// policyMetrics holds the metrics of one admission policy
type policyMetrics struct {
	admitted  *metrics.Counter
	abandoned *metrics.Counter
	inFlight  *metrics.Counter
	wait      *metrics.Histogram
}

func newPolicyMetrics(policy string) *policyMetrics {
	return &policyMetrics{
		admitted:  metrics.GetOrCreateCounter(fmt.Sprintf(`kvgate_admission_admitted_total{policy=%q}`, policy)),
		abandoned: metrics.GetOrCreateCounter(fmt.Sprintf(`kvgate_admission_abandoned_total{policy=%q}`, policy)),
		inFlight:  metrics.GetOrCreateCounter(fmt.Sprintf(`kvgate_admission_in_flight{policy=%q}`, policy)),
		wait:      metrics.GetOrCreateHistogram(fmt.Sprintf(`kvgate_admission_wait_seconds{policy=%q}`, policy)),
	}
}

func (m *policyMetrics) onAdmit(start time.Time) {
	m.admitted.Inc()
	m.wait.UpdateDuration(start)
}

func (m *policyMetrics) onAbandon(start time.Time) {
	m.abandoned.Inc()
	m.wait.UpdateDuration(start)
}
