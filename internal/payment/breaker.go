package payment

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Facilitator circuit breaker thresholds
const (
	facilitatorMinRequests     uint32  = 5
	facilitatorFailureRatio    float64 = 0.6
	facilitatorOpenTimeout             = 30 * time.Second
	facilitatorHalfOpenMaxReqs uint32  = 3
	facilitatorCountInterval           = 10 * time.Second
)

// breakerMetrics holds Prometheus metrics for the settlement breaker
type breakerMetrics struct {
	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
}

var (
	globalBreakerMetrics *breakerMetrics
	breakerMetricsOnce   sync.Once
)

// getBreakerMetrics returns the process-wide metrics instance, registering
// the collectors exactly once
func getBreakerMetrics() *breakerMetrics {
	breakerMetricsOnce.Do(func() {
		globalBreakerMetrics = &breakerMetrics{
			state: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "mesh_settlement_breaker_state",
					Help: "Settlement circuit breaker state (0=closed, 1=open, 2=half_open)",
				},
				[]string{"breaker"},
			),
			requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mesh_settlement_requests_total",
					Help: "Total settlement requests through the circuit breaker",
				},
				[]string{"breaker", "result"},
			),
		}
	})
	return globalBreakerMetrics
}

func (m *breakerMetrics) recordState(name string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateOpen:
		v = 1
	case gobreaker.StateHalfOpen:
		v = 2
	}
	m.state.WithLabelValues(name).Set(v)
}

func (m *breakerMetrics) recordRequest(name string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.requests.WithLabelValues(name, result).Inc()
}
