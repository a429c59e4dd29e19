package mwarpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments an RpcEndpoint reports against.
// Construct one with NewMetrics and pass it to WithMetrics.
type Metrics struct {
	PendingCalls       prometheus.Gauge
	CallsTotal         *prometheus.CounterVec
	CallTimeoutsTotal  *prometheus.CounterVec
	CallCancelledTotal *prometheus.CounterVec
	DroppedFramesTotal prometheus.Counter
}

// NewMetrics registers a Metrics set against the default Prometheus
// registerer. Use NewMetricsWithRegistry for a custom registry, e.g. in
// tests.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(nil)
}

// NewMetricsWithRegistry registers a Metrics set against registry, or the
// default registerer if registry is nil.
func NewMetricsWithRegistry(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		PendingCalls: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mwa_rpc_pending_calls",
			Help: "The current number of outbound calls awaiting a response.",
		}),
		CallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mwa_rpc_calls_total",
			Help: "The total number of outbound calls issued, by method.",
		}, []string{"method"}),
		CallTimeoutsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mwa_rpc_call_timeouts_total",
			Help: "The total number of outbound calls that timed out, by method.",
		}, []string{"method"}),
		CallCancelledTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mwa_rpc_call_cancelled_total",
			Help: "The total number of outbound calls cancelled before completion, by method.",
		}, []string{"method"}),
		DroppedFramesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "mwa_rpc_dropped_frames_total",
			Help: "The total number of inbound frames dropped for being malformed or unmatched.",
		}),
	}
}

// WithMetrics attaches m to the endpoint so Call/HandleFrame report against
// it. Passing nil detaches metrics reporting.
func (ep *RpcEndpoint) WithMetrics(m *Metrics) *RpcEndpoint {
	ep.metrics = m
	return ep
}
