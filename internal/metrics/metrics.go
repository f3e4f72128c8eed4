// Package metrics exposes the request engine's Prometheus instrumentation,
// registered the way the teacher's daemon/prometheus.go registers its
// CounterVec and frameconn_prometheus.go registers its connection metrics:
// package-level metric objects built in init, attached to an explicit
// Registerer by PrometheusRegister instead of the global default so a
// caller embedding this module controls where metrics end up.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var prom struct {
	opsTotal       *prometheus.CounterVec
	opErrorsTotal  *prometheus.CounterVec
	opDuration     *prometheus.HistogramVec
	outstanding    prometheus.Gauge
	timeouts       *prometheus.CounterVec
	connReconnects *prometheus.CounterVec
}

func init() {
	prom.opsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meshkv",
		Subsystem: "session",
		Name:      "ops_total",
		Help:      "Number of session operations dispatched, by opcode.",
	}, []string{"op"})
	prom.opErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meshkv",
		Subsystem: "session",
		Name:      "op_errors_total",
		Help:      "Number of session operations that completed with an error, by opcode.",
	}, []string{"op"})
	prom.opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "meshkv",
		Subsystem: "session",
		Name:      "op_duration_seconds",
		Help:      "Latency of session operations from dispatch to final reply, by opcode.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
	prom.outstanding = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "meshkv",
		Subsystem: "transport",
		Name:      "outstanding_transactions",
		Help:      "Number of transactions currently registered in the transaction table.",
	})
	prom.timeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meshkv",
		Subsystem: "transport",
		Name:      "transaction_timeouts_total",
		Help:      "Number of transactions resolved by the deadline queue instead of a reply, by opcode.",
	}, []string{"op"})
	prom.connReconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meshkv",
		Subsystem: "transport",
		Name:      "pool_reconnects_total",
		Help:      "Number of times the connection pool dialed a node, by node address.",
	}, []string{"node"})
}

// PrometheusRegister registers every metric with registry. Call it once,
// the way daemon/prometheus.go's Run registers its own package's metrics
// before serving /metrics.
func PrometheusRegister(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		prom.opsTotal,
		prom.opErrorsTotal,
		prom.opDuration,
		prom.outstanding,
		prom.timeouts,
		prom.connReconnects,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collector is the handle session.Session and transport.Pool hold to
// record instrumentation; it exists so those packages depend on a small
// interface-shaped struct rather than reaching into the package-level prom
// state directly.
type Collector struct{}

// New returns a Collector. Metrics are package-level (see PrometheusRegister),
// so every Collector records into the same series; New exists to give
// callers an explicit value to thread through constructors.
func New() *Collector {
	return &Collector{}
}

// ObserveOp records one completed operation: whether it ended in error and
// how long it took from dispatch to final reply.
func (c *Collector) ObserveOp(op string, took time.Duration, err error) {
	if c == nil {
		return
	}
	prom.opsTotal.WithLabelValues(op).Inc()
	prom.opDuration.WithLabelValues(op).Observe(took.Seconds())
	if err != nil {
		prom.opErrorsTotal.WithLabelValues(op).Inc()
	}
}

// SetOutstanding reports the transaction table's current size.
func (c *Collector) SetOutstanding(n int) {
	if c == nil {
		return
	}
	prom.outstanding.Set(float64(n))
}

// ObserveTimeout records a transaction resolved by the deadline queue
// instead of a genuine reply.
func (c *Collector) ObserveTimeout(op string) {
	if c == nil {
		return
	}
	prom.timeouts.WithLabelValues(op).Inc()
}

// ObserveReconnect records the connection pool dialing a node.
func (c *Collector) ObserveReconnect(node string) {
	if c == nil {
		return
	}
	prom.connReconnects.WithLabelValues(node).Inc()
}
