// Package metrics exposes the engine's Prometheus instrumentation,
// adapted from the teacher's Collector (prometheus/client_golang
// counters/gauges/histograms) but re-keyed to this engine's concrete
// sandwich pipeline instead of the teacher's generic multi-strategy
// trade/opportunity model.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector owns every Prometheus metric the strategy loop reports
// against, registered once at construction the way the teacher's
// initPrometheusMetrics did.
type Collector struct {
	probesAttempted   prometheus.Counter
	probesProfitable  prometheus.Counter
	bundlesPacked     prometheus.Counter
	bundlesDispatched prometheus.Counter
	dispatchFailures  prometheus.Counter
	bundleRevenue     prometheus.Histogram
	simulationLatency *prometheus.HistogramVec
	pendingTxGauge    prometheus.Gauge
	promisingGauge    prometheus.Gauge
	currentBlockGauge prometheus.Gauge
}

// NewCollector registers and returns a Collector against the default
// Prometheus registry.
func NewCollector() *Collector {
	return NewCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry registers against a caller-supplied registerer,
// matching the teacher's NewCollectorWithRegistry (useful for tests, which
// must not collide with the global default registry).
func NewCollectorWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		probesAttempted: factory.NewCounter(prometheus.CounterOpts{
			Name: "sandwich_probes_attempted_total",
			Help: "Buy-direction swaps probed by the appetizer stage.",
		}),
		probesProfitable: factory.NewCounter(prometheus.CounterOpts{
			Name: "sandwich_probes_profitable_total",
			Help: "Probes that cleared the positive-profit admission check.",
		}),
		bundlesPacked: factory.NewCounter(prometheus.CounterOpts{
			Name: "sandwich_bundles_packed_total",
			Help: "Bundles produced by the multi-sandwich packer.",
		}),
		bundlesDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "sandwich_bundles_dispatched_total",
			Help: "Bundles broadcast to at least one relay.",
		}),
		dispatchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sandwich_dispatch_failures_total",
			Help: "Bundle dispatch attempts that failed against every relay.",
		}),
		bundleRevenue: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sandwich_bundle_revenue_wei",
			Help:    "Revenue of dispatched bundles, before the bribe is carved out.",
			Buckets: prometheus.ExponentialBuckets(1e14, 4, 12),
		}),
		simulationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sandwich_simulation_duration_seconds",
			Help:    "Duration of a single bundle/probe simulation, by stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		pendingTxGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sandwich_pending_tx_count",
			Help: "Transactions currently tracked in the strategy loop's pending-tx table.",
		}),
		promisingGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sandwich_promising_count",
			Help: "Pending transactions with at least one promising sandwich prospect.",
		}),
		currentBlockGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sandwich_current_block",
			Help: "Most recent block number observed by the strategy loop.",
		}),
	}
}

// RecordProbe records one appetizer probe outcome.
func (c *Collector) RecordProbe(profitable bool) {
	c.probesAttempted.Inc()
	if profitable {
		c.probesProfitable.Inc()
	}
}

// RecordBundlePacked records one bundle emitted by the packer.
func (c *Collector) RecordBundlePacked() {
	c.bundlesPacked.Inc()
}

// RecordDispatch records a dispatch attempt's outcome and, on success, the
// bundle's simulated revenue.
func (c *Collector) RecordDispatch(ok bool, revenueWei float64) {
	if ok {
		c.bundlesDispatched.Inc()
		c.bundleRevenue.Observe(revenueWei)
		return
	}
	c.dispatchFailures.Inc()
}

// ObserveSimulation records how long a simulation stage took.
func (c *Collector) ObserveSimulation(stage string, d time.Duration) {
	c.simulationLatency.WithLabelValues(stage).Observe(d.Seconds())
}

// SetLoopState snapshots the strategy loop's live counters into gauges,
// called once per block from the strategy loop.
func (c *Collector) SetLoopState(currentBlock uint64, pendingCount, promisingCount int) {
	c.currentBlockGauge.Set(float64(currentBlock))
	c.pendingTxGauge.Set(float64(pendingCount))
	c.promisingGauge.Set(float64(promisingCount))
}
