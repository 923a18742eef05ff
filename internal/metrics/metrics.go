// Package metrics exposes MOAC's Prometheus collectors: object-graph gauges,
// reconciliation cycle timings and RPC call outcomes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	NodesTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "moac_nodes_total",
		Help: "Number of known nodes by connection state.",
	}, []string{"state"})

	PoolsTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "moac_pools_total",
		Help: "Number of known pools by state.",
	}, []string{"state"})

	VolumesTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "moac_volumes_total",
		Help: "Number of known volumes by state.",
	}, []string{"state"})

	ReconciliationCyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "moac_reconciliation_cycles_total",
		Help: "Total number of pool-operator reconciliation cycles run.",
	})

	ReconciliationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "moac_reconciliation_duration_seconds",
		Help:    "Duration of a single per-volume fsa run.",
		Buckets: prometheus.DefBuckets,
	})

	FsaRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moac_volume_fsa_runs_total",
		Help: "Total number of per-volume fsa advances, by the volume state the advance started from.",
	}, []string{"state"})

	SchedulingLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "moac_scheduling_latency_seconds",
		Help:    "Time to choose pools for a replica placement request.",
		Buckets: prometheus.DefBuckets,
	})

	RPCDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "moac_agent_rpc_duration_seconds",
		Help:    "Duration of agent RPC calls, by method and outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "outcome"})

	RaftLeader = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "moac_raft_leader",
		Help: "1 if this replica is the current raft leader, else 0.",
	})
)

func init() {
	prometheus.MustRegister(
		NodesTotal,
		PoolsTotal,
		VolumesTotal,
		ReconciliationCyclesTotal,
		ReconciliationDuration,
		FsaRunsTotal,
		SchedulingLatency,
		RPCDuration,
		RaftLeader,
	)
}

// Handler returns the HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation's duration for an Observer.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time on the given histogram.
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(time.Since(t.start).Seconds())
}
