package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "engine",
		Name:      "tick_duration_seconds",
		Help:      "Duration of a single engine loop tick in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	AlertsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "alerts_processed_total",
		Help:      "Total number of alerts dispatched, by alert kind.",
	}, []string{"kind"})

	TasksProcessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "tasks_processed_total",
		Help:      "Total number of queued commands drained and executed.",
	})

	CommandQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "engine",
		Name:      "command_queue_depth",
		Help:      "Number of commands currently pending in the command queue.",
	})

	PersistenceWriteDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "engine",
		Name:      "persistence_write_duration_seconds",
		Help:      "Duration of atomic on-disk writes, by artifact kind.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"artifact"})

	PersistenceWriteFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "persistence_write_failures_total",
		Help:      "Total number of failed atomic on-disk writes, by artifact kind.",
	}, []string{"artifact"})

	TorrentsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "engine",
		Name:      "torrents_total",
		Help:      "Number of torrents currently tracked by the engine.",
	})

	RPCIdsAssignedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "rpc_ids_assigned_total",
		Help:      "Total number of new RPC ids assigned to newly seen info hashes.",
	})
)

// Register wires every engine metric into reg. Called once from the
// composition root; a nil reg (no Prometheus registry configured) is
// never passed in, the caller skips Register entirely in that case.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		TickDuration,
		AlertsProcessedTotal,
		TasksProcessedTotal,
		CommandQueueDepth,
		PersistenceWriteDuration,
		PersistenceWriteFailuresTotal,
		TorrentsTotal,
		RPCIdsAssignedTotal,
	)
}
