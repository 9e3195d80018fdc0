package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HA state machine metrics
	HAConfigsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warden_ha_configs",
			Help: "Number of HA configurations by state",
		},
		[]string{"state"},
	)

	HATransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_ha_transitions_total",
			Help: "Total number of applied HA state transitions",
		},
		[]string{"from", "to", "event"},
	)

	HAInvalidTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_ha_invalid_transitions_total",
			Help: "Total number of rejected HA state transitions",
		},
		[]string{"from", "event"},
	)

	HATransitionConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_ha_transition_conflicts_total",
			Help: "Total number of HA transitions lost to a concurrent update",
		},
	)

	// Task dispatch metrics
	HATasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_ha_tasks_total",
			Help: "Total number of HA tasks by pool and result",
		},
		[]string{"pool", "result"},
	)

	HATaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warden_ha_task_duration_seconds",
			Help:    "HA task duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pool"},
	)

	HAPoolCallerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_ha_pool_caller_runs_total",
			Help: "Total number of tasks run on the submitter because the pool queue was full",
		},
		[]string{"pool"},
	)

	HAPoolQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warden_ha_pool_queue_depth",
			Help: "Number of tasks waiting in a pool queue",
		},
		[]string{"pool"},
	)

	// Sweep metrics
	HASweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warden_ha_sweep_duration_seconds",
			Help:    "Time taken by one HA sweep in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	HASweepErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_ha_sweep_errors_total",
			Help: "Total number of per-config failures recovered during sweeps",
		},
	)

	HAAuditEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_ha_audit_events_total",
			Help: "Total number of HA audit events published by type",
		},
		[]string{"type"},
	)

	HAAuditEventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_ha_audit_events_dropped_total",
			Help: "Total number of audit events dropped on a full buffer, by type",
		},
		[]string{"type"},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warden_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(HAConfigsTotal)
	prometheus.MustRegister(HATransitionsTotal)
	prometheus.MustRegister(HAInvalidTransitionsTotal)
	prometheus.MustRegister(HATransitionConflictsTotal)
	prometheus.MustRegister(HATasksTotal)
	prometheus.MustRegister(HATaskDuration)
	prometheus.MustRegister(HAPoolCallerRunsTotal)
	prometheus.MustRegister(HAPoolQueueDepth)
	prometheus.MustRegister(HASweepDuration)
	prometheus.MustRegister(HASweepErrorsTotal)
	prometheus.MustRegister(HAAuditEventsTotal)
	prometheus.MustRegister(HAAuditEventsDroppedTotal)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
