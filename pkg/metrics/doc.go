/*
Package metrics exposes Warden's Prometheus metrics and the node health
endpoints.

All collectors are package globals registered with the default registry in
init, and Handler serves them on /metrics:

	metrics.HATransitionsTotal.WithLabelValues("Suspect", "Checking", "PerformActivityCheck").Inc()

	timer := metrics.NewTimer()
	runSweep()
	timer.ObserveDuration(metrics.HASweepDuration)

# HA metrics

  - warden_ha_configs{state}: configs per HA state, refreshed by the manager's collector
  - warden_ha_transitions_total{from,to,event}: applied transitions
  - warden_ha_invalid_transitions_total{from,event}: rejected (state, event) pairs
  - warden_ha_transition_conflicts_total: transitions lost to a concurrent writer
  - warden_ha_tasks_total{pool,result} and warden_ha_task_duration_seconds{pool}
  - warden_ha_pool_caller_runs_total{pool}: tasks run on the submitter because the queue was full
  - warden_ha_pool_queue_depth{pool}
  - warden_ha_sweep_duration_seconds and warden_ha_sweep_errors_total
  - warden_ha_audit_events_total{type}

Raft gauges (leader, peers, log and applied index) are refreshed by the
manager package.

# Health

UpdateComponent records the state of a named component. /health is unhealthy
when any component is, /ready waits for the critical components (raft, store,
ha by default) and /live always answers 200.
*/
package metrics
