/*
Package dispatch runs HA probes and actions on bounded worker pools.

A Dispatcher owns four pools, one per Kind: health-check, activity-check,
recovery and fence. Each pool has a fixed number of workers and a bounded
queue. When the queue is full, Submit runs the task on the submitting
goroutine instead of rejecting it, which throttles the producer (usually the
HA sweep) to the pool's pace. Caller runs are counted in
warden_ha_pool_caller_runs_total.

Every task runs under its own deadline:

	f, err := d.Submit(dispatch.KindRecovery, dispatch.Task{
		ID:      "recover/Host/host-1",
		Timeout: params.RecoveryTimeout,
		Fn: func(ctx context.Context) error {
			return provider.Recover(ctx, host)
		},
		OnComplete: func(err error) { ... },
	})

A task that overruns its deadline is reported as context.DeadlineExceeded and
treated like any other failure. OnComplete runs before the Future completes,
so a caller waiting on the Future observes the side effects of OnComplete.
*/
package dispatch
