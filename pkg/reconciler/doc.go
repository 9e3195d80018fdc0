/*
Package reconciler drives the periodic HA sweep of a management node.

The Reconciler owns one goroutine and one ticker. On every tick it calls
Sweep on the HA manager and waits for it to return, so sweeps never overlap
and a slow sweep simply delays the next one. The outcome of each sweep is
published as the "ha" component of the node's health endpoints.

	r := reconciler.NewReconciler(haManager, reconciler.Config{Interval: 10 * time.Second})
	r.Start()
	defer r.Stop()
*/
package reconciler
