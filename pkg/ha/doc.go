/*
Package ha is the HA coordinator of a management node.

A Manager watches the HA configs this node owns and moves each one through
the state machine in package hastate:

	Available -> Suspect -> Checking -> Degraded | Recovering
	Recovering -> Recovered -> Available
	Recovering -> Fencing -> Fenced

Signals come from three places: health check results, external reports
through ReportHealth, and the periodic Sweep. Every signal passes the same
two gates before it reaches the machine. The resource gate disables HA for
removed resources and forces Disabled while HA is switched off for the
resource, its zone or its cluster. The provider gate parks configs whose
provider is missing or refuses the resource in Ineligible.

# Work dispatch

Entering Checking, Recovering or Fencing submits a task to the matching
dispatch pool. Task results are fed back as events, so a failed recovery
simply leaves the config in Recovering for the next sweep to retry. The
per-resource counter (package counter) keeps the in-flight handles that
limit a resource to one recovery and one fence at a time, and counts
recovery attempts toward the fencing ceiling.

# Ownership

A config is evaluated only by the node named in its OwnerNodeID. Configs
created through ConfigureProvider are owned by the node that created them.
Ownership is never reassigned.

# Usage

	mgr, err := ha.NewManager(ha.Config{
		NodeID:     1,
		Store:      store,
		Providers:  providers,
		Dispatcher: dispatch.NewDispatcher(dispatch.DefaultConfig()),
		Events:     broker,
	})
	if err != nil {
		return err
	}

	if _, err := mgr.ConfigureProvider("host-12", types.ResourceTypeHost, "kvmhaprovider"); err != nil {
		return err
	}
	if _, err := mgr.EnableHA("host-12", types.ResourceTypeHost); err != nil {
		return err
	}

	// Called on a ticker by the reconciler
	_ = mgr.Sweep()
*/
package ha
