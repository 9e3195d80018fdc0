/*
Package manager implements a Warden management node: a raft member that
replicates the HA store to every other management node.

# Architecture

	┌──────────────── MANAGEMENT NODE ────────────────┐
	│                                                 │
	│   HTTP API (pkg/api)      HA manager (pkg/ha)   │
	│          │                       │              │
	│          └──────────┬────────────┘              │
	│                     ▼                           │
	│                  Manager                        │
	│     reads: local BoltStore                      │
	│     writes: raft log (forwarded to the leader)  │
	│                     │                           │
	│                     ▼                           │
	│   WardenFSM ──► storage.BoltStore               │
	│                                                 │
	└─────────────────────────────────────────────────┘

Manager implements the store interface package ha expects, so the HA
manager runs unchanged on one node or many. Raft only replicates data.
It does not decide which node evaluates a config; that is the static
OwnerNodeID on each HA config.

# Writes

Every write is a Command applied through raft:

	create_ha_config   new config, fails with storage.ErrAlreadyExists
	update_ha_config   compare-and-set on the row version
	put_resource       register or update a managed resource
	set_ha_flag        zone or cluster HA switch
	register_manager   record a management node and its API address

On the leader Apply goes straight to raft. A follower looks up the leader's
API address in the replicated managers registry, posts the command to
/v1/raft/apply and waits until its own FSM has applied the returned index,
so a write is readable locally as soon as Apply returns. The FSM returns
store errors as the raft response; the compare-and-set conflict therefore
reaches the caller as storage.ErrConflict on either node.

# Cluster membership

	mgr, _ := manager.NewManager(&manager.Config{
		NodeID:   1,
		BindAddr: "10.0.0.1:7946",
		APIAddr:  "10.0.0.1:8080",
		DataDir:  "/var/lib/warden",
	})
	if err := mgr.Bootstrap(); err != nil {
		return err
	}
	token, _ := mgr.GenerateJoinToken(time.Hour)

	// on the second node
	err := mgr2.Join(ctx, "10.0.0.1:8080", token.Token)

Join tokens are random, single use and expire; they live only in the
memory of the leader that issued them.

# Metrics

MetricsCollector publishes warden_ha_configs per state and the raft gauges
every 15 seconds, and keeps the raft and store component health current for
the /ready probe.
*/
package manager
