/*
Package types defines the core data structures used throughout Warden.

These types describe the HA domain model shared by the coordinator, the
replicated store and the operator API: managed resources (hypervisor hosts),
their durable HA configuration, the lifecycle states and events of the HA
state machine, zone/cluster switches and the management nodes of the cluster.

# Core Types

Resources:
  - Resource: a managed host with its cluster, zone and out-of-band address
  - ResourceType: currently only Host

HA configuration:
  - HAConfig: one row per (ResourceType, ResourceID); State, Enabled,
    ProviderKey and the owning management node
  - HAState: Available, Suspect, Checking, Degraded, Recovering, Recovered,
    Fencing, Fenced, Disabled, Ineligible
  - HAEvent: the events accepted by the state machine

Cluster:
  - HAFlag: zone- or cluster-wide HA switch (absent means enabled)
  - ManagerNode: management node identity with its raft and API addresses
  - HostStatus: coarse Up/Down/Disconnected/Unknown status for legacy callers

# Keys

Resources and configs are addressed by the composite key returned by Key,
"<type>/<id>", e.g. "Host/host-12". The same key indexes the store buckets and
the in-memory resource counters.

# Ownership

HAConfig.OwnerNodeID pins a config to the management node that created it.
OwnedBy reports whether a node may evaluate the config: a nil owner is
claimable by any node. Ownership is never reassigned by Warden.
*/
package types
