/*
Package storage provides BoltDB-backed persistence for Warden's HA state.

BoltStore keeps every record as JSON in one bucket per entity:

	ha_configs   <resourceType>/<resourceID>  -> types.HAConfig
	resources    <resourceType>/<resourceID>  -> types.Resource
	ha_flags     <scope>/<id>                 -> types.HAFlag
	managers     <nodeID>                     -> types.ManagerNode

The database file lives at <dataDir>/warden.db.

# Compare-and-set

HA configs carry a row version (UpdateCount). UpdateHAConfig only writes when
the stored version still equals the version the caller read, inside a single
bolt write transaction, and returns ErrConflict otherwise:

	cfg, _ := store.GetHAConfig(types.ResourceTypeHost, "host-1")
	version := cfg.UpdateCount
	cfg.State = types.HAStateSuspect
	if err := store.UpdateHAConfig(cfg, version); errors.Is(err, storage.ErrConflict) {
		// somebody else moved the row; reload and retry
	}

Configs are never deleted. Disabling HA is a state change, not a removal.

# Flags

Zone and cluster HA switches default to enabled when no flag has been
written.

In a multi-node deployment the BoltStore sits underneath the raft FSM in
package manager; writes go through raft and reads hit the local store.
*/
package storage
