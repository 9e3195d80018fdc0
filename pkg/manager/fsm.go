package manager

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
	"github.com/hashicorp/raft"
)

// Raft log operations
const (
	OpCreateHAConfig  = "create_ha_config"
	OpUpdateHAConfig  = "update_ha_config"
	OpPutResource     = "put_resource"
	OpSetHAFlag       = "set_ha_flag"
	OpRegisterManager = "register_manager"
)

// Command represents a state change operation in the Raft log
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// NewCommand encodes payload as the data of a command
func NewCommand(op string, payload interface{}) (Command, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Command{}, fmt.Errorf("failed to marshal %s payload: %w", op, err)
	}
	return Command{Op: op, Data: data}, nil
}

// HAConfigUpdate is the payload of a compare-and-set config write
type HAConfigUpdate struct {
	Config          *types.HAConfig `json:"config"`
	ExpectedVersion int64           `json:"expectedVersion"`
}

// WardenFSM implements the Raft Finite State Machine for the replicated HA store.
// It applies committed log entries to the local BoltDB store.
type WardenFSM struct {
	mu    sync.RWMutex
	store storage.Store
}

// NewWardenFSM creates a new FSM instance
func NewWardenFSM(store storage.Store) *WardenFSM {
	return &WardenFSM{
		store: store,
	}
}

// Apply applies a Raft log entry to the FSM. The returned value is the
// error of the store operation, or nil.
func (f *WardenFSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case OpCreateHAConfig:
		var cfg types.HAConfig
		if err := json.Unmarshal(cmd.Data, &cfg); err != nil {
			return err
		}
		return f.store.CreateHAConfig(&cfg)

	case OpUpdateHAConfig:
		var update HAConfigUpdate
		if err := json.Unmarshal(cmd.Data, &update); err != nil {
			return err
		}
		if update.Config == nil {
			return fmt.Errorf("update_ha_config without config")
		}
		return f.store.UpdateHAConfig(update.Config, update.ExpectedVersion)

	case OpPutResource:
		var resource types.Resource
		if err := json.Unmarshal(cmd.Data, &resource); err != nil {
			return err
		}
		return f.store.PutResource(&resource)

	case OpSetHAFlag:
		var flag types.HAFlag
		if err := json.Unmarshal(cmd.Data, &flag); err != nil {
			return err
		}
		return f.store.SetHAEnabled(flag.Scope, flag.ID, flag.Enabled)

	case OpRegisterManager:
		var node types.ManagerNode
		if err := json.Unmarshal(cmd.Data, &node); err != nil {
			return err
		}
		return f.store.PutManager(&node)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot creates a point-in-time snapshot of the FSM.
// This is called periodically by Raft to compact the log.
func (f *WardenFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	configs, err := f.store.ListHAConfigs()
	if err != nil {
		return nil, fmt.Errorf("failed to list ha configs: %w", err)
	}

	resources, err := f.store.ListResources()
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}

	flags, err := f.store.ListHAFlags()
	if err != nil {
		return nil, fmt.Errorf("failed to list ha flags: %w", err)
	}

	managers, err := f.store.ListManagers()
	if err != nil {
		return nil, fmt.Errorf("failed to list managers: %w", err)
	}

	return &WardenSnapshot{
		HAConfigs: configs,
		Resources: resources,
		HAFlags:   flags,
		Managers:  managers,
	}, nil
}

// Restore restores the FSM from a snapshot.
// This is called when a node restarts or joins the cluster.
func (f *WardenFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snapshot WardenSnapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Rows are written as they are, keeping their versions
	for _, cfg := range snapshot.HAConfigs {
		if err := f.store.PutHAConfig(cfg); err != nil {
			return fmt.Errorf("failed to restore ha config: %w", err)
		}
	}

	for _, resource := range snapshot.Resources {
		if err := f.store.PutResource(resource); err != nil {
			return fmt.Errorf("failed to restore resource: %w", err)
		}
	}

	for _, flag := range snapshot.HAFlags {
		if err := f.store.SetHAEnabled(flag.Scope, flag.ID, flag.Enabled); err != nil {
			return fmt.Errorf("failed to restore ha flag: %w", err)
		}
	}

	for _, node := range snapshot.Managers {
		if err := f.store.PutManager(node); err != nil {
			return fmt.Errorf("failed to restore manager: %w", err)
		}
	}

	return nil
}

// WardenSnapshot represents a point-in-time snapshot of the replicated store
type WardenSnapshot struct {
	HAConfigs []*types.HAConfig
	Resources []*types.Resource
	HAFlags   []*types.HAFlag
	Managers  []*types.ManagerNode
}

// Persist writes the snapshot to the given SnapshotSink
func (s *WardenSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()

	if err != nil {
		sink.Cancel()
	}

	return err
}

// Release releases the snapshot resources
func (s *WardenSnapshot) Release() {}
