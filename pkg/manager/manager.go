package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cuemby/warden/pkg/client"
	"github.com/cuemby/warden/pkg/events"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

const (
	applyTimeout      = 5 * time.Second
	readIndexTimeout  = 2 * time.Second
	leadershipTimeout = 10 * time.Second
)

// ErrNoLeader is returned when a write cannot find the raft leader
var ErrNoLeader = errors.New("no raft leader")

// Manager represents a Warden management node. It replicates the HA store
// through raft: reads are served from the local BoltDB store and writes are
// applied through the raft log, forwarded to the leader when this node
// follows.
type Manager struct {
	nodeID   int64
	bindAddr string
	apiAddr  string
	dataDir  string

	raft         *raft.Raft
	fsm          *WardenFSM
	store        storage.Store
	tokenManager *TokenManager
	eventBroker  *events.Broker
	clock        clock.PassiveClock
	logger       zerolog.Logger
}

// Config holds configuration for creating a Manager
type Config struct {
	NodeID int64

	// BindAddr is the raft transport address
	BindAddr string

	// APIAddr is the HTTP API address other nodes use to reach this one
	APIAddr string

	DataDir string

	// Clock defaults to the real clock
	Clock clock.PassiveClock
}

// NewManager creates a new Manager instance
func NewManager(cfg *Config) (*Manager, error) {
	if cfg.NodeID <= 0 {
		return nil, fmt.Errorf("node id must be positive, got %d", cfg.NodeID)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	eventBroker := events.NewBroker()
	eventBroker.Start()

	return &Manager{
		nodeID:       cfg.NodeID,
		bindAddr:     cfg.BindAddr,
		apiAddr:      cfg.APIAddr,
		dataDir:      cfg.DataDir,
		fsm:          NewWardenFSM(store),
		store:        store,
		tokenManager: NewTokenManager(clk),
		eventBroker:  eventBroker,
		clock:        clk,
		logger:       log.WithComponent("manager").With().Int64("node_id", cfg.NodeID).Logger(),
	}, nil
}

// NodeID returns the id of this management node
func (m *Manager) NodeID() int64 {
	return m.nodeID
}

func serverID(nodeID int64) raft.ServerID {
	return raft.ServerID(strconv.FormatInt(nodeID, 10))
}

func (m *Manager) raftConfig() *raft.Config {
	config := raft.DefaultConfig()
	config.LocalID = serverID(m.nodeID)

	// Faster failover than the WAN-oriented defaults; management nodes share a LAN
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	config.Logger = hclog.New(&hclog.LoggerOptions{
		Name:   "raft",
		Level:  log.CurrentLevel().HCLogLevel(),
		Output: log.WithComponent("raft"),
	})
	return config
}

// openRaft creates the on-disk raft stores and transport and starts raft
func (m *Manager) openRaft() (raft.ServerAddress, error) {
	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return "", fmt.Errorf("failed to resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
	if err != nil {
		return "", fmt.Errorf("failed to create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
	if err != nil {
		return "", fmt.Errorf("failed to create stable store: %w", err)
	}

	if err := m.startRaft(logStore, stableStore, snapshotStore, transport); err != nil {
		return "", err
	}
	return transport.LocalAddr(), nil
}

func (m *Manager) startRaft(logs raft.LogStore, stable raft.StableStore, snaps raft.SnapshotStore, transport raft.Transport) error {
	r, err := raft.NewRaft(m.raftConfig(), m.fsm, logs, stable, snaps, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft: %w", err)
	}
	m.raft = r
	return nil
}

// Bootstrap initializes a new single-node cluster and registers this node
func (m *Manager) Bootstrap() error {
	addr, err := m.openRaft()
	if err != nil {
		return err
	}
	return m.bootstrap(addr)
}

func (m *Manager) bootstrap(addr raft.ServerAddress) error {
	configuration := raft.Configuration{
		Servers: []raft.Server{
			{
				ID:      serverID(m.nodeID),
				Address: addr,
			},
		},
	}

	future := m.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
		return fmt.Errorf("failed to bootstrap cluster: %w", err)
	}

	if err := m.waitForLeader(leadershipTimeout); err != nil {
		return err
	}

	m.logger.Info().Str("raft_addr", string(addr)).Msg("Cluster bootstrapped")
	return m.RegisterManager(&types.ManagerNode{
		ID:       m.nodeID,
		RaftAddr: string(addr),
		APIAddr:  m.apiAddr,
		JoinedAt: m.clock.Now(),
	})
}

// Join starts raft and asks the leader behind leaderAPI to add this node
func (m *Manager) Join(ctx context.Context, leaderAPI, token string) error {
	addr, err := m.openRaft()
	if err != nil {
		return err
	}

	m.logger.Info().Str("leader_api", leaderAPI).Msg("Joining cluster")

	c, err := client.NewClient(leaderAPI)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	err = c.JoinCluster(ctx, client.JoinRequest{
		NodeID:   m.nodeID,
		RaftAddr: string(addr),
		APIAddr:  m.apiAddr,
		Token:    token,
	})
	if err != nil {
		return fmt.Errorf("failed to join cluster: %w", err)
	}

	m.logger.Info().Msg("Joined cluster")
	return nil
}

func (m *Manager) waitForLeader(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if addr, _ := m.raft.LeaderWithID(); addr != "" {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("%w after %v", ErrNoLeader, timeout)
}

// AddVoter adds a management node to the raft configuration and registers it.
// Only the leader can add voters.
func (m *Manager) AddVoter(node *types.ManagerNode) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return raft.ErrNotLeader
	}

	m.logger.Info().
		Int64("voter_id", node.ID).
		Str("raft_addr", node.RaftAddr).
		Msg("Adding voter")

	future := m.raft.AddVoter(serverID(node.ID), raft.ServerAddress(node.RaftAddr), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to add voter: %w", err)
	}

	if node.JoinedAt.IsZero() {
		node.JoinedAt = m.clock.Now()
	}
	if err := m.RegisterManager(node); err != nil {
		return err
	}

	m.eventBroker.Publish(&events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventManagerJoined,
		Timestamp: node.JoinedAt,
		Message:   fmt.Sprintf("Management node %d joined", node.ID),
		Metadata: map[string]string{
			"node_id":   strconv.FormatInt(node.ID, 10),
			"raft_addr": node.RaftAddr,
			"api_addr":  node.APIAddr,
		},
	})
	return nil
}

// GetClusterServers returns all servers in the raft configuration
func (m *Manager) GetClusterServers() ([]raft.Server, error) {
	if m.raft == nil {
		return nil, fmt.Errorf("raft not initialized")
	}

	future := m.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}
	return future.Configuration().Servers, nil
}

// IsLeader returns true if this manager is the raft leader
func (m *Manager) IsLeader() bool {
	if m.raft == nil {
		return false
	}
	return m.raft.State() == raft.Leader
}

// LeaderAddr returns the raft address of the current leader
func (m *Manager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	addr, _ := m.raft.LeaderWithID()
	return string(addr)
}

// GetRaftStats returns raft statistics
func (m *Manager) GetRaftStats() map[string]interface{} {
	if m.raft == nil {
		return nil
	}

	stats := map[string]interface{}{
		"state":          m.raft.State().String(),
		"last_log_index": m.raft.LastIndex(),
		"applied_index":  m.raft.AppliedIndex(),
		"leader":         m.LeaderAddr(),
	}
	if servers, err := m.GetClusterServers(); err == nil {
		stats["peers"] = uint64(len(servers))
	}
	return stats
}

// EventBroker returns the audit event broker
func (m *Manager) EventBroker() *events.Broker {
	return m.eventBroker
}

// GenerateJoinToken issues a join token; only the leader can validate it
func (m *Manager) GenerateJoinToken(ttl time.Duration) (*JoinToken, error) {
	if !m.IsLeader() {
		return nil, raft.ErrNotLeader
	}
	return m.tokenManager.GenerateToken(ttl)
}

// ValidateJoinToken consumes a join token
func (m *Manager) ValidateJoinToken(token string) error {
	m.tokenManager.CleanupExpiredTokens()
	return m.tokenManager.ValidateToken(token)
}

// ApplyLocal submits a command to this node's raft and returns its log
// index. It fails with raft.ErrNotLeader on followers.
func (m *Manager) ApplyLocal(cmd Command) (uint64, error) {
	if m.raft == nil {
		return 0, fmt.Errorf("raft not initialized")
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal command: %w", err)
	}

	future := m.raft.Apply(data, applyTimeout)
	if err := future.Error(); err != nil {
		return 0, fmt.Errorf("failed to apply command: %w", err)
	}

	// The FSM reports store errors as the response
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return 0, err
		}
	}
	return future.Index(), nil
}

// Apply submits a command to the cluster. Followers forward it to the
// leader's API and wait until the entry is applied locally, so a write is
// visible to reads on this node once Apply returns.
func (m *Manager) Apply(cmd Command) error {
	if m.IsLeader() {
		_, err := m.ApplyLocal(cmd)
		return err
	}

	leaderAPI, err := m.leaderAPI()
	if err != nil {
		return err
	}
	c, err := client.NewClient(leaderAPI)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()
	index, err := c.ApplyCommand(ctx, cmd)
	if err != nil {
		return fmt.Errorf("failed to forward %s to leader: %w", cmd.Op, err)
	}
	return m.waitForIndex(index, readIndexTimeout)
}

// leaderAPI finds the API address of the raft leader in the managers registry
func (m *Manager) leaderAPI() (string, error) {
	if m.raft == nil {
		return "", fmt.Errorf("raft not initialized")
	}
	_, id := m.raft.LeaderWithID()
	if id == "" {
		return "", ErrNoLeader
	}

	leaderID, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return "", fmt.Errorf("unexpected leader id %q: %w", id, err)
	}
	node, err := m.store.GetManager(leaderID)
	if err != nil {
		return "", fmt.Errorf("leader %d not registered: %w", leaderID, err)
	}
	if node.APIAddr == "" {
		return "", fmt.Errorf("leader %d has no api address", leaderID)
	}
	return node.APIAddr, nil
}

func (m *Manager) waitForIndex(index uint64, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for m.raft.AppliedIndex() < index {
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for raft index %d", index)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func (m *Manager) applyOp(op string, payload interface{}) error {
	cmd, err := NewCommand(op, payload)
	if err != nil {
		return err
	}
	return m.Apply(cmd)
}

// Replicated writes

// CreateHAConfig replicates a new HA config
func (m *Manager) CreateHAConfig(cfg *types.HAConfig) error {
	return m.applyOp(OpCreateHAConfig, cfg)
}

// UpdateHAConfig replicates a compare-and-set config write. On success
// cfg carries the new row version.
func (m *Manager) UpdateHAConfig(cfg *types.HAConfig, expectedVersion int64) error {
	err := m.applyOp(OpUpdateHAConfig, HAConfigUpdate{Config: cfg, ExpectedVersion: expectedVersion})
	if err != nil {
		return err
	}
	cfg.UpdateCount = expectedVersion + 1
	return nil
}

// PutResource replicates a managed resource
func (m *Manager) PutResource(resource *types.Resource) error {
	if resource.CreatedAt.IsZero() {
		resource.CreatedAt = m.clock.Now()
	}
	return m.applyOp(OpPutResource, resource)
}

// SetHAEnabled replicates a zone or cluster HA switch
func (m *Manager) SetHAEnabled(scope types.HAScope, id string, enabled bool) error {
	return m.applyOp(OpSetHAFlag, types.HAFlag{Scope: scope, ID: id, Enabled: enabled})
}

// RegisterManager replicates a management node record
func (m *Manager) RegisterManager(node *types.ManagerNode) error {
	return m.applyOp(OpRegisterManager, node)
}

// Local reads

// GetHAConfig reads an HA config from the local store
func (m *Manager) GetHAConfig(resourceType types.ResourceType, resourceID string) (*types.HAConfig, error) {
	return m.store.GetHAConfig(resourceType, resourceID)
}

// ListHAConfigs returns all HA configs from the local store
func (m *Manager) ListHAConfigs() ([]*types.HAConfig, error) {
	return m.store.ListHAConfigs()
}

// ListHAConfigsByResource returns the HA configs of one resource from the local store
func (m *Manager) ListHAConfigsByResource(resourceID string, resourceType types.ResourceType) ([]*types.HAConfig, error) {
	return m.store.ListHAConfigsByResource(resourceID, resourceType)
}

// GetResource reads a resource from the local store
func (m *Manager) GetResource(resourceType types.ResourceType, id string) (*types.Resource, error) {
	return m.store.GetResource(resourceType, id)
}

// ListResourcesByCluster returns the resources of a cluster from the local store
func (m *Manager) ListResourcesByCluster(clusterID string) ([]*types.Resource, error) {
	return m.store.ListResourcesByCluster(clusterID)
}

// ListResourcesByZone returns the resources of a zone from the local store
func (m *Manager) ListResourcesByZone(zoneID string) ([]*types.Resource, error) {
	return m.store.ListResourcesByZone(zoneID)
}

// IsHAEnabled reads a zone or cluster HA switch from the local store
func (m *Manager) IsHAEnabled(scope types.HAScope, id string) (bool, error) {
	return m.store.IsHAEnabled(scope, id)
}

// ListManagers returns the registered management nodes
func (m *Manager) ListManagers() ([]*types.ManagerNode, error) {
	return m.store.ListManagers()
}

// Shutdown gracefully shuts down the manager
func (m *Manager) Shutdown() error {
	if m.eventBroker != nil {
		m.eventBroker.Stop()
	}

	if m.raft != nil {
		if err := m.raft.Shutdown().Error(); err != nil {
			return fmt.Errorf("failed to shutdown raft: %w", err)
		}
	}

	if m.store != nil {
		if err := m.store.Close(); err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
	}
	return nil
}
