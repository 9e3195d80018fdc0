package storage

import (
	"errors"

	"github.com/cuemby/warden/pkg/types"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a compare-and-update loses against a newer row version
	ErrConflict = errors.New("conflicting update")

	// ErrAlreadyExists is returned when creating a record whose key is taken
	ErrAlreadyExists = errors.New("already exists")
)

// Store defines the interface for HA state storage
type Store interface {
	// HA configs
	CreateHAConfig(cfg *types.HAConfig) error
	GetHAConfig(resourceType types.ResourceType, resourceID string) (*types.HAConfig, error)
	ListHAConfigs() ([]*types.HAConfig, error)
	ListHAConfigsByResource(resourceID string, resourceType types.ResourceType) ([]*types.HAConfig, error)
	UpdateHAConfig(cfg *types.HAConfig, expectedVersion int64) error
	PutHAConfig(cfg *types.HAConfig) error

	// Resources
	PutResource(resource *types.Resource) error
	GetResource(resourceType types.ResourceType, id string) (*types.Resource, error)
	ListResources() ([]*types.Resource, error)
	ListResourcesByCluster(clusterID string) ([]*types.Resource, error)
	ListResourcesByZone(zoneID string) ([]*types.Resource, error)

	// Zone / cluster HA switches
	SetHAEnabled(scope types.HAScope, id string, enabled bool) error
	IsHAEnabled(scope types.HAScope, id string) (bool, error)
	ListHAFlags() ([]*types.HAFlag, error)

	// Management nodes
	PutManager(node *types.ManagerNode) error
	GetManager(id int64) (*types.ManagerNode, error)
	ListManagers() ([]*types.ManagerNode, error)

	// Utility
	Close() error
}
