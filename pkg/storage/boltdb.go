package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/cuemby/warden/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketHAConfigs = []byte("ha_configs")
	bucketResources = []byte("resources")
	bucketHAFlags   = []byte("ha_flags")
	bucketManagers  = []byte("managers")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "warden.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketHAConfigs,
			bucketResources,
			bucketHAFlags,
			bucketManagers,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// HA config operations

// CreateHAConfig inserts a new config; the (type, id) key must be free
func (s *BoltStore) CreateHAConfig(cfg *types.HAConfig) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHAConfigs)
		key := []byte(cfg.Key())
		if b.Get(key) != nil {
			return fmt.Errorf("ha config %s: %w", cfg.Key(), ErrAlreadyExists)
		}
		data, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

func (s *BoltStore) GetHAConfig(resourceType types.ResourceType, resourceID string) (*types.HAConfig, error) {
	var cfg types.HAConfig
	key := types.Key(resourceType, resourceID)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketHAConfigs).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("ha config %s: %w", key, ErrNotFound)
		}
		return json.Unmarshal(data, &cfg)
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *BoltStore) ListHAConfigs() ([]*types.HAConfig, error) {
	var configs []*types.HAConfig
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHAConfigs).ForEach(func(k, v []byte) error {
			var cfg types.HAConfig
			if err := json.Unmarshal(v, &cfg); err != nil {
				return err
			}
			configs = append(configs, &cfg)
			return nil
		})
	})
	return configs, err
}

// ListHAConfigsByResource returns the configs of one resource; an empty
// resourceType matches every type
func (s *BoltStore) ListHAConfigsByResource(resourceID string, resourceType types.ResourceType) ([]*types.HAConfig, error) {
	all, err := s.ListHAConfigs()
	if err != nil {
		return nil, err
	}

	var configs []*types.HAConfig
	for _, cfg := range all {
		if cfg.ResourceID != resourceID {
			continue
		}
		if resourceType != "" && cfg.ResourceType != resourceType {
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// UpdateHAConfig writes cfg only if the stored row is still at expectedVersion.
// On success cfg.UpdateCount is advanced to expectedVersion+1.
func (s *BoltStore) UpdateHAConfig(cfg *types.HAConfig, expectedVersion int64) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHAConfigs)
		key := []byte(cfg.Key())

		data := b.Get(key)
		if data == nil {
			return fmt.Errorf("ha config %s: %w", cfg.Key(), ErrNotFound)
		}

		var stored types.HAConfig
		if err := json.Unmarshal(data, &stored); err != nil {
			return err
		}
		if stored.UpdateCount != expectedVersion {
			return fmt.Errorf("ha config %s at version %d, expected %d: %w",
				cfg.Key(), stored.UpdateCount, expectedVersion, ErrConflict)
		}

		next := cfg.Clone()
		next.UpdateCount = expectedVersion + 1
		updated, err := json.Marshal(next)
		if err != nil {
			return err
		}
		return b.Put(key, updated)
	})
	if err != nil {
		return err
	}

	cfg.UpdateCount = expectedVersion + 1
	return nil
}

// PutHAConfig writes cfg unconditionally (snapshot restore)
func (s *BoltStore) PutHAConfig(cfg *types.HAConfig) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketHAConfigs).Put([]byte(cfg.Key()), data)
	})
}

// Resource operations

func (s *BoltStore) PutResource(resource *types.Resource) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(resource)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketResources).Put([]byte(resource.Key()), data)
	})
}

func (s *BoltStore) GetResource(resourceType types.ResourceType, id string) (*types.Resource, error) {
	var resource types.Resource
	key := types.Key(resourceType, id)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketResources).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("resource %s: %w", key, ErrNotFound)
		}
		return json.Unmarshal(data, &resource)
	})
	if err != nil {
		return nil, err
	}
	return &resource, nil
}

func (s *BoltStore) ListResources() ([]*types.Resource, error) {
	var resources []*types.Resource
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResources).ForEach(func(k, v []byte) error {
			var resource types.Resource
			if err := json.Unmarshal(v, &resource); err != nil {
				return err
			}
			resources = append(resources, &resource)
			return nil
		})
	})
	return resources, err
}

func (s *BoltStore) ListResourcesByCluster(clusterID string) ([]*types.Resource, error) {
	return s.filterResources(func(r *types.Resource) bool {
		return r.ClusterID == clusterID
	})
}

func (s *BoltStore) ListResourcesByZone(zoneID string) ([]*types.Resource, error) {
	return s.filterResources(func(r *types.Resource) bool {
		return r.ZoneID == zoneID
	})
}

func (s *BoltStore) filterResources(match func(*types.Resource) bool) ([]*types.Resource, error) {
	all, err := s.ListResources()
	if err != nil {
		return nil, err
	}

	var resources []*types.Resource
	for _, r := range all {
		if match(r) {
			resources = append(resources, r)
		}
	}
	return resources, nil
}

// HA flag operations

func flagKey(scope types.HAScope, id string) []byte {
	return []byte(string(scope) + "/" + id)
}

func (s *BoltStore) SetHAEnabled(scope types.HAScope, id string, enabled bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(&types.HAFlag{Scope: scope, ID: id, Enabled: enabled})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketHAFlags).Put(flagKey(scope, id), data)
	})
}

// IsHAEnabled reports the HA switch of a zone or cluster; unset switches are enabled
func (s *BoltStore) IsHAEnabled(scope types.HAScope, id string) (bool, error) {
	enabled := true
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketHAFlags).Get(flagKey(scope, id))
		if data == nil {
			return nil
		}
		var flag types.HAFlag
		if err := json.Unmarshal(data, &flag); err != nil {
			return err
		}
		enabled = flag.Enabled
		return nil
	})
	return enabled, err
}

func (s *BoltStore) ListHAFlags() ([]*types.HAFlag, error) {
	var flags []*types.HAFlag
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHAFlags).ForEach(func(k, v []byte) error {
			var flag types.HAFlag
			if err := json.Unmarshal(v, &flag); err != nil {
				return err
			}
			flags = append(flags, &flag)
			return nil
		})
	})
	return flags, err
}

// Management node operations

func managerKey(id int64) []byte {
	return []byte(strconv.FormatInt(id, 10))
}

func (s *BoltStore) PutManager(node *types.ManagerNode) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(node)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketManagers).Put(managerKey(node.ID), data)
	})
}

func (s *BoltStore) GetManager(id int64) (*types.ManagerNode, error) {
	var node types.ManagerNode
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketManagers).Get(managerKey(id))
		if data == nil {
			return fmt.Errorf("manager %d: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &node)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *BoltStore) ListManagers() ([]*types.ManagerNode, error) {
	var nodes []*types.ManagerNode
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketManagers).ForEach(func(k, v []byte) error {
			var node types.ManagerNode
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			nodes = append(nodes, &node)
			return nil
		})
	})
	return nodes, err
}
