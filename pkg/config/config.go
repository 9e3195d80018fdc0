package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cuemby/warden/pkg/dispatch"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/provider/kvm"
)

// Config is the configuration of a management node
type Config struct {
	Node     NodeConfig      `yaml:"node"`
	Sweep    SweepConfig     `yaml:"sweep"`
	Logging  LoggingConfig   `yaml:"logging"`
	Dispatch dispatch.Config `yaml:"dispatch"`
	KVM      kvm.Config      `yaml:"kvm"`
}

// NodeConfig identifies the node and where it listens
type NodeConfig struct {
	// ID is the management node id used for HA config ownership and as raft server id
	ID       int64  `yaml:"id"`
	RaftAddr string `yaml:"raft_addr"`
	APIAddr  string `yaml:"api_addr"`
	DataDir  string `yaml:"data_dir"`
}

// SweepConfig controls the background HA sweep
type SweepConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// LoggingConfig controls the global logger
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns a single-node configuration listening on localhost
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ID:       1,
			RaftAddr: "127.0.0.1:7946",
			APIAddr:  "127.0.0.1:8080",
			DataDir:  "./warden-data",
		},
		Sweep: SweepConfig{
			Interval: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: string(log.InfoLevel),
		},
		Dispatch: dispatch.DefaultConfig(),
		KVM:      kvm.DefaultConfig(),
	}
}

// LogConfig returns the logger settings
func (c *Config) LogConfig() log.Config {
	return log.Config{
		Level:      log.Level(c.Logging.Level),
		JSONOutput: c.Logging.JSON,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Node.ID <= 0 {
		return errors.New("node.id must be positive")
	}
	if c.Node.DataDir == "" {
		return errors.New("node.data_dir is required")
	}
	if _, _, err := net.SplitHostPort(c.Node.RaftAddr); err != nil {
		return fmt.Errorf("node.raft_addr: %w", err)
	}
	if _, _, err := net.SplitHostPort(c.Node.APIAddr); err != nil {
		return fmt.Errorf("node.api_addr: %w", err)
	}

	if c.Sweep.Interval <= 0 {
		return errors.New("sweep.interval must be positive")
	}

	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}

	for _, kind := range dispatch.Kinds {
		size := c.Dispatch.Size(kind)
		if size.Workers <= 0 || size.QueueSize < 0 {
			return fmt.Errorf("dispatch.%s: workers must be positive and queue_size not negative", kind)
		}
	}

	if c.KVM.Driver != "" && c.KVM.Driver != kvm.DriverRedfish && c.KVM.Driver != kvm.DriverIPMITool {
		return fmt.Errorf("kvm.driver %q is not one of redfish, ipmitool", c.KVM.Driver)
	}
	return nil
}
