package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/warden/pkg/provider/kvm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warden.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
node:
  id: 3
  raft_addr: 10.0.0.3:7946
  api_addr: 10.0.0.3:8080
  data_dir: /var/lib/warden
sweep:
  interval: 30s
logging:
  level: debug
  json: true
dispatch:
  recovery:
    workers: 2
kvm:
  driver: ipmitool
  params:
    max_recovery_attempts: 3
    fence_timeout: 2m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(3), cfg.Node.ID)
	assert.Equal(t, "10.0.0.3:8080", cfg.Node.APIAddr)
	assert.Equal(t, 30*time.Second, cfg.Sweep.Interval)
	assert.True(t, cfg.Logging.JSON)
	assert.Equal(t, 2, cfg.Dispatch.Recovery.Workers)
	assert.Equal(t, 50, cfg.Dispatch.Recovery.QueueSize, "unset fields keep their defaults")
	assert.Equal(t, 10, cfg.Dispatch.HealthCheck.Workers)
	assert.Equal(t, kvm.DriverIPMITool, cfg.KVM.Driver)
	assert.Equal(t, 3, cfg.KVM.Params.MaxRecoveryAttempts)
	assert.Equal(t, 2*time.Minute, cfg.KVM.Params.FenceTimeout)
	assert.Equal(t, 16509, cfg.KVM.AgentPort)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "node:\n  id: 1\n")
	t.Setenv("WARDEN_NODE_ID", "7")
	t.Setenv("WARDEN_API_ADDR", "0.0.0.0:9090")
	t.Setenv("WARDEN_SWEEP_INTERVAL", "5s")
	t.Setenv("WARDEN_LOG_LEVEL", "warn")
	t.Setenv("WARDEN_LOG_JSON", "true")
	t.Setenv("WARDEN_KVM_OOB_PASSWORD", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Node.ID)
	assert.Equal(t, "0.0.0.0:9090", cfg.Node.APIAddr)
	assert.Equal(t, 5*time.Second, cfg.Sweep.Interval)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.LogConfig().JSONOutput)
	assert.Equal(t, "s3cret", cfg.KVM.OOBPassword)
}

func TestLoad_BadEnvironment(t *testing.T) {
	t.Setenv("WARDEN_NODE_ID", "abc")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "node: [unterminated"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero node id", func(c *Config) { c.Node.ID = 0 }},
		{"missing data dir", func(c *Config) { c.Node.DataDir = "" }},
		{"bad raft addr", func(c *Config) { c.Node.RaftAddr = "nohost" }},
		{"bad api addr", func(c *Config) { c.Node.APIAddr = "" }},
		{"zero sweep interval", func(c *Config) { c.Sweep.Interval = 0 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"no workers", func(c *Config) { c.Dispatch.Fence.Workers = 0 }},
		{"unknown driver", func(c *Config) { c.KVM.Driver = "telnet" }},
	}

	require.NoError(t, DefaultConfig().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
