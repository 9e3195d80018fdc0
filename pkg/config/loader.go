package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/cuemby/warden/pkg/log"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path over the defaults, applies WARDEN_*
// environment overrides and validates the result. A missing file is not an
// error; an empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Logger.Warn().Str("path", path).Msg("Config file not found, using defaults and environment")
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := applyEnvironmentOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(cfg *Config) error {
	if v := os.Getenv("WARDEN_NODE_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("WARDEN_NODE_ID: %w", err)
		}
		cfg.Node.ID = id
	}
	if v := os.Getenv("WARDEN_RAFT_ADDR"); v != "" {
		cfg.Node.RaftAddr = v
	}
	if v := os.Getenv("WARDEN_API_ADDR"); v != "" {
		cfg.Node.APIAddr = v
	}
	if v := os.Getenv("WARDEN_DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}

	if v := os.Getenv("WARDEN_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("WARDEN_SWEEP_INTERVAL: %w", err)
		}
		cfg.Sweep.Interval = d
	}

	if v := os.Getenv("WARDEN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WARDEN_LOG_JSON"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WARDEN_LOG_JSON: %w", err)
		}
		cfg.Logging.JSON = b
	}

	// Out-of-band credentials are usually injected rather than written to disk
	if v := os.Getenv("WARDEN_KVM_OOB_USERNAME"); v != "" {
		cfg.KVM.OOBUsername = v
	}
	if v := os.Getenv("WARDEN_KVM_OOB_PASSWORD"); v != "" {
		cfg.KVM.OOBPassword = v
	}
	return nil
}
