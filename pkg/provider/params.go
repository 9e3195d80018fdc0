package provider

import (
	"fmt"
	"time"
)

// Param names a provider tuning parameter
type Param string

const (
	ParamHealthCheckTimeout        Param = "health.check.timeout"
	ParamActivityCheckTimeout      Param = "activity.check.timeout"
	ParamMaxActivityChecks         Param = "max.activity.checks"
	ParamActivityCheckFailureRatio Param = "activity.check.failure.ratio"
	ParamMaxActivityCheckInterval  Param = "max.activity.check.interval"
	ParamMaxDegradedWait           Param = "max.degraded.wait"
	ParamMaxRecoveryAttempts       Param = "max.recovery.attempts"
	ParamRecoveryTimeout           Param = "recovery.timeout"
	ParamRecoveryWaitTimeout       Param = "recovery.wait.timeout"
	ParamFenceTimeout              Param = "fence.timeout"
)

// AllParams lists every parameter name
var AllParams = []Param{
	ParamHealthCheckTimeout,
	ParamActivityCheckTimeout,
	ParamMaxActivityChecks,
	ParamActivityCheckFailureRatio,
	ParamMaxActivityCheckInterval,
	ParamMaxDegradedWait,
	ParamMaxRecoveryAttempts,
	ParamRecoveryTimeout,
	ParamRecoveryWaitTimeout,
	ParamFenceTimeout,
}

// Params are the tuning parameters of a provider for one resource
type Params struct {
	HealthCheckTimeout        time.Duration `yaml:"health_check_timeout" json:"healthCheckTimeout"`
	ActivityCheckTimeout      time.Duration `yaml:"activity_check_timeout" json:"activityCheckTimeout"`
	MaxActivityChecks         int           `yaml:"max_activity_checks" json:"maxActivityChecks"`
	ActivityCheckFailureRatio float64       `yaml:"activity_check_failure_ratio" json:"activityCheckFailureRatio"`
	MaxActivityCheckInterval  time.Duration `yaml:"max_activity_check_interval" json:"maxActivityCheckInterval"`
	MaxDegradedWait           time.Duration `yaml:"max_degraded_wait" json:"maxDegradedWait"`
	MaxRecoveryAttempts       int           `yaml:"max_recovery_attempts" json:"maxRecoveryAttempts"`
	RecoveryTimeout           time.Duration `yaml:"recovery_timeout" json:"recoveryTimeout"`
	RecoveryWaitTimeout       time.Duration `yaml:"recovery_wait_timeout" json:"recoveryWaitTimeout"`
	FenceTimeout              time.Duration `yaml:"fence_timeout" json:"fenceTimeout"`
}

// DefaultParams returns the default tuning parameters
func DefaultParams() Params {
	return Params{
		HealthCheckTimeout:        10 * time.Second,
		ActivityCheckTimeout:      60 * time.Second,
		MaxActivityChecks:         10,
		ActivityCheckFailureRatio: 0.7,
		MaxActivityCheckInterval:  60 * time.Second,
		MaxDegradedWait:           300 * time.Second,
		MaxRecoveryAttempts:       5,
		RecoveryTimeout:           3600 * time.Second,
		RecoveryWaitTimeout:       600 * time.Second,
		FenceTimeout:              60 * time.Second,
	}
}

// Merge returns p with every non-zero field of override applied
func (p Params) Merge(override Params) Params {
	if override.HealthCheckTimeout > 0 {
		p.HealthCheckTimeout = override.HealthCheckTimeout
	}
	if override.ActivityCheckTimeout > 0 {
		p.ActivityCheckTimeout = override.ActivityCheckTimeout
	}
	if override.MaxActivityChecks > 0 {
		p.MaxActivityChecks = override.MaxActivityChecks
	}
	if override.ActivityCheckFailureRatio > 0 {
		p.ActivityCheckFailureRatio = override.ActivityCheckFailureRatio
	}
	if override.MaxActivityCheckInterval > 0 {
		p.MaxActivityCheckInterval = override.MaxActivityCheckInterval
	}
	if override.MaxDegradedWait > 0 {
		p.MaxDegradedWait = override.MaxDegradedWait
	}
	if override.MaxRecoveryAttempts > 0 {
		p.MaxRecoveryAttempts = override.MaxRecoveryAttempts
	}
	if override.RecoveryTimeout > 0 {
		p.RecoveryTimeout = override.RecoveryTimeout
	}
	if override.RecoveryWaitTimeout > 0 {
		p.RecoveryWaitTimeout = override.RecoveryWaitTimeout
	}
	if override.FenceTimeout > 0 {
		p.FenceTimeout = override.FenceTimeout
	}
	return p
}

// Validate checks that every parameter is usable
func (p Params) Validate() error {
	if p.MaxActivityChecks <= 0 {
		return fmt.Errorf("%s must be positive", ParamMaxActivityChecks)
	}
	if p.MaxRecoveryAttempts <= 0 {
		return fmt.Errorf("%s must be positive", ParamMaxRecoveryAttempts)
	}
	if p.ActivityCheckFailureRatio <= 0 || p.ActivityCheckFailureRatio > 1 {
		return fmt.Errorf("%s must be in (0, 1]", ParamActivityCheckFailureRatio)
	}
	for _, name := range AllParams {
		if v, _ := p.Value(name); v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// Value returns a parameter by name. Durations are reported in seconds.
func (p Params) Value(name Param) (float64, error) {
	switch name {
	case ParamHealthCheckTimeout:
		return p.HealthCheckTimeout.Seconds(), nil
	case ParamActivityCheckTimeout:
		return p.ActivityCheckTimeout.Seconds(), nil
	case ParamMaxActivityChecks:
		return float64(p.MaxActivityChecks), nil
	case ParamActivityCheckFailureRatio:
		return p.ActivityCheckFailureRatio, nil
	case ParamMaxActivityCheckInterval:
		return p.MaxActivityCheckInterval.Seconds(), nil
	case ParamMaxDegradedWait:
		return p.MaxDegradedWait.Seconds(), nil
	case ParamMaxRecoveryAttempts:
		return float64(p.MaxRecoveryAttempts), nil
	case ParamRecoveryTimeout:
		return p.RecoveryTimeout.Seconds(), nil
	case ParamRecoveryWaitTimeout:
		return p.RecoveryWaitTimeout.Seconds(), nil
	case ParamFenceTimeout:
		return p.FenceTimeout.Seconds(), nil
	default:
		return 0, fmt.Errorf("unknown provider parameter %q", name)
	}
}
