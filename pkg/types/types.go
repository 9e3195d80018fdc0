package types

import (
	"time"
)

// ResourceType identifies the kind of resource under HA management
type ResourceType string

const (
	ResourceTypeHost ResourceType = "Host"
)

// Resource represents a managed infrastructure unit (a hypervisor host)
type Resource struct {
	ID         string
	Type       ResourceType
	SubType    string // Hypervisor family, e.g. "KVM"
	Name       string
	Address    string // Management IP of the host agent
	OOBAddress string // Out-of-band management endpoint (BMC)
	ClusterID  string
	ZoneID     string
	DomainID   string
	Removed    bool
	CreatedAt  time.Time
}

// Key returns the store key for this resource
func (r *Resource) Key() string {
	return Key(r.Type, r.ID)
}

// HAState is the lifecycle state of an HA configuration
type HAState string

const (
	HAStateAvailable  HAState = "Available"
	HAStateSuspect    HAState = "Suspect"
	HAStateChecking   HAState = "Checking"
	HAStateDegraded   HAState = "Degraded"
	HAStateRecovering HAState = "Recovering"
	HAStateRecovered  HAState = "Recovered"
	HAStateFencing    HAState = "Fencing"
	HAStateFenced     HAState = "Fenced"
	HAStateDisabled   HAState = "Disabled"
	HAStateIneligible HAState = "Ineligible"
)

// AllHAStates lists every HA state in display order
var AllHAStates = []HAState{
	HAStateAvailable,
	HAStateSuspect,
	HAStateChecking,
	HAStateDegraded,
	HAStateRecovering,
	HAStateRecovered,
	HAStateFencing,
	HAStateFenced,
	HAStateDisabled,
	HAStateIneligible,
}

// HAEvent drives HA state transitions
type HAEvent string

const (
	HAEventEnabled    HAEvent = "Enabled"
	HAEventDisabled   HAEvent = "Disabled"
	HAEventEligible   HAEvent = "Eligible"
	HAEventIneligible HAEvent = "Ineligible"

	HAEventHealthCheckPassed HAEvent = "HealthCheckPassed"
	HAEventHealthCheckFailed HAEvent = "HealthCheckFailed"

	HAEventPerformActivityCheck                    HAEvent = "PerformActivityCheck"
	HAEventTooFewActivityCheckSamples              HAEvent = "TooFewActivityCheckSamples"
	HAEventActivityCheckFailureUnderThresholdRatio HAEvent = "ActivityCheckFailureUnderThresholdRatio"
	HAEventActivityCheckFailureOverThresholdRatio  HAEvent = "ActivityCheckFailureOverThresholdRatio"
	HAEventPeriodicRecheckResourceActivity         HAEvent = "PeriodicRecheckResourceActivity"

	HAEventRetryRecovery                      HAEvent = "RetryRecovery"
	HAEventRecovered                          HAEvent = "Recovered"
	HAEventRecoveryWaitPeriodTimeout          HAEvent = "RecoveryWaitPeriodTimeout"
	HAEventRecoveryOperationThresholdExceeded HAEvent = "RecoveryOperationThresholdExceeded"

	HAEventRetryFencing HAEvent = "RetryFencing"
	HAEventFenced       HAEvent = "Fenced"
)

// AllHAEvents lists every HA event
var AllHAEvents = []HAEvent{
	HAEventEnabled,
	HAEventDisabled,
	HAEventEligible,
	HAEventIneligible,
	HAEventHealthCheckPassed,
	HAEventHealthCheckFailed,
	HAEventPerformActivityCheck,
	HAEventTooFewActivityCheckSamples,
	HAEventActivityCheckFailureUnderThresholdRatio,
	HAEventActivityCheckFailureOverThresholdRatio,
	HAEventPeriodicRecheckResourceActivity,
	HAEventRetryRecovery,
	HAEventRecovered,
	HAEventRecoveryWaitPeriodTimeout,
	HAEventRecoveryOperationThresholdExceeded,
	HAEventRetryFencing,
	HAEventFenced,
}

// HAConfig is the durable HA configuration and current state of one resource
type HAConfig struct {
	ID           string
	ResourceID   string
	ResourceType ResourceType
	State        HAState
	Enabled      bool
	ProviderKey  string
	OwnerNodeID  *int64 // Management node evaluating this config; nil means any node
	UpdateCount  int64  // Row version, bumped on every persisted change
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Key returns the store key for this config
func (c *HAConfig) Key() string {
	return Key(c.ResourceType, c.ResourceID)
}

// OwnedBy reports whether the given management node may evaluate this config
func (c *HAConfig) OwnedBy(nodeID int64) bool {
	return c.OwnerNodeID == nil || *c.OwnerNodeID == nodeID
}

// Clone returns a deep copy of the config
func (c *HAConfig) Clone() *HAConfig {
	clone := *c
	if c.OwnerNodeID != nil {
		owner := *c.OwnerNodeID
		clone.OwnerNodeID = &owner
	}
	return &clone
}

// Key builds the composite (resourceType, resourceID) key
func Key(resourceType ResourceType, resourceID string) string {
	return string(resourceType) + "/" + resourceID
}

// HAScope is the scope of a bulk HA enable flag
type HAScope string

const (
	HAScopeZone    HAScope = "zone"
	HAScopeCluster HAScope = "cluster"
)

// HAFlag is a zone- or cluster-wide HA switch
type HAFlag struct {
	Scope   HAScope
	ID      string
	Enabled bool
}

// HostStatus is the coarse status reported to legacy investigators
type HostStatus string

const (
	HostStatusUp           HostStatus = "Up"
	HostStatusDown         HostStatus = "Down"
	HostStatusDisconnected HostStatus = "Disconnected"
	HostStatusUnknown      HostStatus = "Unknown"
)

// ManagerNode is a management node registered in the replicated store
type ManagerNode struct {
	ID       int64
	RaftAddr string
	APIAddr  string
	JoinedAt time.Time
}
