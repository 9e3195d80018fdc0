package provider

import (
	"context"
	"time"

	"github.com/cuemby/warden/pkg/types"
)

// HAProvider checks and acts on one family of resources. Probe and action
// methods are called from worker pools under a deadline and must honour ctx.
type HAProvider interface {
	// Name is the provider key stored in HA configs
	Name() string

	ResourceType() types.ResourceType
	ResourceSubType() string

	// IsEligible reports whether the provider can manage this resource
	IsEligible(resource *types.Resource) bool

	// IsHealthy is the cheap liveness probe
	IsHealthy(ctx context.Context, resource *types.Resource) (bool, error)

	// HasActivity reports whether the resource showed activity since the given time
	HasActivity(ctx context.Context, resource *types.Resource, since time.Time) (bool, error)

	Recover(ctx context.Context, resource *types.Resource) (bool, error)
	Fence(ctx context.Context, resource *types.Resource) (bool, error)

	// FenceSubResources cleans up what ran on a fenced resource, best effort
	FenceSubResources(ctx context.Context, resource *types.Resource) error

	// Params resolves the tuning parameters for a resource
	Params(resource *types.Resource) Params
}
