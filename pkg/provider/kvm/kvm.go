package kvm

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/warden/pkg/health"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/provider"
	"github.com/cuemby/warden/pkg/types"
	"github.com/rs/zerolog"
)

const (
	// Name is the provider key of the KVM host provider
	Name = "kvmhaprovider"

	// SubType is the hypervisor family handled by this provider
	SubType = "KVM"
)

// OOBDriver selects how out-of-band power actions are sent
type OOBDriver string

const (
	DriverRedfish  OOBDriver = "redfish"
	DriverIPMITool OOBDriver = "ipmitool"
)

// Redfish reset types
const (
	resetForceRestart = "ForceRestart"
	resetForceOff     = "ForceOff"
)

// Config configures the KVM host provider
type Config struct {
	// AgentPort is the host agent port probed for liveness
	AgentPort int `yaml:"agent_port"`

	// AgentAttempts is the number of failed dials before a host counts as down
	AgentAttempts int `yaml:"agent_attempts"`

	// ActivityPort and ActivityPath locate the host activity endpoint
	ActivityPort int    `yaml:"activity_port"`
	ActivityPath string `yaml:"activity_path"`

	Driver             OOBDriver `yaml:"driver"`
	OOBUsername        string    `yaml:"oob_username"`
	OOBPassword        string    `yaml:"oob_password"`
	RedfishSystemPath  string    `yaml:"redfish_system_path"`
	InsecureSkipVerify bool      `yaml:"insecure_skip_verify"`

	// FenceNotifyURL receives a POST for every fenced host when set
	FenceNotifyURL string `yaml:"fence_notify_url"`

	// Params override the default tuning parameters
	Params provider.Params `yaml:"params"`
}

// DefaultConfig returns the default provider configuration
func DefaultConfig() Config {
	return Config{
		AgentPort:         16509,
		AgentAttempts:     2,
		ActivityPort:      8080,
		ActivityPath:      "/activity",
		Driver:            DriverRedfish,
		RedfishSystemPath: "/redfish/v1/Systems/1",
	}
}

// Provider is the HA provider for KVM hosts
type Provider struct {
	cfg    Config
	params provider.Params
	client *http.Client
	logger zerolog.Logger
}

// New creates a KVM host provider
func New(cfg Config) (*Provider, error) {
	defaults := DefaultConfig()
	if cfg.AgentPort == 0 {
		cfg.AgentPort = defaults.AgentPort
	}
	if cfg.AgentAttempts == 0 {
		cfg.AgentAttempts = defaults.AgentAttempts
	}
	if cfg.ActivityPort == 0 {
		cfg.ActivityPort = defaults.ActivityPort
	}
	if cfg.ActivityPath == "" {
		cfg.ActivityPath = defaults.ActivityPath
	}
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	if cfg.RedfishSystemPath == "" {
		cfg.RedfishSystemPath = defaults.RedfishSystemPath
	}
	if cfg.Driver != DriverRedfish && cfg.Driver != DriverIPMITool {
		return nil, fmt.Errorf("unknown out-of-band driver %q", cfg.Driver)
	}

	params := provider.DefaultParams().Merge(cfg.Params)
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s parameters: %w", Name, err)
	}

	return &Provider{
		cfg:    cfg,
		params: params,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
			},
		},
		logger: log.WithComponent("kvm-provider"),
	}, nil
}

func (p *Provider) Name() string                     { return Name }
func (p *Provider) ResourceType() types.ResourceType { return types.ResourceTypeHost }
func (p *Provider) ResourceSubType() string          { return SubType }

// Params returns the provider parameters; they do not vary per host
func (p *Provider) Params(resource *types.Resource) provider.Params {
	return p.params
}

// IsEligible accepts live KVM hosts that have an out-of-band address
func (p *Provider) IsEligible(resource *types.Resource) bool {
	return resource != nil &&
		resource.Type == types.ResourceTypeHost &&
		strings.EqualFold(resource.SubType, SubType) &&
		!resource.Removed &&
		resource.OOBAddress != ""
}

// IsHealthy probes the host agent port
func (p *Provider) IsHealthy(ctx context.Context, resource *types.Resource) (bool, error) {
	checker := health.NewTCPChecker(net.JoinHostPort(resource.Address, strconv.Itoa(p.cfg.AgentPort))).
		WithAttempts(p.cfg.AgentAttempts, 200*time.Millisecond)
	return p.probe(ctx, checker)
}

// HasActivity asks the host activity endpoint whether anything ran since the given time
func (p *Provider) HasActivity(ctx context.Context, resource *types.Resource, since time.Time) (bool, error) {
	u := url.URL{
		Scheme:   "http",
		Host:     net.JoinHostPort(resource.Address, strconv.Itoa(p.cfg.ActivityPort)),
		Path:     p.cfg.ActivityPath,
		RawQuery: url.Values{"since": {strconv.FormatInt(since.Unix(), 10)}}.Encode(),
	}
	checker := health.NewHTTPChecker(u.String())
	checker.Client = p.client
	return p.probe(ctx, checker)
}

// Recover power cycles the host through its out-of-band controller
func (p *Provider) Recover(ctx context.Context, resource *types.Resource) (bool, error) {
	p.logger.Info().Str("resource_id", resource.ID).Str("driver", string(p.cfg.Driver)).Msg("Power cycling host")
	return p.probe(ctx, p.powerAction(resource, resetForceRestart))
}

// Fence powers the host off through its out-of-band controller
func (p *Provider) Fence(ctx context.Context, resource *types.Resource) (bool, error) {
	p.logger.Warn().Str("resource_id", resource.ID).Str("driver", string(p.cfg.Driver)).Msg("Powering host off")
	return p.probe(ctx, p.powerAction(resource, resetForceOff))
}

// FenceSubResources notifies the configured endpoint that the host is gone
func (p *Provider) FenceSubResources(ctx context.Context, resource *types.Resource) error {
	if p.cfg.FenceNotifyURL == "" {
		return nil
	}

	body, err := json.Marshal(map[string]string{
		"resourceId":   resource.ID,
		"resourceType": string(resource.Type),
		"clusterId":    resource.ClusterID,
		"zoneId":       resource.ZoneID,
	})
	if err != nil {
		return err
	}

	checker := health.NewHTTPChecker(p.cfg.FenceNotifyURL).
		WithMethod(http.MethodPost).
		WithJSONBody(body)
	checker.Client = p.client
	return health.Run(ctx, checker)
}

func (p *Provider) powerAction(resource *types.Resource, resetType string) health.Checker {
	if p.cfg.Driver == DriverIPMITool {
		action := "reset"
		if resetType == resetForceOff {
			action = "off"
		}
		return health.NewExecChecker([]string{
			"ipmitool", "-I", "lanplus",
			"-H", resource.OOBAddress,
			"-U", p.cfg.OOBUsername,
			"-E",
			"chassis", "power", action,
		}).WithEnv("IPMI_PASSWORD=" + p.cfg.OOBPassword)
	}

	body, _ := json.Marshal(map[string]string{"ResetType": resetType})
	checker := health.NewHTTPChecker(p.oobURL(resource) + p.cfg.RedfishSystemPath + "/Actions/ComputerSystem.Reset").
		WithMethod(http.MethodPost).
		WithJSONBody(body).
		WithStatusRange(200, 299)
	if p.cfg.OOBUsername != "" {
		checker.WithBasicAuth(p.cfg.OOBUsername, p.cfg.OOBPassword)
	}
	checker.Client = p.client
	return checker
}

func (p *Provider) oobURL(resource *types.Resource) string {
	if strings.Contains(resource.OOBAddress, "://") {
		return strings.TrimRight(resource.OOBAddress, "/")
	}
	return "https://" + resource.OOBAddress
}

// probe runs a checker; a negative result is a normal outcome, only a
// cancelled or expired context is an error
func (p *Provider) probe(ctx context.Context, checker health.Checker) (bool, error) {
	result := checker.Check(ctx)
	if result.Healthy {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.logger.Debug().Str("check", string(checker.Type())).Str("message", result.Message).Msg("Probe failed")
	return false, nil
}
