package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cuemby/warden/pkg/client"
	"github.com/cuemby/warden/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a manifest file",
	Long: `Apply Warden manifests from a YAML file. A file may hold several
documents separated by ---.

Examples:
  # Register hosts and turn HA on for them
  warden apply -f hosts.yaml

Host manifest:
  apiVersion: warden/v1
  kind: Host
  metadata:
    name: host-1
  spec:
    hypervisor: KVM
    address: 10.0.1.11
    oobAddress: 10.0.2.11
    zone: zone-1
    cluster: cluster-1
    ha:
      provider: kvmhaprovider
      enabled: true

Zone and Cluster manifests switch HA for every host in them:
  kind: Zone
  metadata:
    name: zone-1
  spec:
    ha:
      enabled: false`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

// Manifest is one document of an apply file
type Manifest struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   ManifestMetadata `yaml:"metadata"`
	Spec       ManifestSpec     `yaml:"spec"`
}

type ManifestMetadata struct {
	Name string `yaml:"name"`
}

// ManifestSpec covers every kind; fields a kind does not use are ignored
type ManifestSpec struct {
	Hypervisor  string  `yaml:"hypervisor"`
	DisplayName string  `yaml:"displayName"`
	Address     string  `yaml:"address"`
	OOBAddress  string  `yaml:"oobAddress"`
	Zone        string  `yaml:"zone"`
	Cluster     string  `yaml:"cluster"`
	Domain      string  `yaml:"domain"`
	Removed     bool    `yaml:"removed"`
	HA          *HASpec `yaml:"ha"`
}

type HASpec struct {
	Provider string `yaml:"provider"`
	Enabled  *bool  `yaml:"enabled"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	manifests, err := parseManifests(f)
	if err != nil {
		return err
	}

	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	for _, m := range manifests {
		ctx, cancel := requestContext(cmd)
		err := applyManifest(ctx, c, m)
		cancel()
		if err != nil {
			return fmt.Errorf("%s %s: %w", m.Kind, m.Metadata.Name, err)
		}
	}
	return nil
}

// parseManifests decodes every YAML document and checks the fields each kind needs
func parseManifests(r io.Reader) ([]*Manifest, error) {
	dec := yaml.NewDecoder(r)

	var manifests []*Manifest
	for {
		var m Manifest
		err := dec.Decode(&m)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		if m.Kind == "" && m.Metadata.Name == "" {
			continue
		}

		if m.Metadata.Name == "" {
			return nil, fmt.Errorf("%s manifest without metadata.name", m.Kind)
		}
		switch m.Kind {
		case "Host":
			if m.Spec.HA != nil && m.Spec.HA.Enabled != nil && *m.Spec.HA.Enabled && m.Spec.HA.Provider == "" {
				return nil, fmt.Errorf("host %s: ha.provider is required to enable HA", m.Metadata.Name)
			}
		case "Zone", "Cluster":
			if m.Spec.HA == nil || m.Spec.HA.Enabled == nil {
				return nil, fmt.Errorf("%s %s: ha.enabled is required", m.Kind, m.Metadata.Name)
			}
		default:
			return nil, fmt.Errorf("unsupported resource kind: %s", m.Kind)
		}
		manifests = append(manifests, &m)
	}
	return manifests, nil
}

func applyManifest(ctx context.Context, c *client.Client, m *Manifest) error {
	switch m.Kind {
	case "Zone":
		return applyScope(ctx, c, types.HAScopeZone, m)
	case "Cluster":
		return applyScope(ctx, c, types.HAScopeCluster, m)
	default:
		return applyHost(ctx, c, m)
	}
}

func applyHost(ctx context.Context, c *client.Client, m *Manifest) error {
	hypervisor := m.Spec.Hypervisor
	if hypervisor == "" {
		hypervisor = "KVM"
	}

	host := &types.Resource{
		ID:         m.Metadata.Name,
		Type:       types.ResourceTypeHost,
		SubType:    hypervisor,
		Name:       m.Spec.DisplayName,
		Address:    m.Spec.Address,
		OOBAddress: m.Spec.OOBAddress,
		ZoneID:     m.Spec.Zone,
		ClusterID:  m.Spec.Cluster,
		DomainID:   m.Spec.Domain,
		Removed:    m.Spec.Removed,
	}
	if err := c.PutResource(ctx, host); err != nil {
		return fmt.Errorf("failed to register host: %w", err)
	}
	fmt.Printf("✓ Host registered: %s\n", host.ID)

	ha := m.Spec.HA
	if ha == nil {
		return nil
	}
	if ha.Provider != "" {
		if _, err := c.ConfigureProvider(ctx, types.ResourceTypeHost, host.ID, ha.Provider); err != nil {
			return fmt.Errorf("failed to configure provider: %w", err)
		}
		fmt.Printf("✓ Provider %s assigned to %s\n", ha.Provider, host.ID)
	}
	if ha.Enabled == nil {
		return nil
	}

	if *ha.Enabled {
		if _, err := c.EnableHA(ctx, types.ResourceTypeHost, host.ID); err != nil {
			return fmt.Errorf("failed to enable HA: %w", err)
		}
		fmt.Printf("✓ HA enabled for %s\n", host.ID)
		return nil
	}
	if _, err := c.DisableHA(ctx, types.ResourceTypeHost, host.ID); err != nil {
		return fmt.Errorf("failed to disable HA: %w", err)
	}
	fmt.Printf("✓ HA disabled for %s\n", host.ID)
	return nil
}

func applyScope(ctx context.Context, c *client.Client, scope types.HAScope, m *Manifest) error {
	enabled := *m.Spec.HA.Enabled
	if err := c.SetScopeHA(ctx, scope, m.Metadata.Name, enabled); err != nil {
		return err
	}
	fmt.Printf("✓ HA enabled=%t for %s %s\n", enabled, scope, m.Metadata.Name)
	return nil
}
