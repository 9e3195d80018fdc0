package main

import (
	"fmt"

	"github.com/cuemby/warden/pkg/types"
	"github.com/spf13/cobra"
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Manage hypervisor hosts",
}

var hostAddCmd = &cobra.Command{
	Use:   "add HOST_ID",
	Short: "Register or update a hypervisor host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		host := &types.Resource{
			ID:   args[0],
			Type: types.ResourceTypeHost,
		}
		host.Name, _ = flags.GetString("name")
		host.SubType, _ = flags.GetString("hypervisor")
		host.Address, _ = flags.GetString("address")
		host.OOBAddress, _ = flags.GetString("oob-address")
		host.ClusterID, _ = flags.GetString("cluster")
		host.ZoneID, _ = flags.GetString("zone")
		host.DomainID, _ = flags.GetString("domain")
		host.Removed, _ = flags.GetBool("removed")

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		if err := c.PutResource(ctx, host); err != nil {
			return fmt.Errorf("failed to register host: %w", err)
		}
		fmt.Printf("✓ Host registered: %s\n", host.ID)
		return nil
	},
}

var hostStatusCmd = &cobra.Command{
	Use:   "status HOST_ID",
	Short: "Show the HA status of a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		status, err := c.ResourceStatus(ctx, types.ResourceTypeHost, args[0])
		if err != nil {
			return fmt.Errorf("failed to get host status: %w", err)
		}

		r := status.Resource
		fmt.Printf("Host:         %s (%s)\n", r.ID, r.SubType)
		fmt.Printf("Zone/Cluster: %s/%s\n", r.ZoneID, r.ClusterID)
		fmt.Printf("Status:       %s\n", status.HostStatus)
		fmt.Printf("HA eligible:  %t\n", status.Eligible)

		if cfg := status.HAConfig; cfg != nil {
			fmt.Printf("HA state:     %s (enabled=%t, provider=%s)\n", cfg.State, cfg.Enabled, cfg.ProviderKey)
		} else {
			fmt.Println("HA state:     not configured")
		}

		if s := status.Counter; s != nil {
			fmt.Printf("Activity:     %d checks, %d failures\n", s.ActivityCheckCount, s.ActivityFailureCount)
			fmt.Printf("Recovery:     %d attempts\n", s.RecoveryAttemptCount)
		}
		return nil
	},
}

func init() {
	hostCmd.AddCommand(hostAddCmd)
	hostCmd.AddCommand(hostStatusCmd)

	hostAddCmd.Flags().String("name", "", "Display name")
	hostAddCmd.Flags().String("hypervisor", "KVM", "Hypervisor family")
	hostAddCmd.Flags().String("address", "", "Management address of the host agent")
	hostAddCmd.Flags().String("oob-address", "", "Out-of-band (BMC) address")
	hostAddCmd.Flags().String("cluster", "", "Cluster id")
	hostAddCmd.Flags().String("zone", "", "Zone id")
	hostAddCmd.Flags().String("domain", "", "Domain id")
	hostAddCmd.Flags().Bool("removed", false, "Mark the host as removed")
}
