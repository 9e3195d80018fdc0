package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cuemby/warden/pkg/types"
	"github.com/spf13/cobra"
)

var haCmd = &cobra.Command{
	Use:   "ha",
	Short: "Manage HA for resources",
}

var haProviderCmd = &cobra.Command{
	Use:   "provider HOST_ID PROVIDER",
	Short: "Assign an HA provider to a host",
	Long: `Assign an HA provider to a host. The HA config is created in the
Disabled state; run 'warden ha enable' to start monitoring.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		cfg, err := c.ConfigureProvider(ctx, types.ResourceTypeHost, args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to configure provider: %w", err)
		}
		fmt.Printf("✓ Provider %s assigned to %s (state %s)\n", cfg.ProviderKey, cfg.ResourceID, cfg.State)
		return nil
	},
}

var haEnableCmd = &cobra.Command{
	Use:   "enable HOST_ID",
	Short: "Enable HA for a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggleHA(cmd, args[0], true)
	},
}

var haDisableCmd = &cobra.Command{
	Use:   "disable HOST_ID",
	Short: "Disable HA for a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggleHA(cmd, args[0], false)
	},
}

var haListCmd = &cobra.Command{
	Use:   "list [HOST_ID]",
	Short: "List HA configs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resourceID string
		if len(args) == 1 {
			resourceID = args[0]
		}

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		configs, err := c.ListHAConfigs(ctx, resourceID, types.ResourceTypeHost)
		if err != nil {
			return fmt.Errorf("failed to list HA configs: %w", err)
		}

		w := newTable()
		fmt.Fprintln(w, "RESOURCE\tTYPE\tSTATE\tENABLED\tPROVIDER\tOWNER\tUPDATED")
		for _, cfg := range configs {
			owner := "any"
			if cfg.OwnerNodeID != nil {
				owner = fmt.Sprintf("%d", *cfg.OwnerNodeID)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\t%s\n",
				cfg.ResourceID, cfg.ResourceType, cfg.State, cfg.Enabled,
				cfg.ProviderKey, owner, cfg.UpdatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var haProvidersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List registered HA providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		providers, err := c.ListProviders(ctx, types.ResourceTypeHost)
		if err != nil {
			return fmt.Errorf("failed to list providers: %w", err)
		}

		w := newTable()
		fmt.Fprintln(w, "NAME\tTYPE\tSUBTYPE\tMAX RECOVERY ATTEMPTS\tRECOVERY TIMEOUT\tFENCE TIMEOUT")
		for _, p := range providers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				p.Name, p.ResourceType, p.ResourceSubType,
				p.Params.MaxRecoveryAttempts, p.Params.RecoveryTimeout, p.Params.FenceTimeout)
		}
		return w.Flush()
	},
}

var haReportCmd = &cobra.Command{
	Use:   "report HOST_ID",
	Short: "Report a health verdict for a host",
	Long: `Report an external health verdict for a host, as if a health check
had completed. Use --healthy=false to report a failure.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		healthy, _ := cmd.Flags().GetBool("healthy")

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		if err := c.ReportHealth(ctx, types.ResourceTypeHost, args[0], healthy); err != nil {
			return fmt.Errorf("failed to report health: %w", err)
		}
		fmt.Printf("✓ Reported %s as healthy=%t\n", args[0], healthy)
		return nil
	},
}

func init() {
	haCmd.AddCommand(haProviderCmd)
	haCmd.AddCommand(haEnableCmd)
	haCmd.AddCommand(haDisableCmd)
	haCmd.AddCommand(haListCmd)
	haCmd.AddCommand(haProvidersCmd)
	haCmd.AddCommand(haReportCmd)

	haReportCmd.Flags().Bool("healthy", true, "Health verdict to report")
}

func toggleHA(cmd *cobra.Command, hostID string, enable bool) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()

	if enable {
		cfg, err := c.EnableHA(ctx, types.ResourceTypeHost, hostID)
		if err != nil {
			return fmt.Errorf("failed to enable HA: %w", err)
		}
		fmt.Printf("✓ HA enabled for %s (state %s)\n", hostID, cfg.State)
		return nil
	}

	cfg, err := c.DisableHA(ctx, types.ResourceTypeHost, hostID)
	if err != nil {
		return fmt.Errorf("failed to disable HA: %w", err)
	}
	fmt.Printf("✓ HA disabled for %s (state %s)\n", hostID, cfg.State)
	return nil
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}
