package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/warden/pkg/client"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const requestTimeout = 30 * time.Second

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden - HA fault detection and recovery for hypervisor hosts",
	Long: `Warden watches hypervisor hosts for failures, confirms them with
activity checks, and drives recovery or fencing through pluggable
HA providers.

Management nodes replicate HA state with raft; each HA config is
evaluated by exactly one owning node.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		jsonOutput, _ := cmd.Flags().GetBool("log-json")
		log.Init(log.Config{
			Level:      log.Level(level),
			JSONOutput: jsonOutput,
			Output:     os.Stderr,
		})
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Warden version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	metrics.SetVersion(Version)

	rootCmd.PersistentFlags().String("manager", "127.0.0.1:8080", "API address of a management node")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	rootCmd.AddCommand(managerCmd)
	rootCmd.AddCommand(haCmd)
	rootCmd.AddCommand(hostCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(zoneCmd)
	rootCmd.AddCommand(applyCmd)
}

// newClient connects to the management node named by --manager
func newClient(cmd *cobra.Command) (*client.Client, error) {
	addr, _ := cmd.Flags().GetString("manager")
	c, err := client.NewClient(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return c, nil
}

// requestContext bounds a single CLI request
func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), requestTimeout)
}
