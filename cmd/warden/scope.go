package main

import (
	"fmt"

	"github.com/cuemby/warden/pkg/types"
	"github.com/spf13/cobra"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Switch HA for a whole cluster",
}

var zoneCmd = &cobra.Command{
	Use:   "zone",
	Short: "Switch HA for a whole zone",
}

func init() {
	clusterCmd.AddCommand(scopeCommand(types.HAScopeCluster, true))
	clusterCmd.AddCommand(scopeCommand(types.HAScopeCluster, false))
	zoneCmd.AddCommand(scopeCommand(types.HAScopeZone, true))
	zoneCmd.AddCommand(scopeCommand(types.HAScopeZone, false))
}

func scopeCommand(scope types.HAScope, enable bool) *cobra.Command {
	action, verb := "disable", "Disable"
	if enable {
		action, verb = "enable", "Enable"
	}

	return &cobra.Command{
		Use:   fmt.Sprintf("%s %s_ID", action, scopeArg(scope)),
		Short: fmt.Sprintf("%s HA for every host in a %s", verb, scope),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()

			if err := c.SetScopeHA(ctx, scope, args[0], enable); err != nil {
				return fmt.Errorf("failed to %s HA for %s %s: %w", action, scope, args[0], err)
			}
			fmt.Printf("✓ HA %sd for %s %s\n", action, scope, args[0])
			return nil
		},
	}
}

func scopeArg(scope types.HAScope) string {
	if scope == types.HAScopeZone {
		return "ZONE"
	}
	return "CLUSTER"
}
