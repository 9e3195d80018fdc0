package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/warden/pkg/api"
	"github.com/cuemby/warden/pkg/config"
	"github.com/cuemby/warden/pkg/dispatch"
	"github.com/cuemby/warden/pkg/events"
	"github.com/cuemby/warden/pkg/ha"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/manager"
	"github.com/cuemby/warden/pkg/provider"
	"github.com/cuemby/warden/pkg/provider/kvm"
	"github.com/cuemby/warden/pkg/reconciler"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var managerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Run and administer management nodes",
}

var managerInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new management cluster",
	Long: `Initialize a new Warden management cluster with this node as its
first member, then run the HA sweep and the HTTP API until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runManager(cmd, func(ctx context.Context, mgr *manager.Manager) error {
			return mgr.Bootstrap()
		})
	},
}

var managerJoinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join an existing management cluster",
	Long: `Join an existing management cluster using a token issued by its
leader (warden manager token), then run like any other member.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		leader, _ := cmd.Flags().GetString("leader")
		token, _ := cmd.Flags().GetString("token")
		if leader == "" || token == "" {
			return errors.New("--leader and --token are required")
		}
		return runManager(cmd, func(ctx context.Context, mgr *manager.Manager) error {
			return mgr.Join(ctx, leader, token)
		})
	},
}

var managerTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a join token from the leader",
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		token, err := c.CreateJoinToken(ctx, ttl)
		if err != nil {
			return fmt.Errorf("failed to create join token: %w", err)
		}
		fmt.Println(token.Token)
		fmt.Fprintf(os.Stderr, "Expires: %s\n", token.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}

var managerInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the management cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		info, err := c.ClusterInfo(ctx)
		if err != nil {
			return fmt.Errorf("failed to get cluster info: %w", err)
		}

		fmt.Printf("Node ID:   %d\n", info.NodeID)
		fmt.Printf("Leader:    %s\n", info.Leader)
		fmt.Printf("Is leader: %t\n", info.IsLeader)
		fmt.Println()
		w := newTable()
		fmt.Fprintln(w, "ID\tRAFT ADDRESS\tAPI ADDRESS\tJOINED")
		for _, m := range info.Managers {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.ID, m.RaftAddr, m.APIAddr, m.JoinedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

func init() {
	managerCmd.AddCommand(managerInitCmd)
	managerCmd.AddCommand(managerJoinCmd)
	managerCmd.AddCommand(managerTokenCmd)
	managerCmd.AddCommand(managerInfoCmd)

	for _, c := range []*cobra.Command{managerInitCmd, managerJoinCmd} {
		c.Flags().String("config", "", "Path to the YAML configuration file")
		c.Flags().Int64("node-id", 0, "Management node id (overrides config)")
		c.Flags().String("raft-addr", "", "Address for raft communication (overrides config)")
		c.Flags().String("api-addr", "", "Address for the HTTP API (overrides config)")
		c.Flags().String("data-dir", "", "Data directory for HA state (overrides config)")
	}

	managerJoinCmd.Flags().String("leader", "", "API address of the cluster leader")
	managerJoinCmd.Flags().String("token", "", "Join token from the leader")

	managerTokenCmd.Flags().Duration("ttl", 24*time.Hour, "How long the token stays valid")
}

// loadConfig loads the configuration file and applies command line overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("node-id") {
		cfg.Node.ID, _ = flags.GetInt64("node-id")
	}
	if flags.Changed("raft-addr") {
		cfg.Node.RaftAddr, _ = flags.GetString("raft-addr")
	}
	if flags.Changed("api-addr") {
		cfg.Node.APIAddr, _ = flags.GetString("api-addr")
	}
	if flags.Changed("data-dir") {
		cfg.Node.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		cfg.Logging.JSON, _ = flags.GetBool("log-json")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runManager wires a management node, starts raft through join, and runs
// the API server, the HA sweep and the metrics collector until a signal
// arrives or one of them fails
func runManager(cmd *cobra.Command, join func(ctx context.Context, mgr *manager.Manager) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logCfg := cfg.LogConfig()
	logCfg.Output = os.Stderr
	log.Init(logCfg)

	logger := log.WithNodeID(cfg.Node.ID)

	mgr, err := manager.NewManager(&manager.Config{
		NodeID:   cfg.Node.ID,
		BindAddr: cfg.Node.RaftAddr,
		APIAddr:  cfg.Node.APIAddr,
		DataDir:  cfg.Node.DataDir,
	})
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}

	kvmProvider, err := kvm.New(cfg.KVM)
	if err != nil {
		_ = mgr.Shutdown()
		return fmt.Errorf("failed to create KVM provider: %w", err)
	}
	registry, err := provider.NewRegistry(kvmProvider)
	if err != nil {
		_ = mgr.Shutdown()
		return err
	}

	dispatcher := dispatch.NewDispatcher(cfg.Dispatch)
	haMgr, err := ha.NewManager(ha.Config{
		NodeID:     cfg.Node.ID,
		Store:      mgr,
		Providers:  registry,
		Dispatcher: dispatcher,
		Events:     mgr.EventBroker(),
	})
	if err != nil {
		_ = mgr.Shutdown()
		return fmt.Errorf("failed to create HA manager: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiServer := api.NewServer(mgr, haMgr)
	apiErr := make(chan error, 1)
	go func() {
		apiErr <- apiServer.Start(cfg.Node.APIAddr)
	}()

	if err := join(ctx, mgr); err != nil {
		shutdownManager(apiServer, nil, nil, dispatcher, mgr)
		return err
	}
	logger.Info().
		Str("raft_addr", cfg.Node.RaftAddr).
		Str("api_addr", cfg.Node.APIAddr).
		Msg("Management node running")

	recon := reconciler.NewReconciler(haMgr, reconciler.Config{Interval: cfg.Sweep.Interval})
	collector := manager.NewMetricsCollector(mgr)
	recon.Start()
	collector.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case err := <-apiErr:
			if err != nil {
				return err
			}
			return errors.New("api server stopped")
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		logAuditEvents(gctx, mgr.EventBroker())
		return nil
	})

	err = g.Wait()
	logger.Info().Msg("Shutting down")
	shutdownManager(apiServer, recon, collector, dispatcher, mgr)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func shutdownManager(apiServer *api.Server, recon *reconciler.Reconciler, collector *manager.MetricsCollector, dispatcher *dispatch.Dispatcher, mgr *manager.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		log.Logger.Warn().Err(err).Msg("API server shutdown failed")
	}
	if recon != nil {
		recon.Stop()
	}
	if collector != nil {
		collector.Stop()
	}
	if err := dispatcher.Stop(shutdownTimeout); err != nil {
		log.Logger.Warn().Err(err).Msg("Dispatcher did not drain")
	}
	if err := mgr.Shutdown(); err != nil {
		log.Logger.Error().Err(err).Msg("Manager shutdown failed")
	}
}

// logAuditEvents writes every audit event to the log until ctx is done;
// recoveries and fences are logged at warn
func logAuditEvents(ctx context.Context, broker *events.Broker) {
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	logger := log.WithComponent("audit")
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub:
			if !ok {
				return
			}
			entry := logger.Info()
			if event.Type.Critical() {
				entry = logger.Warn()
			}
			entry = entry.
				Str("event_id", event.ID).
				Str("type", string(event.Type)).
				Time("at", event.Timestamp)
			for k, v := range event.Metadata {
				entry = entry.Str(k, v)
			}
			entry.Msg(event.Message)
		}
	}
}
