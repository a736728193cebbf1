package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillworks/relay"
	"github.com/quillworks/relay/provider"
)

// NewProvidersCmd creates the "providers" subcommand.
func NewProvidersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List configured providers and probe their health",
		Args:  cobra.NoArgs,
		RunE:  runProviders,
	}

	cmd.Flags().StringP("config", "c", "relay.yaml", "Path to the relay configuration file")
	cmd.Flags().String("env-file", ".env", "Path to a dotenv file with credentials (missing file is ignored)")
	cmd.Flags().Bool("watch", false, "Keep probing on the configured health schedules until interrupted")
	cmd.Flags().Duration("probe-timeout", 10*time.Second, "Timeout for a single health probe")

	return cmd
}

func runProviders(cmd *cobra.Command, args []string) error {
	loadEnvFile(cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	registry, err := provider.NewRegistryFromSettings(cfg.ProviderSettings())
	if err != nil {
		return exitError(exitRuntime, "building providers: %v", err)
	}
	defer registry.Close(context.Background())

	watch, _ := cmd.Flags().GetBool("watch")
	if watch {
		return watchProviders(cmd, cfg.HealthSchedules(), registry)
	}

	probeTimeout, _ := cmd.Flags().GetDuration("probe-timeout")
	for _, tag := range registry.Tags() {
		adapter, err := registry.Resolve(tag)
		if err != nil {
			return exitError(exitRuntime, "resolving provider %q: %v", tag, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", tag, probeOnce(cmd.Context(), adapter, probeTimeout))
	}
	return nil
}

func probeOnce(ctx context.Context, adapter provider.Adapter, timeout time.Duration) provider.Status {
	checker, ok := adapter.(provider.HealthChecker)
	if !ok {
		return provider.StatusUnverified
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := checker.CheckHealth(probeCtx); err != nil {
		return provider.StatusUnhealthy
	}
	return provider.StatusReady
}

// watchProviders runs the health scheduler until the process is
// interrupted, printing each status transition.
func watchProviders(cmd *cobra.Command, schedules map[relay.Provider]string, registry *provider.Registry) error {
	if len(schedules) == 0 {
		return exitError(exitInputParse, "no provider has a health_schedule configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	probeTimeout, _ := cmd.Flags().GetDuration("probe-timeout")
	scheduler, err := provider.NewHealthScheduler(provider.HealthSchedulerConfig{
		Registry:     registry,
		Schedules:    schedules,
		ProbeTimeout: probeTimeout,
		OnEvent: func(e provider.HealthEvent) {
			if e.Error != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s -> %s\t%v\n", e.Provider, e.PreviousStatus, e.Status, e.Error)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s -> %s\n", e.Provider, e.PreviousStatus, e.Status)
		},
	})
	if err != nil {
		return exitError(exitRuntime, "building health scheduler: %v", err)
	}

	if err := scheduler.Start(ctx); err != nil {
		return exitError(exitRuntime, "starting health scheduler: %v", err)
	}
	<-ctx.Done()
	scheduler.Stop()
	return nil
}
