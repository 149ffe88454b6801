package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scttfrdmn/droprealms-api/internal/config"
	"github.com/scttfrdmn/droprealms-api/internal/gcp"
	"github.com/scttfrdmn/droprealms-api/internal/notify"
	"github.com/scttfrdmn/droprealms-api/pkg/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	ref        types.InstanceRef
	sendNotify bool
	logger     *zap.Logger
)

func main() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	rootCmd := &cobra.Command{
		Use:   "instancectl",
		Short: "Start, stop and inspect a Compute Engine instance from the VM's credentials",
		Long: `Drive the same control plane calls as the droprealms API directly from the
command line. Credentials come from the metadata server of the VM it runs on.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&ref.Name, "name", "", "Instance name")
	rootCmd.PersistentFlags().StringVar(&ref.Project, "project", "", "Project ID")
	rootCmd.PersistentFlags().StringVar(&ref.Zone, "zone", "", "Zone, e.g. us-central1-a")
	rootCmd.PersistentFlags().BoolVar(&sendNotify, "notify", false, "Send the outcome to the configured webhook")

	rootCmd.AddCommand(
		actionCmd("start", "Start the instance", types.EventStart),
		actionCmd("stop", "Stop the instance", types.EventStop),
		actionCmd("status", "Print the instance lifecycle status", types.EventStatus),
		actionCmd("ip", "Print the first external IP of the instance", types.EventIP),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("Command execution failed", zap.Error(err))
		stop()
		os.Exit(1)
	}
}

func actionCmd(use, short string, event types.InstanceEvent) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd.Context(), cmd, event)
		},
	}
}

func runAction(ctx context.Context, cmd *cobra.Command, event types.InstanceEvent) error {
	if err := ref.Validate(); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	httpClient := &http.Client{}
	tokens := gcp.NewMetadataTokenProvider(logger, &cfg.GCP, httpClient, nil)
	client := gcp.NewClient(logger, &cfg.GCP, tokens, httpClient, nil)

	notifier := notify.Notifier(notify.Nop{})
	if sendNotify {
		n, closeFn, err := notify.FromConfig(logger, &cfg.Notify, httpClient, nil)
		if err != nil {
			return fmt.Errorf("failed to set up notifications: %w", err)
		}
		defer closeFn()
		notifier = n
	}

	logger.Info("Instance action requested",
		zap.String("action", event.Action()),
		zap.String("instance", ref.String()))

	notification, output, err := perform(ctx, client, event)
	if err != nil {
		if cfg.Notify.NotifyFailures {
			deliver(ctx, notifier, cfg.Notify.TimeoutDuration(), types.FailureNotification(event, ref, err))
		}
		return err
	}

	deliver(ctx, notifier, cfg.Notify.TimeoutDuration(), notification)
	if output != "" {
		fmt.Fprintln(cmd.OutOrStdout(), output)
	}
	return nil
}

func perform(ctx context.Context, client *gcp.Client, event types.InstanceEvent) (types.Notification, string, error) {
	switch event {
	case types.EventStart:
		op, err := client.StartInstance(ctx, ref)
		if err != nil {
			return types.Notification{}, "", err
		}
		return types.StartedNotification(ref), op.Name, nil
	case types.EventStop:
		op, err := client.StopInstance(ctx, ref)
		if err != nil {
			return types.Notification{}, "", err
		}
		return types.StoppedNotification(ref), op.Name, nil
	case types.EventStatus:
		snapshot, err := client.DescribeInstance(ctx, ref)
		if err != nil {
			return types.Notification{}, "", err
		}
		logger.Debug("Instance status observed",
			zap.String("status", snapshot.Status),
			zap.Bool("stopped", types.IsStopped(snapshot.Status)))
		return types.StatusNotification(ref, snapshot.Status), snapshot.Status, nil
	case types.EventIP:
		lookup, err := client.GetExternalIP(ctx, ref)
		if err != nil {
			return types.Notification{}, "", err
		}
		return types.IPNotification(ref), lookup.Text(), nil
	default:
		return types.Notification{}, "", fmt.Errorf("unsupported action %q", event)
	}
}

// loadConfig tolerates a missing webhook when notifications are not requested
func loadConfig() (*config.Config, error) {
	var opts []config.LoadOption
	if !sendNotify {
		opts = append(opts, config.WebhookOptional())
	}

	cfg, err := config.Load(configFile, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func deliver(ctx context.Context, notifier notify.Notifier, timeout time.Duration, n types.Notification) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := notifier.Notify(ctx, n); err != nil {
		logger.Warn("Notification failed", zap.Error(err))
	}
}
