package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/scttfrdmn/droprealms-api/internal/api"
	"github.com/scttfrdmn/droprealms-api/internal/config"
	"github.com/scttfrdmn/droprealms-api/internal/gcp"
	"github.com/scttfrdmn/droprealms-api/internal/metrics"
	"github.com/scttfrdmn/droprealms-api/internal/notify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	address    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "droprealms-api",
		Short: "HTTP control surface for a Compute Engine instance",
		Long: `Serve endpoints that start, stop and inspect a Compute Engine instance
using the credentials of the VM it runs on, and report every action to a
Discord webhook.`,
		SilenceUsage: true,
		RunE:         serve,
	}

	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "Configuration file path (defaults and environment only when empty)")
	rootCmd.Flags().StringVar(&address, "addr", "", "Listen address, overrides server.address")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if address != "" {
		cfg.Server.Address = address
	}

	logger, err := cfg.SetupLogger()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder := metrics.New()
	httpClient := &http.Client{}

	if !gcp.DetectMetadataServer(ctx, logger, &cfg.GCP, httpClient) {
		logger.Warn("Metadata server not reachable, instance calls will fail until it is",
			zap.String("metadata_root_url", cfg.GCP.MetadataRootURL))
	}

	tokens := gcp.NewMetadataTokenProvider(logger.Named("metadata"), &cfg.GCP, httpClient, recorder)
	computeClient := gcp.NewClient(logger.Named("compute"), &cfg.GCP, tokens, httpClient, recorder)

	notifier, closeNotifier, err := notify.FromConfig(logger.Named("notify"), &cfg.Notify, httpClient, recorder)
	if err != nil {
		return fmt.Errorf("failed to set up notifications: %w", err)
	}
	defer closeNotifier()

	logger.Info("Starting droprealms api",
		zap.String("address", cfg.Server.Address),
		zap.Bool("metrics_enabled", cfg.Metrics.Enabled),
		zap.Bool("notify_failures", cfg.Notify.NotifyFailures),
		zap.Bool("nats_enabled", cfg.Notify.NATS.URL != ""))

	server := api.NewServer(logger.Named("api"), cfg, computeClient, notifier, recorder)
	return server.Run(ctx)
}
