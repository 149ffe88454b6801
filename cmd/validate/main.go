package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/scttfrdmn/droprealms-api/internal/config"
	"github.com/scttfrdmn/droprealms-api/internal/gcp"
	"github.com/scttfrdmn/droprealms-api/pkg/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var logger *zap.Logger

func main() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Printf("Warning: failed to sync logger: %v\n", syncErr)
		}
	}()

	rootCmd := &cobra.Command{
		Use:   "droprealms-validate",
		Short: "Validate configuration files, request bodies and instance documents",
		Long: `Validate droprealms-api configuration and the JSON documents it exchanges
with callers and the compute API before deployment.`,
	}

	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(instanceCmd())
	rootCmd.AddCommand(metadataCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Error("Validation failed", zap.Error(err))
		os.Exit(1)
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config [config-file]",
		Short: "Validate a droprealms-api configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile := args[0]

			logger.Info("Validating configuration file", zap.String("file", configFile))

			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}

			logger.Info("✅ Configuration file is valid",
				zap.String("file", configFile),
				zap.String("address", cfg.Server.Address),
				zap.String("compute_base_url", cfg.GCP.ComputeBaseURL),
				zap.Bool("nats_enabled", cfg.Notify.NATS.URL != ""),
				zap.Bool("metrics_enabled", cfg.Metrics.Enabled))

			return nil
		},
	}
}

func requestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "request [json-file]",
		Short: "Validate an instance request body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read request: %w", err)
			}

			var ref types.InstanceRef
			if err := json.Unmarshal(data, &ref); err != nil {
				return fmt.Errorf("failed to parse request JSON: %w", err)
			}
			if err := ref.Validate(); err != nil {
				return fmt.Errorf("request validation failed: %w", err)
			}

			logger.Info("✅ Request is valid", zap.String("instance", ref.String()))
			return nil
		},
	}
}

func instanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "instance [json-file]",
		Short: "Validate a compute instance document and show what the API would answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read instance document: %w", err)
			}

			description, err := types.ParseInstanceDescription(data)
			if err != nil {
				return fmt.Errorf("instance document validation failed: %w", err)
			}

			if !types.IsKnownStatus(description.Status) {
				logger.Warn("Instance status is not a documented lifecycle state", zap.String("status", description.Status))
			}

			lookup := description.LookupExternalIP()
			logger.Info("✅ Instance document is valid",
				zap.String("name", description.Name),
				zap.String("status", description.Status),
				zap.Int("network_interfaces", len(description.NetworkInterfaces)),
				zap.String("ip_result", string(lookup.Result)),
				zap.String("ip_response", lookup.Text()))

			return nil
		},
	}
}

func metadataCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Check that the metadata server is reachable from this host",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile, config.WebhookOptional())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if !gcp.DetectMetadataServer(context.Background(), logger, &cfg.GCP, &http.Client{}) {
				return fmt.Errorf("metadata server not reachable at %s", cfg.GCP.MetadataRootURL)
			}

			logger.Info("✅ Metadata server is reachable", zap.String("url", cfg.GCP.MetadataRootURL))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	return cmd
}
