package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Default endpoints used when the configuration does not override them
const (
	DefaultMetadataTokenURL = "http://metadata.google.internal/computeMetadata/v1/instance/service-accounts/default/token"
	DefaultMetadataRootURL  = "http://metadata.google.internal/computeMetadata/v1/"
	DefaultComputeBaseURL   = "https://compute.googleapis.com/compute/v1"
	DefaultWebhookUsername  = "droprealms-api"
	DefaultWebhookAvatarURL = "https://github.com/google.png"
	DefaultNATSSubject      = "droprealms.instance.events"

	// EnvPrefix prefixes every environment override, e.g. DROPREALMS_SERVER_ADDRESS
	EnvPrefix = "DROPREALMS"
	// WebhookEnv is the legacy variable that supplies the webhook URL
	WebhookEnv = "DISCORD_WEBHOOK"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	GCP     GCPConfig     `mapstructure:"gcp"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig contains HTTP listener configuration
type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout_seconds"`
	WriteTimeout    int    `mapstructure:"write_timeout_seconds"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout_seconds"`
}

// GCPConfig contains metadata server and compute control plane settings
type GCPConfig struct {
	MetadataTokenURL string `mapstructure:"metadata_token_url"`
	MetadataRootURL  string `mapstructure:"metadata_root_url"`
	ComputeBaseURL   string `mapstructure:"compute_base_url"`
	RequestTimeout   int    `mapstructure:"request_timeout_seconds"`
}

// NotifyConfig contains outbound notification settings
type NotifyConfig struct {
	WebhookURL     string     `mapstructure:"webhook_url"`
	Username       string     `mapstructure:"username"`
	AvatarURL      string     `mapstructure:"avatar_url"`
	Timeout        int        `mapstructure:"timeout_seconds"`
	NotifyFailures bool       `mapstructure:"notify_failures"`
	NATS           NATSConfig `mapstructure:"nats"`
}

// NATSConfig contains the optional event bus sink. An empty URL disables it.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// MetricsConfig contains Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// LoadOption relaxes validation for callers that do not serve the API
type LoadOption func(*loadOptions)

type loadOptions struct {
	webhookOptional bool
}

// WebhookOptional accepts a configuration without notify.webhook_url
func WebhookOptional() LoadOption {
	return func(o *loadOptions) {
		o.webhookOptional = true
	}
}

// Load loads configuration from the specified file path and the environment.
// An empty path loads from defaults and environment only.
func Load(configPath string, opts ...LoadOption) (*Config, error) {
	options := loadOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	v := viper.New()

	setDefaults(v)
	bindEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(&config)

	if err := validate(&config, options); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values matching the GCE deployment
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0:8080")
	v.SetDefault("server.read_timeout_seconds", 10)
	v.SetDefault("server.write_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 5)

	v.SetDefault("gcp.metadata_token_url", DefaultMetadataTokenURL)
	v.SetDefault("gcp.metadata_root_url", DefaultMetadataRootURL)
	v.SetDefault("gcp.compute_base_url", DefaultComputeBaseURL)
	v.SetDefault("gcp.request_timeout_seconds", 15)

	v.SetDefault("notify.username", DefaultWebhookUsername)
	v.SetDefault("notify.avatar_url", DefaultWebhookAvatarURL)
	v.SetDefault("notify.timeout_seconds", 5)
	v.SetDefault("notify.notify_failures", false)
	v.SetDefault("notify.nats.url", "")
	v.SetDefault("notify.nats.subject", DefaultNATSSubject)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// bindEnv wires environment overrides. The webhook URL keeps its historical variable name.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("notify.webhook_url", EnvPrefix+"_NOTIFY_WEBHOOK_URL", WebhookEnv)
}

// validate performs configuration validation
func validate(config *Config, options loadOptions) error {
	if err := validateServer(&config.Server); err != nil {
		return err
	}
	if err := validateGCP(&config.GCP); err != nil {
		return err
	}
	if err := validateNotify(&config.Notify, options.webhookOptional); err != nil {
		return err
	}
	if err := validateMetrics(&config.Metrics); err != nil {
		return err
	}
	return validateLogging(&config.Logging)
}

// validateServer validates listener configuration
func validateServer(server *ServerConfig) error {
	if server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if server.ReadTimeout <= 0 || server.WriteTimeout <= 0 {
		return fmt.Errorf("server read and write timeouts must be positive")
	}
	if server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout_seconds must be positive")
	}
	return nil
}

// validateGCP validates control plane endpoints
func validateGCP(gcp *GCPConfig) error {
	if err := validateURL("gcp.metadata_token_url", gcp.MetadataTokenURL); err != nil {
		return err
	}
	if err := validateURL("gcp.metadata_root_url", gcp.MetadataRootURL); err != nil {
		return err
	}
	if err := validateURL("gcp.compute_base_url", gcp.ComputeBaseURL); err != nil {
		return err
	}
	if gcp.RequestTimeout <= 0 {
		return fmt.Errorf("gcp.request_timeout_seconds must be positive")
	}
	return nil
}

// validateNotify validates the webhook and event bus sinks
func validateNotify(notify *NotifyConfig, webhookOptional bool) error {
	switch {
	case notify.WebhookURL == "" && !webhookOptional:
		return fmt.Errorf("notify.webhook_url is required (set %s)", WebhookEnv)
	case notify.WebhookURL != "":
		if err := validateURL("notify.webhook_url", notify.WebhookURL); err != nil {
			return err
		}
	}
	if notify.Timeout <= 0 {
		return fmt.Errorf("notify.timeout_seconds must be positive")
	}
	if notify.NATS.URL != "" && notify.NATS.Subject == "" {
		return fmt.Errorf("notify.nats.subject is required when notify.nats.url is set")
	}
	return nil
}

// validateMetrics validates metrics exposition
func validateMetrics(metrics *MetricsConfig) error {
	if !metrics.Enabled {
		return nil
	}
	if !strings.HasPrefix(metrics.Path, "/") || metrics.Path == "/" {
		return fmt.Errorf("metrics.path must be an absolute path other than /")
	}
	if metrics.Path == "/healthz" || strings.HasPrefix(metrics.Path, "/instance/") {
		return fmt.Errorf("metrics.path %s collides with an API route", metrics.Path)
	}
	return nil
}

// validateLogging validates logging configuration
func validateLogging(logging *LoggingConfig) error {
	validLogLevels := []string{"debug", "info", "warn", "error", "fatal"}
	for _, level := range validLogLevels {
		if logging.Level == level {
			return nil
		}
	}
	return fmt.Errorf("logging.level must be one of: %s", strings.Join(validLogLevels, ", "))
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", key)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", key)
	}
	return nil
}

// normalize performs configuration normalization
func normalize(config *Config) {
	config.GCP.ComputeBaseURL = strings.TrimRight(config.GCP.ComputeBaseURL, "/")
	if config.GCP.MetadataRootURL != "" && !strings.HasSuffix(config.GCP.MetadataRootURL, "/") {
		config.GCP.MetadataRootURL += "/"
	}
	config.Notify.WebhookURL = strings.TrimSpace(config.Notify.WebhookURL)
	config.Logging.Level = strings.ToLower(config.Logging.Level)
	config.Logging.Format = strings.ToLower(config.Logging.Format)
}

// RequestTimeoutDuration is the bound applied to every metadata and control plane call
func (g *GCPConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(g.RequestTimeout) * time.Second
}

// TimeoutDuration is the bound applied to each notification delivery
func (n *NotifyConfig) TimeoutDuration() time.Duration {
	return time.Duration(n.Timeout) * time.Second
}

// ShutdownTimeoutDuration bounds graceful shutdown
func (s *ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// SetupLogger creates a zap logger with the configured settings
func (c *Config) SetupLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var zapConfig zap.Config
	switch c.Logging.Format {
	case "text":
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Encoding = "console"
	default:
		zapConfig = zap.NewProductionConfig()
	}
	zapConfig.Level = level

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return logger, nil
}
