// Package config provides invoker configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/provider-invoker/pkg/bootstrap"
	"github.com/morezero/provider-invoker/pkg/registry"
	"github.com/morezero/provider-invoker/pkg/semver"
	"github.com/morezero/provider-invoker/pkg/session"
)

const logPrefix = "config:LoadConfig"

// Config holds provider-invoker configuration.
type Config struct {
	// Registry (ZooKeeper). ZKAddresses is a comma separated host:port list.
	ZKAddresses      string        `envconfig:"ZK_ADDRESSES"`
	ZKRoot           string        `envconfig:"ZK_ROOT" default:"/dubbo"`
	ZKSessionTimeout time.Duration `envconfig:"ZK_SESSION_TIMEOUT" default:"15s"`
	ProviderScheme   string        `envconfig:"PROVIDER_SCHEME" default:"dubbo"`
	// ProviderVersion is a SemVer range; empty selects the first provider.
	ProviderVersion string `envconfig:"PROVIDER_VERSION"`
	// BootstrapFile lists static providers consulted before the registry.
	BootstrapFile string `envconfig:"BOOTSTRAP_FILE"`

	// Provider sessions
	SessionDialTimeout  time.Duration `envconfig:"SESSION_DIAL_TIMEOUT" default:"5s"`
	SessionPollInterval time.Duration `envconfig:"SESSION_POLL_INTERVAL" default:"1s"`
	SessionRetries      int           `envconfig:"SESSION_RETRIES" default:"3"`
	SessionEagerWindow  time.Duration `envconfig:"SESSION_EAGER_WINDOW" default:"50ms"`
	SessionEncoding     string        `envconfig:"SESSION_ENCODING" default:"gbk"`

	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL       string        `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName      string        `envconfig:"SERVICE_NAME" default:"provider-invoker"`
	GatewaySubject string        `envconfig:"GATEWAY_SUBJECT" default:"invoker.gateway.v1"`
	EventsEnabled  bool          `envconfig:"EVENTS_ENABLED" default:"true"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`

	// Invocation history. Empty DatabaseURL disables it.
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	// MigrationPath overrides the bundled migrations with .sql files from a directory.
	MigrationPath string `envconfig:"MIGRATION_PATH"`

	// HTTP health endpoint
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateForResolve checks required config for commands that read the registry.
func (c *Config) ValidateForResolve() error {
	if len(c.RegistryAddrs()) == 0 {
		return fmt.Errorf("%s - ZK_ADDRESSES is required: %w", logPrefix, registry.ErrNoRegistryAddress)
	}
	if c.ZKSessionTimeout <= 0 {
		return fmt.Errorf("%s - ZK_SESSION_TIMEOUT must be positive", logPrefix)
	}
	if c.ProviderVersion != "" {
		if _, err := semver.NewConstraint(c.ProviderVersion); err != nil {
			return fmt.Errorf("%s - PROVIDER_VERSION: %w", logPrefix, err)
		}
	}
	return nil
}

// ValidateForInvoke checks the provider session settings.
func (c *Config) ValidateForInvoke() error {
	if c.SessionRetries < 0 {
		return fmt.Errorf("%s - SESSION_RETRIES must not be negative", logPrefix)
	}
	if c.SessionEagerWindow <= 0 {
		return fmt.Errorf("%s - SESSION_EAGER_WINDOW must be positive", logPrefix)
	}
	if c.SessionPollInterval < 0 {
		return fmt.Errorf("%s - SESSION_POLL_INTERVAL must not be negative", logPrefix)
	}
	if _, err := session.LookupEncoding(c.SessionEncoding); err != nil {
		return fmt.Errorf("%s - SESSION_ENCODING: %w", logPrefix, err)
	}
	return nil
}

// ValidateForServe checks required config when running the gateway server.
func (c *Config) ValidateForServe() error {
	if err := c.ValidateForResolve(); err != nil {
		return err
	}
	if err := c.ValidateForInvoke(); err != nil {
		return err
	}
	if c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required for serve", logPrefix)
	}
	if c.GatewaySubject == "" {
		return fmt.Errorf("%s - GATEWAY_SUBJECT is required for serve", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, history).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}

// RegistryAddrs splits ZKAddresses into host:port entries.
func (c *Config) RegistryAddrs() []string {
	return registry.ParseAddrs(c.ZKAddresses)
}

// HistoryEnabled reports whether invocations are written to the database.
func (c *Config) HistoryEnabled() bool {
	return c.DatabaseURL != ""
}

// SessionOptions converts the session settings into session options.
func (c *Config) SessionOptions() ([]session.Option, error) {
	enc, err := session.LookupEncoding(c.SessionEncoding)
	if err != nil {
		return nil, err
	}
	return []session.Option{
		session.WithDialTimeout(c.SessionDialTimeout),
		session.WithPollInterval(c.SessionPollInterval),
		session.WithRetries(c.SessionRetries),
		session.WithEagerWindow(c.SessionEagerWindow),
		session.WithEncoding(enc),
	}, nil
}

// ResolverParams converts the registry settings into resolver parameters.
func (c *Config) ResolverParams() (registry.NewResolverParams, error) {
	params := registry.NewResolverParams{
		Addrs:          c.RegistryAddrs(),
		Root:           c.ZKRoot,
		Scheme:         c.ProviderScheme,
		SessionTimeout: c.ZKSessionTimeout,
	}
	if c.ProviderVersion != "" {
		sel, err := registry.NewVersionSelector(c.ProviderScheme, c.ProviderVersion)
		if err != nil {
			return params, fmt.Errorf("%s - PROVIDER_VERSION: %w", logPrefix, err)
		}
		params.Selector = sel
	}
	return params, nil
}

// StaticProviders loads BootstrapFile (or a default bootstrap.json) into
// static endpoints. No file yields an empty set.
func (c *Config) StaticProviders() (*bootstrap.Resolved, error) {
	static, err := bootstrap.Resolve(bootstrap.LoadConfig(c.BootstrapFile))
	if err != nil {
		return nil, fmt.Errorf("%s - BOOTSTRAP_FILE: %w", logPrefix, err)
	}
	return static, nil
}
