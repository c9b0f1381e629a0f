package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/morezero/provider-invoker/pkg/registry"
)

var allEnvVars = []string{
	"ZK_ADDRESSES", "ZK_ROOT", "ZK_SESSION_TIMEOUT", "PROVIDER_SCHEME", "PROVIDER_VERSION", "BOOTSTRAP_FILE",
	"SESSION_DIAL_TIMEOUT", "SESSION_POLL_INTERVAL", "SESSION_RETRIES", "SESSION_EAGER_WINDOW", "SESSION_ENCODING",
	"COMMS_URL", "SERVICE_NAME", "GATEWAY_SUBJECT", "EVENTS_ENABLED", "REQUEST_TIMEOUT",
	"DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH",
	"HTTP_PORT", "HEALTH_CHECK_TIMEOUT", "LOG_LEVEL",
}

func clearEnv() {
	for _, env := range allEnvVars {
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.ZKAddresses != "" {
		t.Errorf("config:config_test - ZKAddresses = %q, want empty", cfg.ZKAddresses)
	}
	if cfg.ZKRoot != "/dubbo" {
		t.Errorf("config:config_test - ZKRoot = %q, want %q", cfg.ZKRoot, "/dubbo")
	}
	if cfg.ZKSessionTimeout != 15*time.Second {
		t.Errorf("config:config_test - ZKSessionTimeout = %v, want 15s", cfg.ZKSessionTimeout)
	}
	if cfg.ProviderScheme != "dubbo" {
		t.Errorf("config:config_test - ProviderScheme = %q, want %q", cfg.ProviderScheme, "dubbo")
	}
	if cfg.SessionDialTimeout != 5*time.Second {
		t.Errorf("config:config_test - SessionDialTimeout = %v, want 5s", cfg.SessionDialTimeout)
	}
	if cfg.SessionPollInterval != time.Second {
		t.Errorf("config:config_test - SessionPollInterval = %v, want 1s", cfg.SessionPollInterval)
	}
	if cfg.SessionRetries != 3 {
		t.Errorf("config:config_test - SessionRetries = %d, want 3", cfg.SessionRetries)
	}
	if cfg.SessionEagerWindow != 50*time.Millisecond {
		t.Errorf("config:config_test - SessionEagerWindow = %v, want 50ms", cfg.SessionEagerWindow)
	}
	if cfg.SessionEncoding != "gbk" {
		t.Errorf("config:config_test - SessionEncoding = %q, want %q", cfg.SessionEncoding, "gbk")
	}
	if cfg.COMMSURL != "nats://127.0.0.1:4222" {
		t.Errorf("config:config_test - COMMSURL = %q, want %q", cfg.COMMSURL, "nats://127.0.0.1:4222")
	}
	if cfg.COMMSName != "provider-invoker" {
		t.Errorf("config:config_test - COMMSName = %q, want %q", cfg.COMMSName, "provider-invoker")
	}
	if cfg.GatewaySubject != "invoker.gateway.v1" {
		t.Errorf("config:config_test - GatewaySubject = %q, want %q", cfg.GatewaySubject, "invoker.gateway.v1")
	}
	if !cfg.EventsEnabled {
		t.Error("config:config_test - expected EventsEnabled=true by default")
	}
	if cfg.RequestTimeout != 25*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 25s", cfg.RequestTimeout)
	}
	if cfg.DatabaseURL != "" || cfg.HistoryEnabled() {
		t.Errorf("config:config_test - DatabaseURL = %q, want empty with history disabled", cfg.DatabaseURL)
	}
	if cfg.RunMigrations {
		t.Error("config:config_test - expected RunMigrations=false by default")
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("config:config_test - HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.HealthCheckTimeout != 5*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v, want 5s", cfg.HealthCheckTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv()
	overrides := map[string]string{
		"ZK_ADDRESSES":          "zk1:2181, zk2:2181",
		"ZK_ROOT":               "/services",
		"ZK_SESSION_TIMEOUT":    "30s",
		"PROVIDER_SCHEME":       "tri",
		"PROVIDER_VERSION":      "^2.0.0",
		"SESSION_DIAL_TIMEOUT":  "2s",
		"SESSION_POLL_INTERVAL": "200ms",
		"SESSION_RETRIES":       "5",
		"SESSION_EAGER_WINDOW":  "100ms",
		"SESSION_ENCODING":      "utf-8",
		"COMMS_URL":             "nats://custom:4222",
		"SERVICE_NAME":          "test-invoker",
		"GATEWAY_SUBJECT":       "custom.gateway",
		"EVENTS_ENABLED":        "false",
		"REQUEST_TIMEOUT":       "10s",
		"DATABASE_URL":          "postgres://test@localhost/test",
		"RUN_MIGRATIONS":        "true",
		"HTTP_PORT":             "9090",
		"HEALTH_CHECK_TIMEOUT":  "10s",
		"LOG_LEVEL":             "debug",
	}
	for key, val := range overrides {
		t.Setenv(key, val)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	addrs := cfg.RegistryAddrs()
	if len(addrs) != 2 || addrs[0] != "zk1:2181" || addrs[1] != "zk2:2181" {
		t.Errorf("config:config_test - RegistryAddrs = %v, want [zk1:2181 zk2:2181]", addrs)
	}
	if cfg.ZKRoot != "/services" {
		t.Errorf("config:config_test - ZKRoot = %q, want %q", cfg.ZKRoot, "/services")
	}
	if cfg.ZKSessionTimeout != 30*time.Second {
		t.Errorf("config:config_test - ZKSessionTimeout = %v, want 30s", cfg.ZKSessionTimeout)
	}
	if cfg.ProviderScheme != "tri" || cfg.ProviderVersion != "^2.0.0" {
		t.Errorf("config:config_test - provider = %q %q, want tri ^2.0.0", cfg.ProviderScheme, cfg.ProviderVersion)
	}
	if cfg.SessionDialTimeout != 2*time.Second {
		t.Errorf("config:config_test - SessionDialTimeout = %v, want 2s", cfg.SessionDialTimeout)
	}
	if cfg.SessionPollInterval != 200*time.Millisecond {
		t.Errorf("config:config_test - SessionPollInterval = %v, want 200ms", cfg.SessionPollInterval)
	}
	if cfg.SessionRetries != 5 {
		t.Errorf("config:config_test - SessionRetries = %d, want 5", cfg.SessionRetries)
	}
	if cfg.SessionEagerWindow != 100*time.Millisecond {
		t.Errorf("config:config_test - SessionEagerWindow = %v, want 100ms", cfg.SessionEagerWindow)
	}
	if cfg.SessionEncoding != "utf-8" {
		t.Errorf("config:config_test - SessionEncoding = %q, want %q", cfg.SessionEncoding, "utf-8")
	}
	if cfg.COMMSURL != "nats://custom:4222" {
		t.Errorf("config:config_test - COMMSURL = %q, want %q", cfg.COMMSURL, "nats://custom:4222")
	}
	if cfg.COMMSName != "test-invoker" {
		t.Errorf("config:config_test - COMMSName = %q, want %q", cfg.COMMSName, "test-invoker")
	}
	if cfg.GatewaySubject != "custom.gateway" {
		t.Errorf("config:config_test - GatewaySubject = %q, want %q", cfg.GatewaySubject, "custom.gateway")
	}
	if cfg.EventsEnabled {
		t.Error("config:config_test - expected EventsEnabled=false")
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 10s", cfg.RequestTimeout)
	}
	if !cfg.HistoryEnabled() || !cfg.RunMigrations {
		t.Error("config:config_test - expected history and migrations enabled")
	}
	if cfg.HTTPPort != 9090 {
		t.Errorf("config:config_test - HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.HealthCheckTimeout != 10*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v, want 10s", cfg.HealthCheckTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - ValidateForServe: %v", err)
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	clearEnv()
	t.Setenv("SESSION_POLL_INTERVAL", "soon")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("config:config_test - expected error for invalid duration")
	}
}

func TestLoadConfig_LogLevels(t *testing.T) {
	clearEnv()
	for _, level := range []string{"debug", "info", "warn", "error"} {
		t.Setenv("LOG_LEVEL", level)
		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("config:config_test - unexpected error for level %q: %v", level, err)
		}
		if cfg.LogLevel != level {
			t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, level)
		}
	}
}

func validConfig() *Config {
	return &Config{
		ZKAddresses:         "127.0.0.1:2181",
		ZKRoot:              "/dubbo",
		ZKSessionTimeout:    15 * time.Second,
		ProviderScheme:      "dubbo",
		SessionDialTimeout:  5 * time.Second,
		SessionPollInterval: time.Second,
		SessionRetries:      3,
		SessionEagerWindow:  50 * time.Millisecond,
		SessionEncoding:     "gbk",
		COMMSURL:            "nats://127.0.0.1:4222",
		GatewaySubject:      "invoker.gateway.v1",
		RequestTimeout:      25 * time.Second,
		HealthCheckTimeout:  5 * time.Second,
	}
}

func TestValidateForResolve(t *testing.T) {
	cfg := validConfig()
	if err := cfg.ValidateForResolve(); err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	cfg.ZKAddresses = " , "
	err := cfg.ValidateForResolve()
	if !errors.Is(err, registry.ErrNoRegistryAddress) {
		t.Errorf("config:config_test - err = %v, want ErrNoRegistryAddress", err)
	}

	cfg = validConfig()
	cfg.ProviderVersion = "foo"
	if err := cfg.ValidateForResolve(); err == nil {
		t.Error("config:config_test - expected error for invalid PROVIDER_VERSION")
	}
}

func TestValidateForServe(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no registry", func(c *Config) { c.ZKAddresses = "" }},
		{"negative retries", func(c *Config) { c.SessionRetries = -1 }},
		{"zero eager window", func(c *Config) { c.SessionEagerWindow = 0 }},
		{"unknown encoding", func(c *Config) { c.SessionEncoding = "klingon" }},
		{"no comms", func(c *Config) { c.COMMSURL = "" }},
		{"no subject", func(c *Config) { c.GatewaySubject = "" }},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"zero health timeout", func(c *Config) { c.HealthCheckTimeout = 0 }},
	}
	if err := validConfig().ValidateForServe(); err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.ValidateForServe(); err == nil {
				t.Errorf("config:config_test - expected error for %s", tt.name)
			}
		})
	}
}

func TestValidateForDB(t *testing.T) {
	cfg := validConfig()
	if err := cfg.ValidateForDB(); err == nil {
		t.Error("config:config_test - expected error without DATABASE_URL")
	}
	cfg.DatabaseURL = "postgres://localhost/invoker"
	if err := cfg.ValidateForDB(); err != nil {
		t.Errorf("config:config_test - unexpected error: %v", err)
	}
}

func TestSessionOptionsAndResolverParams(t *testing.T) {
	cfg := validConfig()
	opts, err := cfg.SessionOptions()
	if err != nil {
		t.Fatalf("config:config_test - SessionOptions: %v", err)
	}
	if len(opts) != 5 {
		t.Errorf("config:config_test - got %d session options, want 5", len(opts))
	}

	params, err := cfg.ResolverParams()
	if err != nil {
		t.Fatalf("config:config_test - ResolverParams: %v", err)
	}
	if params.Selector != nil {
		t.Error("config:config_test - expected default selector without PROVIDER_VERSION")
	}
	if len(params.Addrs) != 1 || params.Root != "/dubbo" || params.Scheme != "dubbo" {
		t.Errorf("config:config_test - unexpected params %+v", params)
	}

	cfg.ProviderVersion = "1.x"
	params, err = cfg.ResolverParams()
	if err != nil {
		t.Fatalf("config:config_test - ResolverParams: %v", err)
	}
	if _, ok := params.Selector.(*registry.VersionSelector); !ok {
		t.Errorf("config:config_test - Selector = %T, want *registry.VersionSelector", params.Selector)
	}

	cfg.SessionEncoding = "klingon"
	if _, err := cfg.SessionOptions(); err == nil {
		t.Error("config:config_test - expected error for unknown encoding")
	}
}

func TestStaticProviders(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "providers.json")
	body := `{"providers": {"com.test.HelloService": {"address": "127.0.0.1:20880"}}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("config:config_test - write file: %v", err)
	}

	cfg := &Config{BootstrapFile: path}
	static, err := cfg.StaticProviders()
	if err != nil {
		t.Fatalf("config:config_test - StaticProviders: %v", err)
	}
	if ep, ok := static.Get("com.test.HelloService"); !ok || ep.Port != 20880 {
		t.Errorf("config:config_test - unexpected endpoint %+v (ok=%v)", ep, ok)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"providers": {"a": {"address": "nohost"}}}`), 0o600); err != nil {
		t.Fatalf("config:config_test - write file: %v", err)
	}
	cfg.BootstrapFile = bad
	if _, err := cfg.StaticProviders(); err == nil {
		t.Error("config:config_test - expected error for invalid address")
	}
}
