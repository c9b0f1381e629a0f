package bootstrap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/morezero/provider-invoker/pkg/registry"
)

const logPrefix = "bootstrap:loader"

// DefaultPaths are tried after any explicit path.
var DefaultPaths = []string{"config/bootstrap.json", "bootstrap.json"}

// LoadConfig reads the first readable bootstrap file among paths, then
// DefaultPaths. Unreadable or unparsable files are skipped. With no file the
// result is an empty Config, so the registry alone decides.
func LoadConfig(paths ...string) *Config {
	all := make([]string, 0, len(paths)+len(DefaultPaths))
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	all = append(all, DefaultPaths...)

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		var cfg Config
		if err := json.Unmarshal(data, &cfg); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse bootstrap file %s: %v", logPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded %d static providers from %s", logPrefix, len(cfg.Providers), p))
		return &cfg
	}

	slog.Debug(fmt.Sprintf("%s - No bootstrap file found", logPrefix))
	return &Config{}
}

// Resolve validates every address and alias in cfg.
func Resolve(cfg *Config) (*Resolved, error) {
	r := &Resolved{
		name:      cfg.Name,
		endpoints: make(map[string]registry.Endpoint, len(cfg.Providers)),
		versions:  make(map[string]string, len(cfg.Providers)),
		aliases:   make(map[string]string, len(cfg.Aliases)),
	}
	for service, p := range cfg.Providers {
		ep, err := parseAddress(p.Address)
		if err != nil {
			return nil, fmt.Errorf("%s - provider %s: %w", logPrefix, service, err)
		}
		r.endpoints[service] = ep
		r.versions[service] = p.Version
	}
	for alias, target := range cfg.Aliases {
		if _, ok := r.endpoints[target]; !ok {
			return nil, fmt.Errorf("%s - alias %s points to unknown service %s", logPrefix, alias, target)
		}
		r.aliases[alias] = target
	}
	return r, nil
}

func parseAddress(addr string) (registry.Endpoint, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return registry.Endpoint{}, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return registry.Endpoint{}, fmt.Errorf("invalid port in %q", addr)
	}
	if host == "" {
		return registry.Endpoint{}, fmt.Errorf("missing host in %q", addr)
	}
	return registry.Endpoint{Host: host, Port: port}, nil
}
