// Package bootstrap loads static provider endpoints that take precedence
// over the ZooKeeper registry, for direct connections during development or
// when a provider is not registered.
package bootstrap

import (
	"sort"

	"github.com/morezero/provider-invoker/pkg/registry"
)

// StaticProvider is one fixed endpoint for a service.
type StaticProvider struct {
	// Address is host:port.
	Address     string `json:"address"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
}

// Config is the root of a bootstrap file.
type Config struct {
	Name      string                    `json:"name"`
	Providers map[string]StaticProvider `json:"providers"`
	// Aliases map a short name to a service in Providers.
	Aliases map[string]string `json:"aliases,omitempty"`
}

// Resolved is a validated Config with endpoints parsed for lookup.
type Resolved struct {
	name      string
	endpoints map[string]registry.Endpoint
	versions  map[string]string
	aliases   map[string]string
}

// Get returns the static endpoint for a service or alias.
func (r *Resolved) Get(service string) (registry.Endpoint, bool) {
	if r == nil {
		return registry.Endpoint{}, false
	}
	if ep, ok := r.endpoints[service]; ok {
		return ep, true
	}
	if target, ok := r.aliases[service]; ok {
		ep, ok := r.endpoints[target]
		return ep, ok
	}
	return registry.Endpoint{}, false
}

// Services returns the statically configured service names, sorted.
func (r *Resolved) Services() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len reports how many services are configured.
func (r *Resolved) Len() int {
	if r == nil {
		return 0
	}
	return len(r.endpoints)
}

// Name returns the bootstrap file's name field.
func (r *Resolved) Name() string {
	if r == nil {
		return ""
	}
	return r.name
}

// Version returns the configured version for a service or alias.
func (r *Resolved) Version(service string) string {
	if r == nil {
		return ""
	}
	if target, ok := r.aliases[service]; ok {
		service = target
	}
	return r.versions[service]
}
