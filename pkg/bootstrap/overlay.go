package bootstrap

import (
	"net/url"

	"github.com/morezero/provider-invoker/pkg/registry"
)

// Backend is the registry lookup the overlay falls back to.
type Backend interface {
	ListServices() ([]string, error)
	ResolveEndpoint(service string) (*registry.Endpoint, error)
	Providers(service string) ([]*registry.ProviderURL, error)
	Health() bool
}

// Overlay answers from static providers first and the backend otherwise.
type Overlay struct {
	static *Resolved
	next   Backend
}

// NewOverlay wraps next with static entries. Either may be nil.
func NewOverlay(static *Resolved, next Backend) *Overlay {
	return &Overlay{static: static, next: next}
}

// ListServices returns the registry's services in registry order, followed
// by static services the registry does not list.
func (o *Overlay) ListServices() ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	if o.next != nil {
		services, err := o.next.ListServices()
		if err != nil {
			return nil, err
		}
		for _, s := range services {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range o.static.Services() {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// ResolveEndpoint returns the static endpoint when configured.
func (o *Overlay) ResolveEndpoint(service string) (*registry.Endpoint, error) {
	if ep, ok := o.static.Get(service); ok {
		return &ep, nil
	}
	if o.next == nil {
		return nil, registry.NewRegistryError(registry.CodeNotFound, "no endpoint for "+service+": not in bootstrap file")
	}
	return o.next.ResolveEndpoint(service)
}

// Providers reports a static entry as a single provider with scheme "static".
func (o *Overlay) Providers(service string) ([]*registry.ProviderURL, error) {
	if ep, ok := o.static.Get(service); ok {
		params := url.Values{}
		if v := o.static.Version(service); v != "" {
			params.Set("version", v)
		}
		return []*registry.ProviderURL{{
			Raw:       ep.Address(),
			Decoded:   "static://" + ep.Address() + "/" + service,
			Scheme:    "static",
			Host:      ep.Host,
			Port:      ep.Port,
			Interface: service,
			Params:    params,
		}}, nil
	}
	if o.next == nil {
		return nil, registry.NewRegistryError(registry.CodeNotFound, "no providers for "+service)
	}
	return o.next.Providers(service)
}

// Health reports the backend's health; static-only overlays are always healthy.
func (o *Overlay) Health() bool {
	if o.next == nil {
		return true
	}
	return o.next.Health()
}
