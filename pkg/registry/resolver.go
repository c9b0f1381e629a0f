package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
)

const (
	logPrefix             = "registry:resolver"
	defaultRoot           = "/dubbo"
	defaultScheme         = "dubbo"
	defaultSessionTimeout = 15 * time.Second
	providersNode         = "providers"
)

// Tree is the read primitive the resolver needs from the coordination
// service. *zk.Conn satisfies it.
type Tree interface {
	Children(path string) ([]string, *zk.Stat, error)
	Close()
}

// NewResolverParams holds parameters for NewResolver.
type NewResolverParams struct {
	// Addrs lists ZooKeeper servers as host:port. Required unless Tree is set.
	Addrs          []string
	Root           string
	Scheme         string
	SessionTimeout time.Duration
	// Selector picks among multiple providers. Defaults to FirstProvider.
	Selector Selector
	// Tree replaces the ZooKeeper connection (tests, custom transports).
	Tree Tree
}

// Resolver turns service names into provider endpoints by reading the
// registration tree. It holds one coordination-service connection for its
// whole lifetime; call Close when done.
type Resolver struct {
	mu       sync.Mutex
	tree     Tree
	root     string
	scheme   string
	pattern  *regexp.Regexp
	selector Selector
	closed   bool
}

// NewResolver connects to the registry. Without any address it returns
// ErrNoRegistryAddress.
func NewResolver(params NewResolverParams) (*Resolver, error) {
	root := params.Root
	if root == "" {
		root = defaultRoot
	}
	root = "/" + strings.Trim(root, "/")

	scheme := params.Scheme
	if scheme == "" {
		scheme = defaultScheme
	}

	selector := params.Selector
	if selector == nil {
		selector = FirstProvider{}
	}

	tree := params.Tree
	if tree == nil {
		addrs := nonEmpty(params.Addrs)
		if len(addrs) == 0 {
			return nil, ErrNoRegistryAddress
		}
		timeout := params.SessionTimeout
		if timeout <= 0 {
			timeout = defaultSessionTimeout
		}
		conn, err := connect(addrs, timeout)
		if err != nil {
			return nil, err
		}
		tree = conn
	}

	return &Resolver{
		tree:     tree,
		root:     root,
		scheme:   scheme,
		pattern:  endpointPattern(scheme),
		selector: selector,
	}, nil
}

func connect(addrs []string, timeout time.Duration) (*zk.Conn, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to registry %s", logPrefix, strings.Join(addrs, ",")))

	conn, events, err := zk.Connect(addrs, timeout, zk.WithLogger(zkLogger{}))
	if err != nil {
		return nil, &RegistryError{
			Code:    CodeUnavailable,
			Message: fmt.Sprintf("failed to connect to registry %s", strings.Join(addrs, ",")),
			Err:     err,
		}
	}
	go func() {
		for ev := range events {
			if ev.Type == zk.EventSession {
				slog.Debug(fmt.Sprintf("%s - registry session state %s", logPrefix, ev.State))
			}
		}
	}()
	return conn, nil
}

// ListServices returns the service names registered under the root, in the
// order the registry reports them.
func (r *Resolver) ListServices() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, &RegistryError{Code: CodeUnavailable, Message: "list services", Err: ErrClosed}
	}
	services, _, err := r.tree.Children(r.root)
	if err != nil {
		return nil, &RegistryError{Code: CodeUnavailable, Message: fmt.Sprintf("failed to list %s", r.root), Err: err}
	}
	return services, nil
}

// ResolveEndpoint returns the endpoint of the selected provider of service.
// Every failure, including registry read errors, surfaces as a RegistryError
// matching ErrNotFound.
func (r *Resolver) ResolveEndpoint(service string) (*Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, notFound(service, "resolver closed", ErrClosed)
	}

	services, _, err := r.tree.Children(r.root)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to list %s while resolving %s: %+v", logPrefix, r.root, service, err))
		return nil, notFound(service, "registry read failed", err)
	}
	if !slices.Contains(services, service) {
		slog.Info(fmt.Sprintf("%s - %s is not registered under %s", logPrefix, service, r.root))
		return nil, notFound(service, "service not registered", nil)
	}

	providersPath := r.providersPath(service)
	providers, _, err := r.tree.Children(providersPath)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to list %s: %+v", logPrefix, providersPath, err))
		return nil, notFound(service, "registry read failed", err)
	}
	if len(providers) == 0 {
		slog.Info(fmt.Sprintf("%s - %s has no providers", logPrefix, service))
		return nil, notFound(service, "no providers registered", nil)
	}

	entry, ok := r.selector.Select(service, providers)
	if !ok {
		return nil, notFound(service, "no provider selected", nil)
	}

	decoded, err := decodeEntry(entry)
	if err == nil {
		var ep Endpoint
		ep, err = matchEndpoint(r.pattern, decoded)
		if err == nil {
			slog.Info(fmt.Sprintf("%s - Resolved %s to %s", logPrefix, service, ep.Address()))
			return &ep, nil
		}
	}
	slog.Warn(fmt.Sprintf("%s - unusable provider entry for %s: %+v", logPrefix, service, err))
	return nil, notFound(service, "unusable provider entry", err)
}

// Providers decodes every provider entry of service. Entries that do not
// match the endpoint pattern are skipped.
func (r *Resolver) Providers(service string) ([]*ProviderURL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, &RegistryError{Code: CodeUnavailable, Message: "list providers", Err: ErrClosed}
	}
	entries, _, err := r.tree.Children(r.providersPath(service))
	if errors.Is(err, zk.ErrNoNode) {
		return nil, notFound(service, "service not registered", err)
	}
	if err != nil {
		return nil, &RegistryError{Code: CodeUnavailable, Message: fmt.Sprintf("failed to list providers of %s", service), Err: err}
	}

	out := make([]*ProviderURL, 0, len(entries))
	for _, entry := range entries {
		p, err := DecodeProvider(entry, r.scheme)
		if err != nil {
			slog.Debug(fmt.Sprintf("%s - skipping provider entry of %s: %v", logPrefix, service, err))
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Health reports whether the registry root can be read.
func (r *Resolver) Health() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	_, _, err := r.tree.Children(r.root)
	return err == nil
}

// Close releases the registry connection. Further calls fail.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.tree.Close()
	slog.Info(fmt.Sprintf("%s - Registry connection closed", logPrefix))
}

func (r *Resolver) providersPath(service string) string {
	return path.Join(r.root, service, providersNode)
}

// ParseAddrs splits a comma separated server list ("zk1:2181,zk2:2181").
func ParseAddrs(s string) []string {
	return nonEmpty(strings.Split(s, ","))
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// zkLogger routes the ZooKeeper client's logging into slog at debug level.
type zkLogger struct{}

func (zkLogger) Printf(format string, args ...interface{}) {
	slog.Debug(fmt.Sprintf("%s - zk: %s", logPrefix, fmt.Sprintf(format, args...)))
}
