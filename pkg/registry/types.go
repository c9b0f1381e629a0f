// Package registry discovers provider endpoints from the ZooKeeper
// registration tree (<root>/<service>/providers).
package registry

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Error codes carried by RegistryError.
const (
	CodeNotFound    = "NOT_FOUND"
	CodeUnavailable = "REGISTRY_UNAVAILABLE"
)

var (
	// ErrNotFound matches every RegistryError with CodeNotFound.
	ErrNotFound = errors.New("registry: not found")
	// ErrNoRegistryAddress is returned by NewResolver when no ZooKeeper address is configured.
	ErrNoRegistryAddress = &ConfigError{Field: "ZK_ADDRESSES", Message: "no registry address configured"}
	// ErrClosed is the cause recorded when a closed resolver is used.
	ErrClosed = errors.New("registry: resolver closed")
)

// Endpoint is a resolved provider address.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Address renders host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// RegistryError is a structured error from the resolver.
type RegistryError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *RegistryError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

// Unwrap returns the underlying cause.
func (e *RegistryError) Unwrap() error {
	return e.Err
}

// Is reports whether e is a not-found error when target is ErrNotFound.
func (e *RegistryError) Is(target error) bool {
	return target == ErrNotFound && e.Code == CodeNotFound
}

// NewRegistryError creates a new RegistryError.
func NewRegistryError(code, message string) *RegistryError {
	return &RegistryError{Code: code, Message: message}
}

func notFound(service, reason string, cause error) *RegistryError {
	return &RegistryError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("no endpoint for %s: %s", service, reason),
		Err:     cause,
	}
}

// ConfigError reports a resolver that cannot be constructed from its configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "registry: invalid configuration " + e.Field + ": " + e.Message
}
