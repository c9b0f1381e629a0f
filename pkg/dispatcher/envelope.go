// Package dispatcher routes incoming COMMS gateway messages to the registry
// resolver and the invocation client.
package dispatcher

import "encoding/json"

// Gateway method names.
const (
	MethodListServices = "listServices"
	MethodResolve      = "resolve"
	MethodProviders    = "providers"
	MethodInvoke       = "invoke"
	MethodHealth       = "health"
)

// Error codes carried by ErrorDetail.
const (
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeNotFound         = "NOT_FOUND"
	CodeInvocationFailed = "INVOCATION_FAILED"
	CodeMethodNotFound   = "METHOD_NOT_FOUND"
	CodeInternal         = "INTERNAL_ERROR"
)

// GatewayRequest is the JSON envelope for incoming COMMS gateway requests.
type GatewayRequest struct {
	ID     string             `json:"id"`
	Method string             `json:"method"`
	Params json.RawMessage    `json:"params"`
	Ctx    *InvocationContext `json:"ctx,omitempty"`
}

// GatewayResponse is the JSON envelope for COMMS gateway responses.
type GatewayResponse struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

// InvocationContext holds context from the caller.
type InvocationContext struct {
	RequestID     string `json:"requestId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	UserID        string `json:"userId,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}

// ServiceParams names a registered service.
type ServiceParams struct {
	Service string `json:"service"`
}

// InvokeParams describes one invocation. Host and Port bypass the registry
// when both are set.
type InvokeParams struct {
	Service string          `json:"service"`
	Method  string          `json:"method"`
	Kind    string          `json:"kind,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Host    string          `json:"host,omitempty"`
	Port    int             `json:"port,omitempty"`
}

// ListServicesResult is returned by listServices.
type ListServicesResult struct {
	Services []string `json:"services"`
}

// ResolveResult is returned by resolve.
type ResolveResult struct {
	Service string `json:"service"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Address string `json:"address"`
}

// ProviderInfo is one decoded provider registration.
type ProviderInfo struct {
	Address   string            `json:"address"`
	Interface string            `json:"interface,omitempty"`
	Version   string            `json:"version,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
}

// ProvidersResult is returned by providers.
type ProvidersResult struct {
	Service   string         `json:"service"`
	Providers []ProviderInfo `json:"providers"`
}

// InvokeResult is returned by invoke.
type InvokeResult struct {
	Service  string `json:"service"`
	Method   string `json:"method"`
	Endpoint string `json:"endpoint"`
	Result   string `json:"result"`
}

// HealthResult is returned by health.
type HealthResult struct {
	Status   string `json:"status"`
	Registry bool   `json:"registry"`
}
