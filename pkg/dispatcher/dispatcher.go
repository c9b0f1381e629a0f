package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/morezero/provider-invoker/pkg/commsutil"
	"github.com/morezero/provider-invoker/pkg/invoker"
	"github.com/morezero/provider-invoker/pkg/registry"
)

const logPrefix = "dispatcher:dispatch"

// Resolver is the registry surface the gateway needs. *registry.Resolver satisfies it.
type Resolver interface {
	ListServices() ([]string, error)
	ResolveEndpoint(service string) (*registry.Endpoint, error)
	Providers(service string) ([]*registry.ProviderURL, error)
	Health() bool
}

// Invoker runs one invocation against an endpoint. *invoker.Client satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, endpoint registry.Endpoint, req invoker.Request) (string, error)
}

// Dispatcher routes COMMS requests to the resolver and the invoker.
type Dispatcher struct {
	resolver Resolver
	invoker  Invoker
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(resolver Resolver, inv Invoker) *Dispatcher {
	return &Dispatcher{resolver: resolver, invoker: inv}
}

// Dispatch routes a request to the appropriate handler and returns a response.
func (d *Dispatcher) Dispatch(ctx context.Context, req *GatewayRequest) *GatewayResponse {
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s", logPrefix, req.Method, req.ID))

	switch req.Method {
	case MethodListServices:
		return d.handleListServices(req)
	case MethodResolve:
		return d.handleResolve(req)
	case MethodProviders:
		return d.handleProviders(req)
	case MethodInvoke:
		return d.handleInvoke(ctx, req)
	case MethodHealth:
		return d.handleHealth(req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("Unknown method: %s", req.Method), false)
	}
}

func (d *Dispatcher) handleListServices(req *GatewayRequest) *GatewayResponse {
	services, err := d.resolver.ListServices()
	if err != nil {
		return errorToResponse(req.ID, err)
	}
	if services == nil {
		services = []string{}
	}
	return &GatewayResponse{ID: req.ID, Ok: true, Result: &ListServicesResult{Services: services}}
}

func (d *Dispatcher) handleResolve(req *GatewayRequest) *GatewayResponse {
	var input ServiceParams
	if err := decodeParams(req.Params, &input); err != nil || input.Service == "" {
		return errorResponse(req.ID, CodeInvalidArgument, "Failed to parse resolve params: service is required", false)
	}

	ep, err := d.resolver.ResolveEndpoint(input.Service)
	if err != nil {
		return errorToResponse(req.ID, err)
	}
	return &GatewayResponse{ID: req.ID, Ok: true, Result: &ResolveResult{
		Service: input.Service,
		Host:    ep.Host,
		Port:    ep.Port,
		Address: ep.Address(),
	}}
}

func (d *Dispatcher) handleProviders(req *GatewayRequest) *GatewayResponse {
	var input ServiceParams
	if err := decodeParams(req.Params, &input); err != nil || input.Service == "" {
		return errorResponse(req.ID, CodeInvalidArgument, "Failed to parse providers params: service is required", false)
	}

	providers, err := d.resolver.Providers(input.Service)
	if err != nil {
		return errorToResponse(req.ID, err)
	}
	out := make([]ProviderInfo, 0, len(providers))
	for _, p := range providers {
		params := make(map[string]string, len(p.Params))
		for k := range p.Params {
			params[k] = p.Params.Get(k)
		}
		out = append(out, ProviderInfo{
			Address:   p.Endpoint().Address(),
			Interface: p.Interface,
			Version:   p.Version(),
			Params:    params,
		})
	}
	return &GatewayResponse{ID: req.ID, Ok: true, Result: &ProvidersResult{Service: input.Service, Providers: out}}
}

func (d *Dispatcher) handleInvoke(ctx context.Context, req *GatewayRequest) *GatewayResponse {
	var input InvokeParams
	if err := decodeParams(req.Params, &input); err != nil {
		return errorResponse(req.ID, CodeInvalidArgument, "Failed to parse invoke params", false)
	}
	if input.Service == "" || input.Method == "" {
		return errorResponse(req.ID, CodeInvalidArgument, "service and method are required", false)
	}

	kind, err := invoker.ParseArgKind(input.Kind)
	if err != nil {
		return errorToResponse(req.ID, err)
	}
	args, err := decodeArgs(kind, input.Args)
	if err != nil {
		return errorToResponse(req.ID, err)
	}

	var endpoint registry.Endpoint
	if input.Host != "" && input.Port > 0 {
		endpoint = registry.Endpoint{Host: input.Host, Port: input.Port}
	} else {
		ep, err := d.resolver.ResolveEndpoint(input.Service)
		if err != nil {
			return errorToResponse(req.ID, err)
		}
		endpoint = *ep
	}

	result, err := d.invoker.Invoke(ctx, endpoint, invoker.Request{
		Service: input.Service,
		Method:  input.Method,
		Kind:    kind,
		Args:    args,
	})
	if err != nil {
		return errorToResponse(req.ID, err)
	}
	return &GatewayResponse{ID: req.ID, Ok: true, Result: &InvokeResult{
		Service:  input.Service,
		Method:   input.Method,
		Endpoint: endpoint.Address(),
		Result:   result,
	}}
}

func (d *Dispatcher) handleHealth(req *GatewayRequest) *GatewayResponse {
	ok := d.resolver.Health()
	status := "healthy"
	if !ok {
		status = "unhealthy"
	}
	return &GatewayResponse{ID: req.ID, Ok: true, Result: &HealthResult{Status: status, Registry: ok}}
}

// --- helpers ---

func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "null" {
		return nil
	}
	return commsutil.DecodePayload(raw, v)
}

// decodeArgs turns the JSON args into the shape FormatCommand expects.
// Missing positional args mean an empty argument list.
func decodeArgs(kind invoker.ArgKind, raw json.RawMessage) (any, error) {
	empty := len(raw) == 0 || strings.TrimSpace(string(raw)) == "null"
	switch kind {
	case invoker.Object:
		if empty {
			return nil, fmt.Errorf("%w: object argument is required", invoker.ErrInvalidArguments)
		}
		var obj map[string]any
		if err := commsutil.DecodePayload(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: object argument: %v", invoker.ErrInvalidArguments, err)
		}
		return obj, nil
	default:
		if empty {
			return []any{}, nil
		}
		var list []any
		if err := commsutil.DecodePayload(raw, &list); err != nil {
			return nil, fmt.Errorf("%w: positional arguments: %v", invoker.ErrInvalidArguments, err)
		}
		return list, nil
	}
}

func errorResponse(id, code, message string, retryable bool) *GatewayResponse {
	return &GatewayResponse{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

func errorToResponse(id string, err error) *GatewayResponse {
	var regErr *registry.RegistryError
	var invErr *invoker.InvocationError
	switch {
	case errors.Is(err, invoker.ErrInvalidArguments):
		return errorResponse(id, CodeInvalidArgument, err.Error(), false)
	case errors.As(err, &regErr):
		code := regErr.Code
		if code == registry.CodeNotFound {
			code = CodeNotFound
		}
		return errorResponse(id, code, regErr.Error(), code != CodeNotFound)
	case errors.As(err, &invErr):
		resp := errorResponse(id, CodeInvocationFailed, invErr.Error(), true)
		resp.Error.Details = map[string]string{"command": invErr.Command, "raw": invErr.Raw}
		return resp
	case errors.Is(err, invoker.ErrNotConnected):
		return errorResponse(id, CodeInvocationFailed, err.Error(), true)
	}
	slog.Error(fmt.Sprintf("%s - unexpected error for request %s: %+v", logPrefix, id, err))
	return errorResponse(id, CodeInternal, err.Error(), true)
}
