package invoker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/provider-invoker/pkg/events"
	"github.com/morezero/provider-invoker/pkg/registry"
	"github.com/morezero/provider-invoker/pkg/session"
)

const clientLogPrefix = "invoker:client"

// Recorder persists invocation history.
type Recorder interface {
	RecordInvocation(ctx context.Context, event *events.InvocationEvent) error
}

// EndpointResolver looks up a provider endpoint by service name.
type EndpointResolver interface {
	ResolveEndpoint(service string) (*registry.Endpoint, error)
}

// ClientParams holds parameters for NewClient.
type ClientParams struct {
	SessionOptions []session.Option
	Publisher      events.EventPublisher
	Recorder       Recorder
}

// Client runs invocations, each on its own freshly dialed session.
type Client struct {
	sessionOpts []session.Option
	publisher   events.EventPublisher
	recorder    Recorder
}

// NewClient creates a Client. A nil Publisher disables events and a nil
// Recorder disables history.
func NewClient(params ClientParams) *Client {
	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	return &Client{
		sessionOpts: params.SessionOptions,
		publisher:   pub,
		recorder:    params.Recorder,
	}
}

// Invoke validates the arguments, dials endpoint, runs one invocation and
// logs out. Arguments of the wrong shape fail before any network I/O.
func (c *Client) Invoke(ctx context.Context, endpoint registry.Endpoint, req Request) (string, error) {
	cmd, err := FormatCommand(req.Service, req.Method, req.Kind, req.Args)
	if err != nil {
		return "", err
	}

	start := time.Now()
	call := Dial(ctx, endpoint, c.sessionOpts...)
	result, err := call.Invoke(req)
	c.report(ctx, endpoint, req, cmd, result, err, time.Since(start))
	return result, err
}

// InvokeService resolves req.Service through resolver and invokes it.
func (c *Client) InvokeService(ctx context.Context, resolver EndpointResolver, req Request) (string, error) {
	endpoint, err := resolver.ResolveEndpoint(req.Service)
	if err != nil {
		return "", err
	}
	return c.Invoke(ctx, *endpoint, req)
}

func (c *Client) report(ctx context.Context, endpoint registry.Endpoint, req Request, cmd, result string, invokeErr error, elapsed time.Duration) {
	event := &events.InvocationEvent{
		ID:         uuid.NewString(),
		Service:    req.Service,
		Method:     req.Method,
		Endpoint:   endpoint.Address(),
		Command:    cmd,
		Result:     result,
		Ok:         invokeErr == nil,
		DurationMs: elapsed.Milliseconds(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	if invokeErr != nil {
		event.Error = invokeErr.Error()
	}

	if err := c.publisher.PublishInvoked(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish invocation event %s: %v", clientLogPrefix, event.ID, err))
	}
	if c.recorder != nil {
		if err := c.recorder.RecordInvocation(ctx, event); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to record invocation %s: %v", clientLogPrefix, event.ID, err))
		}
	}
}
