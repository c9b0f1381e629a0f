package invoker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/provider-invoker/pkg/registry"
	"github.com/morezero/provider-invoker/pkg/session"
)

const logPrefix = "invoker:call"

// Call is a one-shot invocation bound to a single provider endpoint. Dial
// connects immediately; Invoke runs exactly one command and logs out.
type Call struct {
	endpoint registry.Endpoint
	sess     *session.Session
	loggedIn bool
}

// Dial creates a Call and attempts the session connect. A failed connect is
// recorded rather than returned; check LoggedIn or Err before relying on it.
func Dial(ctx context.Context, endpoint registry.Endpoint, opts ...session.Option) *Call {
	sess := session.New(opts...)
	c := &Call{endpoint: endpoint, sess: sess}
	c.loggedIn = sess.Connect(ctx, endpoint.Host, endpoint.Port)
	return c
}

// LoggedIn reports whether the session connect succeeded.
func (c *Call) LoggedIn() bool {
	return c.loggedIn
}

// Err returns the connect failure, if any.
func (c *Call) Err() error {
	return c.sess.Err()
}

// Invoke sends one invocation and returns the parsed result. The session is
// logged out on every path, so the Call cannot be used again.
func (c *Call) Invoke(req Request) (string, error) {
	defer c.Close()

	cmd, err := FormatCommand(req.Service, req.Method, req.Kind, req.Args)
	if err != nil {
		return "", err
	}
	slog.Info(fmt.Sprintf("%s - command: %s", logPrefix, cmd))

	if !c.loggedIn {
		slog.Warn(fmt.Sprintf("%s - not logged in to %s, command not sent", logPrefix, c.endpoint.Address()))
		if cause := c.sess.Err(); cause != nil {
			return "", fmt.Errorf("%w: %v", ErrNotConnected, cause)
		}
		return "", ErrNotConnected
	}

	raw, err := c.sess.SendCommand(cmd)
	if err != nil {
		return "", &InvocationError{Command: cmd, Raw: raw, Err: err}
	}
	slog.Debug(fmt.Sprintf("%s - response from %s: %q", logPrefix, c.endpoint.Address(), raw))

	result, err := ParseResponse(raw)
	if err != nil {
		return "", &InvocationError{Command: cmd, Raw: raw, Err: err}
	}
	return result, nil
}

// Close logs the session out. Safe to call more than once.
func (c *Call) Close() {
	c.sess.Logout()
}
