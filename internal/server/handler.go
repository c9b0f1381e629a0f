package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/provider-invoker/pkg/commsutil"
	"github.com/morezero/provider-invoker/pkg/dispatcher"
)

const handlerLogPrefix = "server:handler"

// Dispatcher is what the gateway subscription hands decoded requests to.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *dispatcher.GatewayRequest) *dispatcher.GatewayResponse
}

// NewMsgHandler returns the NATS handler for the gateway subject. Each request
// gets its own deadline: requestTimeout, or the caller's shorter timeoutMs.
// Requests without an id are assigned one so replies and logs correlate.
func NewMsgHandler(ctx context.Context, disp Dispatcher, requestTimeout time.Duration) comms.MsgHandler {
	return func(msg *comms.Msg) {
		var req dispatcher.GatewayRequest
		if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to decode request: %v", handlerLogPrefix, err))
			respond(msg, &dispatcher.GatewayResponse{
				Ok: false,
				Error: &dispatcher.ErrorDetail{
					Code:    "INVALID_REQUEST",
					Message: "Failed to decode request",
				},
			})
			return
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}

		timeout := requestTimeout
		if req.Ctx != nil && req.Ctx.TimeoutMs > 0 {
			if d := time.Duration(req.Ctx.TimeoutMs) * time.Millisecond; d < timeout {
				timeout = d
			}
		}
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		respond(msg, disp.Dispatch(reqCtx, &req))
	}
}

func respond(msg *comms.Msg, resp *dispatcher.GatewayResponse) {
	data, err := commsutil.EncodePayload(resp)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", handlerLogPrefix, err))
		return
	}
	if msg.Reply == "" {
		slog.Debug(fmt.Sprintf("%s - request %s has no reply subject", handlerLogPrefix, resp.ID))
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to respond to %s: %v", handlerLogPrefix, resp.ID, err))
	}
}
