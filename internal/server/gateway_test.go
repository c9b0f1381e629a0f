package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/provider-invoker/pkg/commsutil"
	"github.com/morezero/provider-invoker/pkg/dispatcher"
	"github.com/morezero/provider-invoker/pkg/events"
	"github.com/morezero/provider-invoker/pkg/invoker"
	"github.com/morezero/provider-invoker/pkg/registry"
	"github.com/morezero/provider-invoker/pkg/session"
)

const gatewayTestPrefix = "server:gateway_test"

func startCommsServer(t *testing.T) *comms.Conn {
	t.Helper()

	ns, err := commsserver.NewServer(&commsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", gatewayTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", gatewayTestPrefix)
	}

	nc, err := commsutil.Connect(ns.ClientURL(), "gateway-test")
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", gatewayTestPrefix, err)
	}
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return nc
}

// startProvider runs a telnet-style provider that answers every invoke with
// reply and stops at exit.
func startProvider(t *testing.T, reply string) registry.Endpoint {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("%s - listen: %v", gatewayTestPrefix, err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				r := bufio.NewReader(conn)
				for {
					line, err := r.ReadString('\n')
					if err != nil || strings.TrimSpace(line) == "exit" {
						return
					}
					conn.Write([]byte(reply))
				}
			}(conn)
		}
	}()
	return registry.Endpoint{Host: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port}
}

type staticResolver struct {
	endpoints map[string]registry.Endpoint
}

func (r *staticResolver) ListServices() ([]string, error) {
	out := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		out = append(out, name)
	}
	return out, nil
}

func (r *staticResolver) ResolveEndpoint(service string) (*registry.Endpoint, error) {
	ep, ok := r.endpoints[service]
	if !ok {
		return nil, registry.NewRegistryError(registry.CodeNotFound, "no endpoint for "+service)
	}
	return &ep, nil
}

func (r *staticResolver) Providers(string) ([]*registry.ProviderURL, error) { return nil, nil }

func (r *staticResolver) Health() bool { return true }

func request(t *testing.T, nc *comms.Conn, subject string, req *dispatcher.GatewayRequest) *dispatcher.GatewayResponse {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("%s - marshal request: %v", gatewayTestPrefix, err)
	}
	msg, err := nc.Request(subject, data, 10*time.Second)
	if err != nil {
		t.Fatalf("%s - request failed: %v", gatewayTestPrefix, err)
	}
	var resp dispatcher.GatewayResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		t.Fatalf("%s - unmarshal response: %v", gatewayTestPrefix, err)
	}
	return &resp
}

func TestGateway_InvokeEndToEnd(t *testing.T) {
	nc := startCommsServer(t)
	endpoint := startProvider(t, "\"hello world\"\r\nelapsed: 1 ms.\r\ndubbo>")

	resolver := &staticResolver{endpoints: map[string]registry.Endpoint{"com.test.HelloService": endpoint}}
	client := invoker.NewClient(invoker.ClientParams{
		SessionOptions: []session.Option{
			session.WithEagerWindow(200 * time.Millisecond),
			session.WithPollInterval(10 * time.Millisecond),
		},
		Publisher: events.NewCommsPublisher(nc, nil),
	})

	invoked := make(chan *comms.Msg, 1)
	eventSub, err := nc.ChanSubscribe(commsutil.SubjectInvokedEvent, invoked)
	if err != nil {
		t.Fatalf("%s - subscribe events: %v", gatewayTestPrefix, err)
	}
	defer eventSub.Unsubscribe()

	sub, err := nc.Subscribe(commsutil.SubjectGateway, NewMsgHandler(context.Background(), dispatcher.NewDispatcher(resolver, client), 5*time.Second))
	if err != nil {
		t.Fatalf("%s - subscribe gateway: %v", gatewayTestPrefix, err)
	}
	defer sub.Unsubscribe()
	nc.Flush()

	params, _ := json.Marshal(dispatcher.InvokeParams{
		Service: "com.test.HelloService",
		Method:  "sayHello",
		Args:    json.RawMessage(`["world"]`),
	})
	resp := request(t, nc, commsutil.SubjectGateway, &dispatcher.GatewayRequest{ID: "e2e-1", Method: dispatcher.MethodInvoke, Params: params})

	if !resp.Ok {
		t.Fatalf("%s - expected ok, got %+v", gatewayTestPrefix, resp.Error)
	}
	if resp.ID != "e2e-1" {
		t.Errorf("%s - expected id e2e-1, got %s", gatewayTestPrefix, resp.ID)
	}
	result, _ := resp.Result.(map[string]interface{})
	if result["result"] != `"hello world"` {
		t.Errorf("%s - unexpected result %v", gatewayTestPrefix, resp.Result)
	}

	select {
	case msg := <-invoked:
		var event events.InvocationEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			t.Fatalf("%s - decode event: %v", gatewayTestPrefix, err)
		}
		if event.Command != `invoke com.test.HelloService.sayHello("world")` || !event.Ok {
			t.Errorf("%s - unexpected event %+v", gatewayTestPrefix, event)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - no invocation event received", gatewayTestPrefix)
	}
}

func TestGateway_ErrorsAndUnknownMethods(t *testing.T) {
	nc := startCommsServer(t)
	resolver := &staticResolver{endpoints: map[string]registry.Endpoint{}}
	disp := dispatcher.NewDispatcher(resolver, invoker.NewClient(invoker.ClientParams{}))

	sub, err := nc.Subscribe(commsutil.SubjectGateway, NewMsgHandler(context.Background(), disp, 5*time.Second))
	if err != nil {
		t.Fatalf("%s - subscribe gateway: %v", gatewayTestPrefix, err)
	}
	defer sub.Unsubscribe()
	nc.Flush()

	resp := request(t, nc, commsutil.SubjectGateway, &dispatcher.GatewayRequest{ID: "x", Method: "upsert"})
	if resp.Ok || resp.Error == nil || resp.Error.Code != dispatcher.CodeMethodNotFound {
		t.Errorf("%s - expected METHOD_NOT_FOUND, got %+v", gatewayTestPrefix, resp.Error)
	}

	resp = request(t, nc, commsutil.SubjectGateway, &dispatcher.GatewayRequest{
		Method: dispatcher.MethodResolve,
		Params: json.RawMessage(`{"service":"com.test.Missing"}`),
	})
	if resp.Ok || resp.Error.Code != dispatcher.CodeNotFound {
		t.Errorf("%s - expected NOT_FOUND, got %+v", gatewayTestPrefix, resp.Error)
	}
	if resp.ID == "" {
		t.Errorf("%s - expected a generated request id", gatewayTestPrefix)
	}

	msg, err := nc.Request(commsutil.SubjectGateway, []byte("not json"), 5*time.Second)
	if err != nil {
		t.Fatalf("%s - request failed: %v", gatewayTestPrefix, err)
	}
	var bad dispatcher.GatewayResponse
	if err := json.Unmarshal(msg.Data, &bad); err != nil {
		t.Fatalf("%s - unmarshal response: %v", gatewayTestPrefix, err)
	}
	if bad.Ok || bad.Error == nil || bad.Error.Code != "INVALID_REQUEST" {
		t.Errorf("%s - expected INVALID_REQUEST, got %+v", gatewayTestPrefix, bad.Error)
	}
}
