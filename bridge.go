// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"fmt"
	"net/http"
	"time"

	gorillarpc "github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
)

// BridgeServiceName is the JSON-RPC service name the bridge registers.
const BridgeServiceName = "Postman"

// Bridge methods
const (
	BridgeEmit    = BridgeServiceName + ".Emit"
	BridgeNotify  = BridgeServiceName + ".Notify"
	BridgeClients = BridgeServiceName + ".Clients"
)

// BridgeService exposes a registry's clients over JSON-RPC 2.0 so tools
// outside the process can emit requests through them.
type BridgeService struct {
	reg *Registry
}

// EmitArgs are the parameters of Postman.Emit. TimeoutMs overrides the
// client timeout when positive.
type EmitArgs struct {
	Endpoint  string `json:"endpoint"`
	Name      string `json:"name"`
	Payload   any    `json:"payload,omitempty"`
	TimeoutMs int64  `json:"timeout_ms,omitempty"`
}

// EmitReply carries the remote handler's response payload.
type EmitReply struct {
	Payload any `json:"payload"`
}

// NotifyArgs are the parameters of Postman.Notify.
type NotifyArgs struct {
	Endpoint string `json:"endpoint"`
	Name     string `json:"name"`
	Payload  any    `json:"payload,omitempty"`
}

// NotifyReply reports whether the request was handed to the transport.
type NotifyReply struct {
	Sent bool `json:"sent"`
}

// ClientsArgs is the empty parameter set of Postman.Clients.
type ClientsArgs struct{}

// ClientInfo describes one live client.
type ClientInfo struct {
	ID        string `json:"id"`
	Endpoint  string `json:"endpoint"`
	Origin    string `json:"origin"`
	TimeoutMs int64  `json:"timeout_ms"`
	Pending   int    `json:"pending"`
}

// ClientsReply lists the live clients ordered by endpoint.
type ClientsReply struct {
	Clients []ClientInfo `json:"clients"`
}

// NewBridgeHandler returns an HTTP handler serving the bridge for reg
func NewBridgeHandler(reg *Registry) (http.Handler, error) {
	s := gorillarpc.NewServer()
	s.RegisterCodec(json2.NewCodec(), "application/json")
	if err := s.RegisterService(&BridgeService{reg: reg}, BridgeServiceName); err != nil {
		return nil, fmt.Errorf("register bridge service: %w", err)
	}
	return s, nil
}

func (s *BridgeService) client(endpoint string) (*Client, error) {
	c, ok := s.reg.ClientByEndpoint(Endpoint(endpoint))
	if !ok {
		return nil, &json2.Error{
			Code:    json2.E_INVALID_REQ,
			Message: fmt.Sprintf("no client bound to endpoint %q", endpoint),
		}
	}
	return c, nil
}

// Emit sends a request through the client bound to args.Endpoint and
// waits for the response.
func (s *BridgeService) Emit(r *http.Request, args *EmitArgs, reply *EmitReply) error {
	c, err := s.client(args.Endpoint)
	if err != nil {
		return err
	}
	var opts []CallOption
	if args.TimeoutMs > 0 {
		opts = append(opts, WithCallTimeout(time.Duration(args.TimeoutMs)*time.Millisecond))
	}
	var out any
	if err := c.Call(r.Context(), args.Name, args.Payload, &out, opts...); err != nil {
		return &json2.Error{Code: json2.E_SERVER, Message: err.Error()}
	}
	reply.Payload = out
	return nil
}

// Notify sends a fire-and-forget request.
func (s *BridgeService) Notify(r *http.Request, args *NotifyArgs, reply *NotifyReply) error {
	c, err := s.client(args.Endpoint)
	if err != nil {
		return err
	}
	if err := c.Notify(r.Context(), args.Name, args.Payload); err != nil {
		return &json2.Error{Code: json2.E_SERVER, Message: err.Error()}
	}
	reply.Sent = true
	return nil
}

// Clients lists the live clients.
func (s *BridgeService) Clients(_ *http.Request, _ *ClientsArgs, reply *ClientsReply) error {
	for _, c := range s.reg.Clients() {
		reply.Clients = append(reply.Clients, ClientInfo{
			ID:        c.ID(),
			Endpoint:  string(c.Endpoint()),
			Origin:    c.Origin(),
			TimeoutMs: c.Timeout().Milliseconds(),
			Pending:   c.Pending(),
		})
	}
	return nil
}
