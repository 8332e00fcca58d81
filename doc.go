// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package postman turns a one-way text channel between isolated contexts
// into callback based request/response calls.
//
// # Model
//
// A Transport carries text to a named Endpoint and hands back every inbound
// message tagged with the endpoint that sent it. Nothing else is assumed:
// no acknowledgements, no ordering beyond what the channel offers.
//
// A Registry owns the clients that share one Transport. Each Client is bound
// to exactly one remote Endpoint; Registry.Listen is the single reader of the
// transport and routes every message to the client bound to its sender.
//
// # Usage
//
// Two contexts on an in-process bus:
//
//	bus := postman.NewBus()
//	tw, _ := bus.Attach("w", "https://w.example")
//	tx, _ := bus.Attach("x", "https://x.example")
//
//	// inside w, talking to x
//	regW := postman.NewRegistry(tw)
//	go regW.Listen(ctx)
//	toX, _ := regW.CreateClient("x", "https://x.example")
//
//	// inside x, talking to w
//	regX := postman.NewRegistry(tx)
//	go regX.Listen(ctx)
//	toW, _ := regX.CreateClient("w", "https://w.example")
//	toW.On("echo", func(payload any, respond postman.Respond) {
//	    respond(nil, payload)
//	})
//
//	// callback style
//	toX.Emit(ctx, "echo", map[string]any{"v": "hi"}, func(payload any, err error) {
//	    ...
//	})
//
//	// blocking style
//	var out map[string]any
//	err := toX.Call(ctx, "echo", map[string]any{"v": "hi"}, &out)
//
// # Transports
//
//   - mem.go: Bus, an in-process fabric; "mem://name" selects a shared bus
//   - hub.go: Hub, a gRPC relay for endpoints in different processes
//   - dial_grpc.go: HubTransport, "grpc://host:port"
//
// Sends carry an origin constraint. "*" reaches any endpoint; any other
// value only reaches an endpoint that attached with the same origin.
//
// # Failure model
//
// Callers only see failures through the call result: a *RemoteError, or an
// error wrapping ErrTimeout or ErrClientDestroyed. Malformed or unroutable
// inbound messages are logged at debug level and dropped. Requests for an
// operation nobody handles get no response at all; the caller's timeout
// decides.
package postman
