// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"context"
	"io"
	"sort"
	"sync"
)

// Endpoint names a remote execution context. Transports address sends to
// it and attach it to every inbound message as the sender.
type Endpoint string

// Message is one inbound transport message.
type Message struct {
	Text   string
	Sender Endpoint
}

// Transport is the one-way text channel the core is built on.
type Transport interface {
	io.Closer

	// Send delivers text to target if origin admits it. Origin "*" or ""
	// matches any target; undeliverable messages are dropped silently.
	// Send must not wait for the target to receive.
	Send(ctx context.Context, target Endpoint, origin string, text string) error

	// Recv blocks for the next message addressed to this transport. It
	// returns ErrTransportClosed once the transport is closed.
	Recv(ctx context.Context) (Message, error)
}

// Transport schemes understood by Open
const (
	TransportMem  = "mem"  // In-process Bus, named by URI host
	TransportGRPC = "grpc" // Hub relay over gRPC
)

// openFunc attaches endpoint with origin to the transport at addr.
type openFunc func(ctx context.Context, addr string, endpoint Endpoint, origin string) (Transport, error)

var (
	transportsMu sync.RWMutex
	transports   = map[string]openFunc{
		TransportMem: openMem,
	}
)

// registerTransport registers a new transport scheme
func registerTransport(scheme string, open openFunc) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	transports[scheme] = open
}

func lookupTransport(scheme string) (openFunc, bool) {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	open, ok := transports[scheme]
	return open, ok
}

// AvailableTransports returns the registered schemes in sorted order
func AvailableTransports() []string {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	result := make([]string, 0, len(transports))
	for name := range transports {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// HasTransport checks if a transport scheme is available
func HasTransport(scheme string) bool {
	_, ok := lookupTransport(scheme)
	return ok
}

// originAdmits reports whether a send scoped by want may reach a target
// that attached with have.
func originAdmits(want, have string) bool {
	return want == "" || want == "*" || want == have
}
