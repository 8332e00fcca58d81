// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"context"
	"fmt"
	"sync"
)

// Bus is an in-process message fabric. Each attached endpoint gets a
// MemTransport; sends are routed by target endpoint and filtered by origin.
type Bus struct {
	mu    sync.RWMutex
	ports map[Endpoint]*MemTransport
}

// NewBus returns an empty bus. Delivery never blocks the sender: each
// endpoint queues inbound messages until it receives them.
func NewBus() *Bus {
	return &Bus{ports: make(map[Endpoint]*MemTransport)}
}

var (
	sharedBusesMu sync.Mutex
	sharedBuses   = make(map[string]*Bus)
)

// SharedBus returns the process-wide bus registered under name, creating it
// on first use. It backs "mem://name" transport URIs.
func SharedBus(name string) *Bus {
	if name == "" {
		name = "default"
	}
	sharedBusesMu.Lock()
	defer sharedBusesMu.Unlock()
	b, ok := sharedBuses[name]
	if !ok {
		b = NewBus()
		sharedBuses[name] = b
	}
	return b
}

// Attach connects endpoint to the bus. origin is matched against the
// origin constraint of messages sent to endpoint.
func (b *Bus) Attach(endpoint Endpoint, origin string) (*MemTransport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.ports[endpoint]; ok {
		return nil, fmt.Errorf("mem: endpoint %q already attached", endpoint)
	}
	t := &MemTransport{
		bus:      b,
		endpoint: endpoint,
		origin:   origin,
		inbox:    newInbox(),
	}
	b.ports[endpoint] = t
	return t, nil
}

func (b *Bus) port(endpoint Endpoint) *MemTransport {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ports[endpoint]
}

func (b *Bus) detach(t *MemTransport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ports[t.endpoint] == t {
		delete(b.ports, t.endpoint)
	}
}

// MemTransport is one endpoint's view of a Bus.
type MemTransport struct {
	bus       *Bus
	endpoint  Endpoint
	origin    string
	inbox     *inbox
	closeOnce sync.Once
}

// Endpoint returns the endpoint this transport is attached as.
func (t *MemTransport) Endpoint() Endpoint { return t.endpoint }

func (t *MemTransport) Send(ctx context.Context, target Endpoint, origin string, text string) error {
	if t.isClosed() {
		return ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := t.bus.port(target)
	if dst == nil || !originAdmits(origin, dst.origin) {
		return nil
	}
	dst.inbox.put(Message{Text: text, Sender: t.endpoint})
	return nil
}

func (t *MemTransport) Recv(ctx context.Context) (Message, error) {
	if t.isClosed() {
		return Message{}, ErrTransportClosed
	}
	return t.inbox.get(ctx, nil)
}

func (t *MemTransport) Close() error {
	t.closeOnce.Do(func() {
		t.inbox.close()
		t.bus.detach(t)
	})
	return nil
}

func (t *MemTransport) isClosed() bool {
	select {
	case <-t.inbox.closed:
		return true
	default:
		return false
	}
}
