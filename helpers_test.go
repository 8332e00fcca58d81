// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

const (
	originW = "https://w.example"
	originX = "https://x.example"
)

// recordingTransport remembers every text it sends.
type recordingTransport struct {
	Transport

	mu   sync.Mutex
	sent []string
}

func (r *recordingTransport) Send(ctx context.Context, target Endpoint, origin string, text string) error {
	r.mu.Lock()
	r.sent = append(r.sent, text)
	r.mu.Unlock()
	return r.Transport.Send(ctx, target, origin, text)
}

func (r *recordingTransport) Sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

// startRegistry attaches endpoint to bus and runs a listener until the test ends.
func startRegistry(t *testing.T, bus *Bus, endpoint Endpoint, origin string, opts ...RegistryOption) (*Registry, *recordingTransport) {
	t.Helper()
	mt, err := bus.Attach(endpoint, origin)
	if err != nil {
		t.Fatalf("attach %s: %v", endpoint, err)
	}
	rt := &recordingTransport{Transport: mt}
	opts = append([]RegistryOption{WithLogger(zap.NewNop())}, opts...)
	reg := NewRegistry(rt, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		reg.Listen(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		reg.Close()
	})
	return reg, rt
}

type pair struct {
	bus  *Bus
	regW *Registry
	regX *Registry
	// toX lives in w and talks to x; toW lives in x and talks to w.
	toX *Client
	toW *Client
	rtW *recordingTransport
	rtX *recordingTransport
}

func newPair(t *testing.T, opts ...ClientOption) *pair {
	t.Helper()
	p := &pair{bus: NewBus()}
	p.regW, p.rtW = startRegistry(t, p.bus, "w", originW)
	p.regX, p.rtX = startRegistry(t, p.bus, "x", originX)

	var err error
	if p.toX, err = p.regW.CreateClient("x", originX, opts...); err != nil {
		t.Fatalf("CreateClient(x): %v", err)
	}
	if p.toW, err = p.regX.CreateClient("w", originW, opts...); err != nil {
		t.Fatalf("CreateClient(w): %v", err)
	}
	return p
}

type result struct {
	payload any
	err     error
}

// collect returns a callback that forwards every invocation to the channel.
func collect() (Callback, chan result) {
	ch := make(chan result, 8)
	return func(payload any, err error) {
		ch <- result{payload: payload, err: err}
	}, ch
}

func waitResult(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked")
		return result{}
	}
}

func expectNoResult(t *testing.T, ch <-chan result, wait time.Duration) {
	t.Helper()
	select {
	case r := <-ch:
		t.Fatalf("unexpected callback invocation: %+v", r)
	case <-time.After(wait):
	}
}

// crossLoad has toX and toW each emit n echo calls at the other side at the
// same time and waits for every one of them to resolve.
func crossLoad(t *testing.T, toX, toW *Client, n int) {
	t.Helper()
	echo := func(payload any, respond Respond) { respond(nil, payload) }
	toX.On("echo", echo)
	toW.On("echo", echo)

	ctx := context.Background()
	calls := make([]*Call, 0, 2*n)
	for i := range n {
		for _, c := range []*Client{toX, toW} {
			call, err := c.Go(ctx, "echo", float64(i), WithCallTimeout(0))
			if err != nil {
				t.Fatalf("Go #%d: %v", i, err)
			}
			calls = append(calls, call)
		}
	}

	deadline := time.After(10 * time.Second)
	for i, call := range calls {
		select {
		case <-call.Done():
		case <-deadline:
			t.Fatalf("only %d of %d calls resolved", i, len(calls))
		}
		if call.Err != nil {
			t.Fatalf("call %s: %v", call.ID, call.Err)
		}
		if want := float64(i / 2); call.Payload != want {
			t.Fatalf("call %d payload = %v, want %v", i, call.Payload, want)
		}
	}
}
