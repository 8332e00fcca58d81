// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestListenDiscardsNoise(t *testing.T) {
	bus := NewBus()
	regW, _ := startRegistry(t, bus, "w", "*")
	toX, err := regW.CreateClient("x", "*")
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	got := make(chan any, 4)
	toX.On("note", func(payload any, respond Respond) { got <- payload })

	rawX, err := bus.Attach("x", "*")
	if err != nil {
		t.Fatalf("attach x: %v", err)
	}
	rawZ, err := bus.Attach("z", "*")
	if err != nil {
		t.Fatalf("attach z: %v", err)
	}

	ctx := context.Background()
	noise := []struct {
		from *MemTransport
		text string
	}{
		{rawX, "not json"},
		{rawX, `{"id":"abc123","name":"note"}`},
		{rawX, `{"id":"abc123","type":"push","name":"note"}`},
		{rawX, `{"type":"req","name":"note"}`},
		{rawX, `{"id":"abc123","type":"res","name":"note"}`},
		{rawZ, `{"id":"abc123","type":"req","name":"note","payload":"from z"}`},
	}
	for _, n := range noise {
		if err := n.from.Send(ctx, "w", "*", n.text); err != nil {
			t.Fatalf("send noise: %v", err)
		}
	}
	valid, err := NewRequest("note", "from x").Marshal(JSONCodec{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := rawX.Send(ctx, "w", "*", valid); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case v := <-got:
		if v != "from x" {
			t.Fatalf("handler saw %#v, want the valid request", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid request not dispatched after noise")
	}
	select {
	case v := <-got:
		t.Fatalf("unexpected dispatch of %#v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestListenSingleSubscription(t *testing.T) {
	mt, err := NewBus().Attach("w", "*")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	reg := NewRegistry(mt, WithLogger(zap.NewNop()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reg.Listen(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !reg.listening.Load() {
		if time.Now().After(deadline) {
			t.Fatal("listener did not start")
		}
		time.Sleep(time.Millisecond)
	}
	if err := reg.Listen(ctx); !errors.Is(err, ErrListenerRunning) {
		t.Errorf("second Listen = %v, want ErrListenerRunning", err)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Listen = %v, want context.Canceled", err)
	}
}

func TestListenStopsWhenTransportCloses(t *testing.T) {
	mt, err := NewBus().Attach("w", "*")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	reg := NewRegistry(mt, WithLogger(zap.NewNop()))
	done := make(chan error, 1)
	go func() { done <- reg.Listen(context.Background()) }()

	reg.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Listen = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after Close")
	}
}

func TestListenersUnderCrossLoad(t *testing.T) {
	p := newPair(t)
	crossLoad(t, p.toX, p.toW, 500)
	if p.toX.Pending() != 0 || p.toW.Pending() != 0 {
		t.Errorf("pending after load: %d, %d", p.toX.Pending(), p.toW.Pending())
	}
}
