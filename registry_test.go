// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T, opts ...RegistryOption) *Registry {
	t.Helper()
	mt, err := NewBus().Attach("self", "*")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	reg := NewRegistry(mt, append([]RegistryOption{WithLogger(zap.NewNop())}, opts...)...)
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestCreateClientAssignsUniqueIdentity(t *testing.T) {
	reg := newTestRegistry(t)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		c, err := reg.CreateClient(Endpoint(fmt.Sprintf("ep-%d", i)), "*")
		if err != nil {
			t.Fatalf("CreateClient %d: %v", i, err)
		}
		if len(c.ID()) != DefaultIDLength {
			t.Errorf("id %q has length %d", c.ID(), len(c.ID()))
		}
		if seen[c.ID()] {
			t.Fatalf("identity %q reused", c.ID())
		}
		seen[c.ID()] = true
	}
	if got := len(reg.Clients()); got != 200 {
		t.Errorf("Clients() = %d, want 200", got)
	}
}

func TestCreateClientRejectsDuplicateEndpoint(t *testing.T) {
	reg := newTestRegistry(t)
	first, err := reg.CreateClient("x", "*")
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	if _, err := reg.CreateClient("x", "*"); !errors.Is(err, ErrEndpointBound) {
		t.Fatalf("err = %v, want ErrEndpointBound", err)
	}

	first.Destroy()
	second, err := reg.CreateClient("x", "*")
	if err != nil {
		t.Fatalf("CreateClient after destroy: %v", err)
	}
	if got, _ := reg.ClientByEndpoint("x"); got != second {
		t.Error("lookup does not return the new client")
	}
}

func TestCreateClientValidation(t *testing.T) {
	reg := newTestRegistry(t)
	if _, err := reg.CreateClient("", "*"); err == nil {
		t.Error("expected error for empty endpoint")
	}
	if _, err := reg.CreateClient("x", "*", WithTimeout(-time.Second)); err == nil {
		t.Error("expected error for negative timeout")
	}
}

func TestClientByEndpoint(t *testing.T) {
	reg := newTestRegistry(t)
	c, err := reg.CreateClient("x", "https://x.example")
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	got, ok := reg.ClientByEndpoint("x")
	if !ok || got != c {
		t.Fatalf("ClientByEndpoint(x) = %v, %v", got, ok)
	}
	if got, ok := reg.ClientByEndpoint("nowhere"); ok || got != nil {
		t.Errorf("ClientByEndpoint(nowhere) = %v, %v", got, ok)
	}
}

func TestClientTimeouts(t *testing.T) {
	tests := []struct {
		name    string
		regOpts []RegistryOption
		opts    []ClientOption
		want    time.Duration
	}{
		{"default", nil, nil, DefaultTimeout},
		{"registry default", []RegistryOption{WithDefaultTimeout(time.Second)}, nil, time.Second},
		{"client override", []RegistryOption{WithDefaultTimeout(time.Second)}, []ClientOption{WithTimeout(2 * time.Second)}, 2 * time.Second},
		{"disabled", nil, []ClientOption{WithTimeout(0)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newTestRegistry(t, tt.regOpts...)
			c, err := reg.CreateClient("x", "*", tt.opts...)
			if err != nil {
				t.Fatalf("CreateClient: %v", err)
			}
			if c.Timeout() != tt.want {
				t.Errorf("timeout = %s, want %s", c.Timeout(), tt.want)
			}
		})
	}
}

func TestRegistryClose(t *testing.T) {
	reg := newTestRegistry(t)
	c, err := reg.CreateClient("x", "*", WithTimeout(0))
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	cb, ch := collect()
	if err := c.Emit(t.Context(), "a", nil, cb); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	if err := reg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if r := waitResult(t, ch); !errors.Is(r.err, ErrClientDestroyed) {
		t.Errorf("err = %v, want ErrClientDestroyed", r.err)
	}
	if len(reg.Clients()) != 0 {
		t.Error("clients left after Close")
	}
	if _, err := reg.CreateClient("y", "*"); !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("err = %v, want ErrRegistryClosed", err)
	}
}
