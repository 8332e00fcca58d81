// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout applies to clients created without WithTimeout on a
// registry created without WithDefaultTimeout.
const DefaultTimeout = 10 * time.Second

// maxIdentityAttempts bounds identity regeneration on collision.
const maxIdentityAttempts = 16

// Registry owns the clients that share one Transport. It is the only place
// inbound messages are routed from: Listen resolves each sender endpoint to
// the client bound to it.
type Registry struct {
	transport Transport
	codec     Codec
	log       *zap.Logger
	timeout   time.Duration

	mu         sync.RWMutex
	clients    map[string]*Client
	byEndpoint map[Endpoint]*Client
	closed     bool

	listening atomic.Bool
}

// NewRegistry creates a registry sending through t.
func NewRegistry(t Transport, opts ...RegistryOption) *Registry {
	o := &registryOptions{
		codec:   defaultCodec,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.L()
	}
	return &Registry{
		transport:  t,
		codec:      o.codec,
		log:        o.logger.Named("postman"),
		timeout:    o.timeout,
		clients:    make(map[string]*Client),
		byEndpoint: make(map[Endpoint]*Client),
	}
}

// Codec returns the codec envelopes are encoded with.
func (r *Registry) Codec() Codec { return r.codec }

// CreateClient binds a new client to endpoint. Sends are scoped by origin.
// At most one live client may be bound to an endpoint.
func (r *Registry) CreateClient(endpoint Endpoint, origin string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(string(endpoint)) == "" {
		return nil, fmt.Errorf("create client: empty endpoint")
	}
	o := &clientOptions{timeout: r.timeout}
	for _, opt := range opts {
		opt(o)
	}
	if o.timeout < 0 {
		return nil, fmt.Errorf("create client: negative timeout %s", o.timeout)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		endpoint: endpoint,
		origin:   origin,
		timeout:  o.timeout,
		reg:      r,
		handlers: make(map[string]Handler),
		pending:  make(map[string]*Call),
		ctx:      ctx,
		cancel:   cancel,
	}
	if err := r.register(c); err != nil {
		cancel()
		return nil, err
	}
	c.log.Debug("client created", zap.String("origin", origin), zap.Duration("timeout", c.timeout))
	return c, nil
}

// ClientByEndpoint returns the live client bound to endpoint.
func (r *Registry) ClientByEndpoint(endpoint Endpoint) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byEndpoint[endpoint]
	return c, ok
}

// Clients returns the live clients ordered by endpoint.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].endpoint < out[j].endpoint
	})
	return out
}

// Close destroys every client and closes the transport.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	for _, c := range r.Clients() {
		c.Destroy()
	}
	return r.transport.Close()
}

func (r *Registry) register(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	if _, ok := r.byEndpoint[c.endpoint]; ok {
		return fmt.Errorf("%w: %s", ErrEndpointBound, c.endpoint)
	}
	for range maxIdentityAttempts {
		id := NewID()
		if _, taken := r.clients[id]; !taken {
			c.id = id
			c.log = r.log.With(zap.String("client", id), zap.String("endpoint", string(c.endpoint)))
			r.clients[id] = c
			r.byEndpoint[c.endpoint] = c
			return nil
		}
	}
	return fmt.Errorf("create client: no free identity after %d attempts", maxIdentityAttempts)
}

func (r *Registry) unregister(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clients[c.id] == c {
		delete(r.clients, c.id)
	}
	if r.byEndpoint[c.endpoint] == c {
		delete(r.byEndpoint, c.endpoint)
	}
}
