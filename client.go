// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Callback receives the outcome of an emitted request. err is a
// *RemoteError when the remote handler failed, or wraps ErrTimeout,
// ErrClientDestroyed or the caller's context error.
type Callback func(payload any, err error)

// Respond answers the request a Handler was invoked for. Only the first
// call has an effect.
type Respond func(err error, data any)

// Handler serves one named operation. It may call respond before returning
// or later from another goroutine.
type Handler func(payload any, respond Respond)

// Client is bound to one remote endpoint. It emits requests to that
// endpoint, serves the requests the endpoint sends, and tracks the calls
// still waiting for a response.
//
// A handler that panics is recovered; unless it already responded, the
// caller receives an error response wrapping ErrHandlerPanic.
//
// Outcomes of a sent request reach the caller only through its Callback or
// Call. Failures detected before the request leaves the process, such as a
// transport Send error, are returned from Emit, Go, Call and Notify instead;
// the callback is then never invoked.
type Client struct {
	id       string
	endpoint Endpoint
	origin   string
	timeout  time.Duration
	reg      *Registry
	log      *zap.Logger

	mu        sync.Mutex
	handlers  map[string]Handler
	pending   map[string]*Call
	destroyed bool

	// ctx is cancelled by Destroy
	ctx    context.Context
	cancel context.CancelFunc
}

// ClientOption configures a client created by Registry.CreateClient
type ClientOption func(*clientOptions)

type clientOptions struct {
	timeout time.Duration
}

// WithTimeout sets the client's default call timeout. Zero disables it.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.timeout = d }
}

// CallOption configures a single call
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
}

// WithCallTimeout overrides the client's timeout for one call. Zero disables it.
func WithCallTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// RegistryOption configures a Registry
type RegistryOption func(*registryOptions)

type registryOptions struct {
	codec   Codec
	logger  *zap.Logger
	timeout time.Duration
}

// WithCodec sets the envelope codec
func WithCodec(c Codec) RegistryOption {
	return func(o *registryOptions) { o.codec = c }
}

// WithLogger sets the logger; zap.L() is used otherwise
func WithLogger(l *zap.Logger) RegistryOption {
	return func(o *registryOptions) { o.logger = l }
}

// WithDefaultTimeout sets the timeout given to clients created without WithTimeout
func WithDefaultTimeout(d time.Duration) RegistryOption {
	return func(o *registryOptions) { o.timeout = d }
}

func (c *Client) ID() string             { return c.id }
func (c *Client) Endpoint() Endpoint     { return c.endpoint }
func (c *Client) Origin() string         { return c.origin }
func (c *Client) Timeout() time.Duration { return c.timeout }

// Context is cancelled when the client is destroyed.
func (c *Client) Context() context.Context { return c.ctx }

// Pending returns the number of calls awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Notify sends a request without waiting for a response
func (c *Client) Notify(ctx context.Context, name string, payload any) error {
	if c.isDestroyed() {
		return ErrClientDestroyed
	}
	return c.send(ctx, NewRequest(name, payload))
}

// Emit sends a request. With a nil cb it is fire-and-forget like Notify;
// otherwise cb is invoked exactly once with the response, a timeout, or
// the client's destruction. When the send itself fails cb is not invoked
// and the error is returned.
func (c *Client) Emit(ctx context.Context, name string, payload any, cb Callback, opts ...CallOption) error {
	if cb == nil {
		return c.Notify(ctx, name, payload)
	}
	_, err := c.start(ctx, name, payload, cb, opts)
	return err
}

// Go sends a request and returns its pending Call.
func (c *Client) Go(ctx context.Context, name string, payload any, opts ...CallOption) (*Call, error) {
	return c.start(ctx, name, payload, nil, opts)
}

// Call sends a request and waits for its response, decoding the response
// payload into reply. Cancelling ctx abandons the call.
func (c *Client) Call(ctx context.Context, name string, args, reply any, opts ...CallOption) error {
	call, err := c.start(ctx, name, args, nil, opts)
	if err != nil {
		return err
	}
	select {
	case <-call.Done():
	case <-ctx.Done():
		c.resolve(call.ID, ctx.Err(), nil)
		<-call.Done()
	}
	if call.Err != nil {
		return call.Err
	}
	return convert(c.reg.codec, call.Payload, reply)
}

// On registers handler for name, replacing any earlier one.
func (c *Client) On(name string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if handler == nil {
		delete(c.handlers, name)
		return
	}
	c.handlers[name] = handler
}

// Off removes the handler for name.
func (c *Client) Off(name string) {
	c.On(name, nil)
}

// Destroy fails every pending call with ErrClientDestroyed and removes the
// client from its registry. The client cannot be used afterwards.
func (c *Client) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	pending := c.pending
	c.pending = make(map[string]*Call)
	c.mu.Unlock()

	c.reg.unregister(c)
	c.cancel()
	for _, call := range pending {
		call.stopTimer()
	}
	for _, call := range pending {
		call.finish(nil, ErrClientDestroyed)
	}
	c.log.Debug("client destroyed", zap.Int("failed_calls", len(pending)))
}

func (c *Client) isDestroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

func (c *Client) start(ctx context.Context, name string, payload any, cb Callback, opts []CallOption) (*Call, error) {
	o := &callOptions{timeout: c.timeout}
	for _, opt := range opts {
		opt(o)
	}

	env := NewRequest(name, payload)
	call := &Call{Name: name, cb: cb, done: make(chan struct{})}

	// entry and timer are installed together so a timeout can never find a
	// half-registered call
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil, ErrClientDestroyed
	}
	for c.pending[env.ID] != nil {
		env.ID = NewID()
	}
	call.ID = env.ID
	c.pending[call.ID] = call
	if o.timeout > 0 {
		id, d := call.ID, o.timeout
		call.timer = time.AfterFunc(d, func() {
			if c.resolve(id, fmt.Errorf("%w: %s after %s", ErrTimeout, name, d), nil) {
				c.log.Debug("call timed out", zap.String("name", name), zap.String("id", id))
			}
		})
	}
	c.mu.Unlock()

	if err := c.send(ctx, env); err != nil {
		c.drop(call.ID)
		return nil, err
	}
	return call, nil
}

// resolve completes the pending call id. It reports false when the call was
// already completed by another path.
func (c *Client) resolve(id string, err error, payload any) bool {
	c.mu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	call.stopTimer()
	call.finish(payload, err)
	return true
}

// drop forgets the pending call id without completing it.
func (c *Client) drop(id string) {
	c.mu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ok {
		call.stopTimer()
	}
}

func (c *Client) send(ctx context.Context, env Envelope) error {
	text, err := env.Marshal(c.reg.codec)
	if err != nil {
		return err
	}
	if err := c.reg.transport.Send(ctx, c.endpoint, c.origin, text); err != nil {
		return fmt.Errorf("send %s %s: %w", env.Kind, env.Name, err)
	}
	return nil
}

func (c *Client) handleRequest(env Envelope) {
	c.mu.Lock()
	handler, ok := c.handlers[env.Name]
	destroyed := c.destroyed
	c.mu.Unlock()
	if destroyed {
		return
	}
	if !ok {
		c.log.Debug("no handler for request", zap.String("name", env.Name), zap.String("id", env.ID))
		return
	}

	var sent atomic.Bool
	respond := func(err error, data any) {
		if !sent.CompareAndSwap(false, true) {
			c.log.Warn("duplicate response dropped", zap.String("name", env.Name), zap.String("id", env.ID))
			return
		}
		if sendErr := c.send(c.ctx, NewResponse(env, err, data)); sendErr != nil {
			c.log.Warn("response not sent", zap.String("name", env.Name), zap.Error(sendErr))
		}
	}

	defer func() {
		if p := recover(); p != nil {
			c.log.Error("handler panicked", zap.String("name", env.Name), zap.Any("panic", p))
			if !sent.Load() {
				respond(fmt.Errorf("%w: %v", ErrHandlerPanic, p), nil)
			}
		}
	}()
	handler(env.Payload, respond)
}

func (c *Client) handleResponse(env Envelope) {
	if !c.resolve(env.ID, env.remoteError(), env.Payload) {
		c.log.Debug("unmatched response dropped", zap.String("name", env.Name), zap.String("id", env.ID))
	}
}
