// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/rpc/v2/json2"
	"go.uber.org/zap"
)

// BridgeClient calls a bridge served by NewBridgeHandler. Every call is sent
// exactly once: an emitted request reaches the remote handler, so a failed
// HTTP exchange is reported rather than replayed.
type BridgeClient struct {
	uri     string
	client  *http.Client
	headers http.Header
	log     *zap.Logger
}

// BridgeClientOption configures a BridgeClient
type BridgeClientOption func(*BridgeClient)

// WithBridgeHeader adds an HTTP header to every call
func WithBridgeHeader(key, value string) BridgeClientOption {
	return func(c *BridgeClient) { c.headers.Add(key, value) }
}

// WithBridgeHTTPClient sends calls through hc
func WithBridgeHTTPClient(hc *http.Client) BridgeClientOption {
	return func(c *BridgeClient) { c.client = hc }
}

// WithBridgeLogger sets the logger; zap.L() is used otherwise
func WithBridgeLogger(l *zap.Logger) BridgeClientOption {
	return func(c *BridgeClient) { c.log = l }
}

// NewBridgeClient returns a client for the bridge at rawURL, for example
// "http://127.0.0.1:7780".
func NewBridgeClient(rawURL string, opts ...BridgeClientOption) (*BridgeClient, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse bridge url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("bridge url %q: scheme must be http or https", rawURL)
	}
	c := &BridgeClient{
		uri:     u.String(),
		client:  &http.Client{},
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = zap.L()
	}
	c.log = c.log.Named("bridge")
	return c, nil
}

// Emit sends name to endpoint through the bridge and decodes the response
// payload into reply. A zero timeout uses the bridge client's own timeout.
// Remote failures come back as *json2.Error.
func (c *BridgeClient) Emit(ctx context.Context, endpoint Endpoint, name string, payload, reply any, timeout time.Duration) error {
	args := EmitArgs{
		Endpoint:  string(endpoint),
		Name:      name,
		Payload:   payload,
		TimeoutMs: timeout.Milliseconds(),
	}
	var out EmitReply
	if err := c.call(ctx, BridgeEmit, args, &out); err != nil {
		return err
	}
	return convert(JSONCodec{}, out.Payload, reply)
}

// Notify sends name to endpoint without waiting for a response.
func (c *BridgeClient) Notify(ctx context.Context, endpoint Endpoint, name string, payload any) error {
	var out NotifyReply
	if err := c.call(ctx, BridgeNotify, NotifyArgs{Endpoint: string(endpoint), Name: name, Payload: payload}, &out); err != nil {
		return err
	}
	if !out.Sent {
		return fmt.Errorf("%s: not sent", BridgeNotify)
	}
	return nil
}

// Clients lists the clients of the bridged registry.
func (c *BridgeClient) Clients(ctx context.Context) ([]ClientInfo, error) {
	var out ClientsReply
	if err := c.call(ctx, BridgeClients, ClientsArgs{}, &out); err != nil {
		return nil, err
	}
	return out.Clients, nil
}

func (c *BridgeClient) call(ctx context.Context, method string, params, reply any) error {
	body, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uri, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	req.Header = c.headers.Clone()
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Debug("call failed", zap.String("method", method), zap.Error(err))
		return fmt.Errorf("%s: %w", method, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	c.log.Debug("call answered",
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	err = json2.DecodeClientResponse(resp.Body, reply)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var rpcErr *json2.Error
		if errors.As(err, &rpcErr) {
			return fmt.Errorf("%s: %w", method, rpcErr)
		}
		return fmt.Errorf("%s: http status %d", method, resp.StatusCode)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}
