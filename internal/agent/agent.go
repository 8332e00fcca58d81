// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package agent runs one endpoint: it attaches to a transport, binds a
// client per configured peer, serves the built-in operations and exposes
// the JSON-RPC bridge.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/postman"
	"github.com/luxfi/postman/internal/config"
)

// Operations every agent serves
const (
	OpPing = "ping"
	OpEcho = "echo"
)

// errDetached stops Run when the transport closes underneath the listener.
var errDetached = errors.New("agent: transport detached")

// Pong is the response to OpPing.
type Pong struct {
	Endpoint string `json:"endpoint"`
	Client   string `json:"client"`
	Time     string `json:"time"`
}

// Agent is one attached endpoint: a registry with a client per configured
// peer, the built-in ping and echo handlers, and the JSON-RPC bridge.
type Agent struct {
	cfg      config.AgentConfig
	log      *zap.Logger
	registry *postman.Registry
	bridge   http.Handler
}

// New attaches cfg.Endpoint to cfg.Transport and creates the peer clients.
func New(ctx context.Context, cfg config.AgentConfig, log *zap.Logger) (*Agent, error) {
	if log == nil {
		log = zap.L()
	}
	codec, err := postman.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	t, err := postman.Open(ctx, cfg.Transport, postman.Endpoint(cfg.Endpoint), cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", cfg.Endpoint, err)
	}
	reg := postman.NewRegistry(t,
		postman.WithCodec(codec),
		postman.WithLogger(log),
		postman.WithDefaultTimeout(cfg.Timeout()),
	)

	a := &Agent{
		cfg:      cfg,
		log:      log.Named("agent").With(zap.String("endpoint", cfg.Endpoint)),
		registry: reg,
	}
	for _, p := range cfg.Peers {
		c, err := reg.CreateClient(postman.Endpoint(p.Endpoint), p.Origin,
			postman.WithTimeout(p.Timeout(cfg.Timeout())))
		if err != nil {
			reg.Close()
			return nil, fmt.Errorf("peer %s: %w", p.Endpoint, err)
		}
		a.serveBuiltins(c)
	}

	a.bridge, err = postman.NewBridgeHandler(reg)
	if err != nil {
		reg.Close()
		return nil, err
	}
	return a, nil
}

// Registry returns the agent's client registry.
func (a *Agent) Registry() *postman.Registry { return a.registry }

// Bridge returns the JSON-RPC bridge handler.
func (a *Agent) Bridge() http.Handler { return a.bridge }

// Run listens on the transport and, when cfg.BridgeAddr is set, serves the
// bridge until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	var lis net.Listener
	if a.cfg.BridgeAddr != "" {
		var err error
		if lis, err = net.Listen("tcp", a.cfg.BridgeAddr); err != nil {
			return fmt.Errorf("bridge listen: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.registry.Listen(ctx); err != nil {
			return err
		}
		return errDetached
	})
	if lis != nil {
		srv := &http.Server{Handler: a.bridge, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			a.log.Info("bridge serving", zap.String("addr", lis.Addr().String()))
			if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, errDetached) {
		return nil
	}
	return err
}

// Close destroys the clients and detaches from the transport.
func (a *Agent) Close() error {
	return a.registry.Close()
}

func (a *Agent) serveBuiltins(c *postman.Client) {
	c.On(OpEcho, func(payload any, respond postman.Respond) {
		respond(nil, payload)
	})
	postman.Handle(c, OpPing, func(_ context.Context, _ any) (Pong, error) {
		return Pong{
			Endpoint: a.cfg.Endpoint,
			Client:   c.ID(),
			Time:     time.Now().UTC().Format(time.RFC3339Nano),
		}, nil
	})
	a.log.Info("peer bound",
		zap.String("peer", string(c.Endpoint())),
		zap.String("origin", c.Origin()),
		zap.Duration("timeout", c.Timeout()))
}
