// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"context"
	"errors"
	"io"
	"net"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Metadata keys sent when attaching to a Hub
const (
	mdEndpoint = "postman-endpoint"
	mdOrigin   = "postman-origin"
)

// Frame fields
const (
	fieldTarget   = "target"
	fieldOrigin   = "origin"
	fieldSender   = "sender"
	fieldText     = "text"
	fieldAttached = "attached"
)

const hubAttachMethod = "/postman.Hub/Attach"

// HubService is the server side of the postman.Hub gRPC service.
type HubService interface {
	Attach(stream grpc.ServerStream) error
}

var hubServiceDesc = grpc.ServiceDesc{
	ServiceName: "postman.Hub",
	HandlerType: (*HubService)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Attach",
			Handler:       hubAttachHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "postman/hub",
}

func hubAttachHandler(srv any, stream grpc.ServerStream) error {
	return srv.(HubService).Attach(stream)
}

// Hub relays text messages between endpoints attached over gRPC. Each
// endpoint may be attached once; messages for unknown endpoints or with a
// non-matching origin are dropped.
type Hub struct {
	listener net.Listener
	server   *grpc.Server
	log      *zap.Logger
	closed   atomic.Bool

	mu    sync.RWMutex
	peers map[Endpoint]*hubPeer
}

type hubPeer struct {
	session  string
	endpoint Endpoint
	origin   string

	sendMu sync.Mutex
	stream grpc.ServerStream
}

// HubOption configures a Hub
type HubOption func(*hubOptions)

type hubOptions struct {
	logger     *zap.Logger
	serverOpts []grpc.ServerOption
}

// WithHubLogger sets the hub logger; zap.L() is used otherwise
func WithHubLogger(l *zap.Logger) HubOption {
	return func(o *hubOptions) { o.logger = l }
}

// WithServerOptions passes options to the underlying grpc.Server
func WithServerOptions(opts ...grpc.ServerOption) HubOption {
	return func(o *hubOptions) { o.serverOpts = append(o.serverOpts, opts...) }
}

// NewHub creates a hub serving on listener
func NewHub(listener net.Listener, opts ...HubOption) *Hub {
	o := &hubOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.L()
	}
	h := &Hub{
		listener: listener,
		server:   grpc.NewServer(o.serverOpts...),
		log:      o.logger.Named("hub"),
		peers:    make(map[Endpoint]*hubPeer),
	}
	h.server.RegisterService(&hubServiceDesc, h)
	return h
}

// Serve accepts attachments until ctx is done or the hub is closed
func (h *Hub) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { h.Close() })
	defer stop()

	h.log.Info("hub serving", zap.String("addr", h.listener.Addr().String()))
	err := h.server.Serve(h.listener)
	if h.closed.Load() || errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Close stops the hub and drops every attached endpoint
func (h *Hub) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	h.server.Stop()
	return nil
}

// Addr returns the listener address
func (h *Hub) Addr() net.Addr {
	return h.listener.Addr()
}

// Endpoints returns the attached endpoints in sorted order
func (h *Hub) Endpoints() []Endpoint {
	h.mu.RLock()
	out := make([]Endpoint, 0, len(h.peers))
	for ep := range h.peers {
		out = append(out, ep)
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Attach serves one attached endpoint for the lifetime of its stream.
func (h *Hub) Attach(stream grpc.ServerStream) error {
	md, _ := metadata.FromIncomingContext(stream.Context())
	peer := &hubPeer{
		session:  uuid.NewString(),
		endpoint: Endpoint(firstValue(md.Get(mdEndpoint))),
		origin:   firstValue(md.Get(mdOrigin)),
		stream:   stream,
	}
	if peer.endpoint == "" {
		return status.Error(codes.InvalidArgument, "missing "+mdEndpoint)
	}
	if err := h.add(peer); err != nil {
		return err
	}
	defer h.remove(peer)

	log := h.log.With(zap.String("session", peer.session), zap.String("endpoint", string(peer.endpoint)))
	ack, err := structpb.NewStruct(map[string]any{fieldAttached: peer.session})
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	if err := peer.send(ack); err != nil {
		return err
	}
	log.Info("endpoint attached", zap.String("origin", peer.origin))

	for {
		frame := new(structpb.Struct)
		if err := stream.RecvMsg(frame); err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				log.Info("endpoint detached")
				return nil
			}
			log.Warn("endpoint stream failed", zap.Error(err))
			return err
		}
		h.route(peer, frame, log)
	}
}

func (h *Hub) add(peer *hubPeer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		return status.Error(codes.Unavailable, "hub closed")
	}
	if _, ok := h.peers[peer.endpoint]; ok {
		return status.Errorf(codes.AlreadyExists, "endpoint %q already attached", peer.endpoint)
	}
	h.peers[peer.endpoint] = peer
	return nil
}

func (h *Hub) remove(peer *hubPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.peers[peer.endpoint] == peer {
		delete(h.peers, peer.endpoint)
	}
}

func (h *Hub) route(from *hubPeer, frame *structpb.Struct, log *zap.Logger) {
	fields := frame.GetFields()
	target := Endpoint(fields[fieldTarget].GetStringValue())
	origin := fields[fieldOrigin].GetStringValue()

	h.mu.RLock()
	dst := h.peers[target]
	h.mu.RUnlock()
	if dst == nil || !originAdmits(origin, dst.origin) {
		log.Debug("frame dropped", zap.String("target", string(target)), zap.String("origin", origin))
		return
	}

	out, err := structpb.NewStruct(map[string]any{
		fieldSender: string(from.endpoint),
		fieldText:   fields[fieldText].GetStringValue(),
	})
	if err != nil {
		log.Warn("frame rejected", zap.Error(err))
		return
	}
	if err := dst.send(out); err != nil {
		log.Debug("frame not delivered", zap.String("target", string(target)), zap.Error(err))
	}
}

func (p *hubPeer) send(frame *structpb.Struct) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	return p.stream.SendMsg(frame)
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
