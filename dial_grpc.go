// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

func init() {
	registerTransport(TransportGRPC, openGRPC)
}

// HubTransport is a Transport attached to a Hub as one endpoint.
type HubTransport struct {
	conn     *grpc.ClientConn
	stream   grpc.ClientStream
	cancel   context.CancelFunc
	endpoint Endpoint
	session  string

	sendMu   sync.Mutex
	inbox    *inbox
	readDone chan struct{}
	readErr  error
	closed   atomic.Bool
}

// DialHub attaches endpoint to the hub at addr. It returns once the hub has
// accepted the attachment. Without opts the connection is insecure.
func DialHub(ctx context.Context, addr string, endpoint Endpoint, origin string, opts ...grpc.DialOption) (*HubTransport, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("hub dial: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	streamCtx = metadata.AppendToOutgoingContext(streamCtx, mdEndpoint, string(endpoint), mdOrigin, origin)
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	stream, err := conn.NewStream(streamCtx, &hubServiceDesc.Streams[0], hubAttachMethod)
	if err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("hub attach: %w", err)
	}
	ack := new(structpb.Struct)
	if err := stream.RecvMsg(ack); err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("hub attach: %w", err)
	}

	t := &HubTransport{
		conn:     conn,
		stream:   stream,
		cancel:   cancel,
		endpoint: endpoint,
		session:  ack.GetFields()[fieldAttached].GetStringValue(),
		inbox:    newInbox(),
		readDone: make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

// Endpoint returns the endpoint this transport is attached as.
func (t *HubTransport) Endpoint() Endpoint { return t.endpoint }

// Session returns the id the hub assigned to this attachment.
func (t *HubTransport) Session() string { return t.session }

func (t *HubTransport) Send(ctx context.Context, target Endpoint, origin string, text string) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := structpb.NewStruct(map[string]any{
		fieldTarget: string(target),
		fieldOrigin: origin,
		fieldText:   text,
	})
	if err != nil {
		return fmt.Errorf("hub frame: %w", err)
	}

	t.sendMu.Lock()
	err = t.stream.SendMsg(frame)
	t.sendMu.Unlock()
	if err != nil {
		return fmt.Errorf("hub send: %w", err)
	}
	return nil
}

func (t *HubTransport) Recv(ctx context.Context) (Message, error) {
	msg, err := t.inbox.get(ctx, t.readDone)
	if !errors.Is(err, errInboxDone) {
		return msg, err
	}
	if t.closed.Load() {
		return Message{}, ErrTransportClosed
	}
	return Message{}, fmt.Errorf("%w: %v", ErrTransportClosed, t.readErr)
}

// readLoop queues every frame the hub relays. It never waits on the
// receiver so the hub stream keeps draining whatever the listener does.
func (t *HubTransport) readLoop() {
	defer close(t.readDone)
	for {
		frame := new(structpb.Struct)
		if err := t.stream.RecvMsg(frame); err != nil {
			t.readErr = err
			return
		}
		fields := frame.GetFields()
		t.inbox.put(Message{
			Text:   fields[fieldText].GetStringValue(),
			Sender: Endpoint(fields[fieldSender].GetStringValue()),
		})
	}
}

// Close detaches from the hub
func (t *HubTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	defer t.inbox.close()
	t.sendMu.Lock()
	_ = t.stream.CloseSend()
	t.sendMu.Unlock()
	t.cancel()
	return t.conn.Close()
}
