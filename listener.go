// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Listen is the registry's single subscription to its transport. Each
// inbound message is parsed, routed to the client bound to its sender, and
// dispatched by kind. Malformed and unroutable messages are discarded.
//
// Listen blocks until ctx is done or the transport is closed. Only one
// Listen may run per registry; a concurrent call returns ErrListenerRunning.
func (r *Registry) Listen(ctx context.Context) error {
	if !r.listening.CompareAndSwap(false, true) {
		return ErrListenerRunning
	}
	defer r.listening.Store(false)

	for {
		msg, err := r.transport.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrTransportClosed) {
				return nil
			}
			return fmt.Errorf("listen: %w", err)
		}
		r.dispatch(msg)
	}
}

func (r *Registry) dispatch(msg Message) {
	env, err := ParseEnvelope(r.codec, msg.Text)
	if err != nil {
		r.log.Debug("discarding message", zap.String("sender", string(msg.Sender)), zap.Error(err))
		return
	}
	c, ok := r.ClientByEndpoint(msg.Sender)
	if !ok {
		r.log.Debug("discarding message",
			zap.String("sender", string(msg.Sender)),
			zap.String("id", env.ID),
			zap.Error(ErrUnroutableMessage))
		return
	}
	switch env.Kind {
	case KindRequest:
		c.handleRequest(env)
	case KindResponse:
		c.handleResponse(env)
	}
}
