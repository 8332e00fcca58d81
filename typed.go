// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Handle registers a typed handler for name on c. The request payload is
// decoded into Req with the registry codec and fn runs on its own
// goroutine with a context that is cancelled when c is destroyed.
func Handle[Req, Resp any](c *Client, name string, fn func(ctx context.Context, req Req) (Resp, error)) {
	c.On(name, func(payload any, respond Respond) {
		var req Req
		if err := convert(c.reg.codec, payload, &req); err != nil {
			respond(fmt.Errorf("decode %s request: %w", name, err), nil)
			return
		}
		go func() {
			defer func() {
				if p := recover(); p != nil {
					c.log.Error("handler panicked", zap.String("name", name), zap.Any("panic", p))
					respond(fmt.Errorf("%w: %v", ErrHandlerPanic, p), nil)
				}
			}()
			resp, err := fn(c.ctx, req)
			if err != nil {
				respond(err, nil)
				return
			}
			respond(nil, resp)
		}()
	})
}
