// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Open attaches endpoint to the transport named by uri, for example
// "mem://default" or "grpc://127.0.0.1:7700".
func Open(ctx context.Context, uri string, endpoint Endpoint, origin string) (Transport, error) {
	if strings.TrimSpace(string(endpoint)) == "" {
		return nil, fmt.Errorf("open %s: empty endpoint", uri)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse transport uri: %w", err)
	}
	open, ok := lookupTransport(u.Scheme)
	if !ok {
		return nil, fmt.Errorf("unknown transport: %s", u.Scheme)
	}
	return open(ctx, u.Host, endpoint, origin)
}

func openMem(_ context.Context, addr string, endpoint Endpoint, origin string) (Transport, error) {
	return SharedBus(addr).Attach(endpoint, origin)
}

func openGRPC(ctx context.Context, addr string, endpoint Endpoint, origin string) (Transport, error) {
	return DialHub(ctx, addr, endpoint, origin)
}
