// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrTimeout           = errors.New("postman: call timed out")
	ErrClientDestroyed   = errors.New("postman: client destroyed")
	ErrMalformedEnvelope = errors.New("postman: malformed envelope")
	ErrUnroutableMessage = errors.New("postman: no client bound to sender")
	ErrEndpointBound     = errors.New("postman: endpoint already bound to a client")
	ErrListenerRunning   = errors.New("postman: listener already running")
	ErrRegistryClosed    = errors.New("postman: registry closed")
	ErrTransportClosed   = errors.New("postman: transport closed")
	ErrHandlerPanic      = errors.New("postman: handler panicked")
)

// RemoteError carries the error of a response envelope back to the caller.
// Data holds the error value as the peer sent it.
type RemoteError struct {
	Name    string
	Message string
	Data    any
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("postman: remote %s: %s", e.Name, e.Message)
}

// errorText renders err for the envelope error field. It never returns an
// empty string so a failed response cannot be mistaken for a success.
func errorText(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) {
		if remote.Message != "" {
			return remote.Message
		}
	} else if msg := err.Error(); msg != "" {
		return msg
	}
	return "unknown error"
}

// remoteMessage renders a peer's error value. Structured errors use their
// "message" field when they have one.
func remoteMessage(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case map[string]any:
		if msg, ok := v["message"].(string); ok && msg != "" {
			return msg
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
