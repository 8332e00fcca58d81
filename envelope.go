// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"fmt"
	"strings"
)

// Kind identifies envelope types
type Kind string

const (
	KindRequest  Kind = "req"
	KindResponse Kind = "res"
)

func (k Kind) valid() bool {
	return k == KindRequest || k == KindResponse
}

// Envelope is the unit exchanged over a Transport. Responses copy the ID
// and Name of the request they answer; correlation uses ID only.
//
// Error is any value a peer reports as a failure: responses built here
// carry a string, other peers may send structured data such as
// {"code":..,"message":..}. nil or an empty string means success.
type Envelope struct {
	ID      string `json:"id"`
	Kind    Kind   `json:"type"`
	Name    string `json:"name,omitempty"`
	Error   any    `json:"error,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// NewEnvelope returns e with a fresh ID when it has none.
func NewEnvelope(e Envelope) Envelope {
	if e.ID == "" {
		e.ID = NewID()
	}
	return e
}

// NewRequest builds a request envelope with a fresh ID.
func NewRequest(name string, payload any) Envelope {
	return NewEnvelope(Envelope{Kind: KindRequest, Name: name, Payload: payload})
}

// NewResponse builds the response to req. A non-nil err fills the error field.
func NewResponse(req Envelope, err error, payload any) Envelope {
	res := Envelope{
		ID:      req.ID,
		Kind:    KindResponse,
		Name:    req.Name,
		Payload: payload,
	}
	if err != nil {
		res.Error = errorText(err)
	}
	return res
}

// Marshal renders e as text with c.
func (e Envelope) Marshal(c Codec) (string, error) {
	if c == nil {
		c = defaultCodec
	}
	data, err := c.Encode(e)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return string(data), nil
}

// ParseEnvelope decodes text with c. Unknown or missing kinds, missing ids
// and unnamed requests are rejected with ErrMalformedEnvelope.
func ParseEnvelope(c Codec, text string) (Envelope, error) {
	if c == nil {
		c = defaultCodec
	}
	var e Envelope
	if err := c.Decode([]byte(text), &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if strings.TrimSpace(e.ID) == "" {
		return Envelope{}, fmt.Errorf("%w: missing id", ErrMalformedEnvelope)
	}
	if !e.Kind.valid() {
		return Envelope{}, fmt.Errorf("%w: invalid type %q", ErrMalformedEnvelope, e.Kind)
	}
	if e.Kind == KindRequest && e.Name == "" {
		return Envelope{}, fmt.Errorf("%w: request without name", ErrMalformedEnvelope)
	}
	return e, nil
}

// Failed reports whether e carries an error.
func (e Envelope) Failed() bool {
	switch v := e.Error.(type) {
	case nil:
		return false
	case string:
		return v != ""
	default:
		return true
	}
}

// remoteError returns the caller-facing error for a response, or nil.
func (e Envelope) remoteError() error {
	if !e.Failed() {
		return nil
	}
	return &RemoteError{Name: e.Name, Message: remoteMessage(e.Error), Data: e.Error}
}
