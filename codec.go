// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Codec turns structured data into text and back. Encoded output must be
// valid UTF-8 because transports only carry text.
type Codec interface {
	Name() string
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

// JSONCodec is a JSON-based codec
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// defaultCodec is used when no codec is specified
var defaultCodec Codec = JSONCodec{}

// CBORCodec encodes values as deterministic CBOR wrapped in standard base64.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORCodec builds a CBOR codec that decodes maps as map[string]any so
// payloads look the same as they do under JSONCodec.
func NewCBORCodec() (*CBORCodec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor dec mode: %w", err)
	}
	return &CBORCodec{enc: em, dec: dm}, nil
}

func (*CBORCodec) Name() string { return "cbor" }

func (c *CBORCodec) Encode(v interface{}) ([]byte, error) {
	raw, err := c.enc.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

func (c *CBORCodec) Decode(data []byte, v interface{}) error {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(raw, data)
	if err != nil {
		return fmt.Errorf("cbor armour: %w", err)
	}
	return c.dec.Unmarshal(raw[:n], v)
}

// CodecByName returns the codec registered under name ("json" or "cbor").
// An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return defaultCodec, nil
	case "cbor":
		return NewCBORCodec()
	default:
		return nil, fmt.Errorf("unknown codec: %s", name)
	}
}

// convert re-encodes src into dst through c. It bridges untyped envelope
// payloads and caller-declared types.
func convert(c Codec, src, dst interface{}) error {
	if dst == nil || src == nil {
		return nil
	}
	if p, ok := dst.(*interface{}); ok {
		*p = src
		return nil
	}
	data, err := c.Encode(src)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := c.Decode(data, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
