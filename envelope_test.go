// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"errors"
	"reflect"
	"testing"
)

func testCodecs(t *testing.T) []Codec {
	t.Helper()
	cb, err := NewCBORCodec()
	if err != nil {
		t.Fatalf("NewCBORCodec: %v", err)
	}
	return []Codec{JSONCodec{}, cb}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	envelopes := []Envelope{
		NewRequest("ping", map[string]any{"n": 1.5, "tags": []any{"a", "b"}, "ok": true}),
		NewRequest("bare", nil),
		{ID: "abc123", Kind: KindResponse, Name: "ping", Payload: "pong"},
		{ID: "abc124", Kind: KindResponse, Name: "ping", Error: "boom"},
		{ID: "abc125", Kind: KindResponse, Name: "nested", Payload: map[string]any{"inner": map[string]any{"v": "hi"}}},
	}
	for _, c := range testCodecs(t) {
		for _, e := range envelopes {
			text, err := e.Marshal(c)
			if err != nil {
				t.Fatalf("%s: Marshal(%+v): %v", c.Name(), e, err)
			}
			got, err := ParseEnvelope(c, text)
			if err != nil {
				t.Fatalf("%s: ParseEnvelope(%q): %v", c.Name(), text, err)
			}
			if !reflect.DeepEqual(got, e) {
				t.Errorf("%s: round trip\n got %#v\nwant %#v", c.Name(), got, e)
			}
		}
	}
}

func TestParseEnvelopeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"not json", "hello"},
		{"null", "null"},
		{"array", `["req"]`},
		{"missing type", `{"id":"abc","name":"ping"}`},
		{"unknown type", `{"id":"abc","type":"event","name":"ping"}`},
		{"missing id", `{"type":"req","name":"ping"}`},
		{"blank id", `{"id":"  ","type":"res"}`},
		{"unnamed request", `{"id":"abc","type":"req"}`},
		{"wrong id type", `{"id":7,"type":"req","name":"ping"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseEnvelope(JSONCodec{}, tt.text); !errors.Is(err, ErrMalformedEnvelope) {
				t.Errorf("err = %v, want ErrMalformedEnvelope", err)
			}
		})
	}
}

func TestParseEnvelopeAcceptsOriginalWireFormat(t *testing.T) {
	e, err := ParseEnvelope(nil, `{"id":"Ab3dEf","type":"res","name":"echo","error":null,"payload":{"v":"hi"}}`)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if e.Kind != KindResponse || e.remoteError() != nil {
		t.Errorf("envelope = %+v", e)
	}
}

func TestNewEnvelope(t *testing.T) {
	e := NewEnvelope(Envelope{Kind: KindRequest, Name: "a"})
	if len(e.ID) != DefaultIDLength {
		t.Errorf("generated id %q", e.ID)
	}
	if kept := NewEnvelope(Envelope{ID: "fixed", Kind: KindRequest}); kept.ID != "fixed" {
		t.Errorf("id overwritten: %q", kept.ID)
	}
}

func TestNewResponse(t *testing.T) {
	req := NewRequest("echo", "x")
	ok := NewResponse(req, nil, "y")
	if ok.ID != req.ID || ok.Name != "echo" || ok.Kind != KindResponse || ok.Failed() || ok.Payload != "y" {
		t.Errorf("success response = %+v", ok)
	}

	failed := NewResponse(req, errors.New(""), nil)
	if !failed.Failed() {
		t.Error("empty error text would read as success")
	}
	var remote *RemoteError
	if err := failed.remoteError(); !errors.As(err, &remote) || remote.Name != "echo" {
		t.Errorf("remoteError = %v", err)
	}
}

func TestParseEnvelopeStructuredError(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		message string
	}{
		{"empty object", `{"id":"Ab3dEf","type":"res","name":"echo","error":{}}`, "{}"},
		{"code and message", `{"id":"Ab3dEf","type":"res","name":"echo","error":{"code":42,"message":"denied"}}`, "denied"},
		{"object without message", `{"id":"Ab3dEf","type":"res","name":"echo","error":{"code":42}}`, `{"code":42}`},
		{"number", `{"id":"Ab3dEf","type":"res","name":"echo","error":7}`, "7"},
		{"string", `{"id":"Ab3dEf","type":"res","name":"echo","error":"boom"}`, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := ParseEnvelope(nil, tt.text)
			if err != nil {
				t.Fatalf("ParseEnvelope: %v", err)
			}
			if !e.Failed() {
				t.Fatal("error value read as success")
			}
			var remote *RemoteError
			if err := e.remoteError(); !errors.As(err, &remote) {
				t.Fatalf("remoteError = %v", err)
			}
			if remote.Message != tt.message || remote.Name != "echo" || remote.Data == nil {
				t.Errorf("remote = %+v, want message %q", remote, tt.message)
			}
		})
	}

	e, err := ParseEnvelope(nil, `{"id":"Ab3dEf","type":"res","name":"echo","error":""}`)
	if err != nil || e.Failed() {
		t.Errorf("empty error string: %+v, %v", e, err)
	}
}
