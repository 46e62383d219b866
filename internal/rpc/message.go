// Package rpc implements the inter-service fabric: a framed line protocol
// carrying JSON request/response envelopes over TCP, with method dispatch
// restricted to handlers explicitly registered as callable.
package rpc

import (
	"encoding/json"
	"fmt"
)

// MaxMessageSize is the hard cap on a single wire message, CRLF included.
// Larger messages are dropped and the offending peer disconnected.
const MaxMessageSize = 1024 * 1024

// Request is the envelope sent by a client for a method call.
type Request struct {
	ID     string          `json:"__id"`
	Method string          `json:"__method"`
	Data   json.RawMessage `json:"__data"`
}

// Response is the envelope sent back by a server for a Request.
type Response struct {
	ID    string          `json:"__id"`
	Data  json.RawMessage `json:"__data,omitempty"`
	Error *string         `json:"__error"`
}

// errResponse is a convenience constructor for a failed Response.
func errResponse(id string, err error) Response {
	msg := err.Error()
	return Response{ID: id, Error: &msg}
}

func okResponse(id string, data any) (Response, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Response{}, fmt.Errorf("encoding response data: %w", err)
	}
	return Response{ID: id, Data: raw}, nil
}
