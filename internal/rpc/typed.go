package rpc

import (
	"context"
	"encoding/json"
	"fmt"
)

// Typed adapts a Go method of shape func(ctx, Args) (Result, error) into
// the Handler Registry.Register expects, doing the json.RawMessage decode
// the source's rpc_method decorator otherwise does implicitly via
// keyword-argument unpacking.
func Typed[Args any, Result any](fn func(ctx context.Context, args Args) (Result, error)) Handler {
	return func(ctx context.Context, data json.RawMessage) (any, error) {
		var args Args
		if len(data) > 0 {
			if err := json.Unmarshal(data, &args); err != nil {
				return nil, fmt.Errorf("rpc: decoding arguments: %w", err)
			}
		}
		return fn(ctx, args)
	}
}

// TypedVoid adapts func(ctx, Args) error (no meaningful result) into a
// Handler.
func TypedVoid[Args any](fn func(ctx context.Context, args Args) error) Handler {
	return func(ctx context.Context, data json.RawMessage) (any, error) {
		var args Args
		if len(data) > 0 {
			if err := json.Unmarshal(data, &args); err != nil {
				return nil, fmt.Errorf("rpc: decoding arguments: %w", err)
			}
		}
		return nil, fn(ctx, args)
	}
}
