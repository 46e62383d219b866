package rpc

import (
	"context"
	"encoding/json"
	"testing"
)

type addArgs struct {
	A int
	B int
}

func TestTypedDecodesAndCalls(t *testing.T) {
	h := Typed(func(ctx context.Context, args addArgs) (int, error) {
		return args.A + args.B, nil
	})
	data, _ := json.Marshal(addArgs{A: 2, B: 3})
	result, err := h(context.Background(), data)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.(int) != 5 {
		t.Fatalf("result = %v, want 5", result)
	}
}

func TestTypedVoidPropagatesError(t *testing.T) {
	h := TypedVoid(func(ctx context.Context, args addArgs) error {
		return context.Canceled
	})
	_, err := h(context.Background(), nil)
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
