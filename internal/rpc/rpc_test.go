package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func startTestServer(t *testing.T, addr string) (*Server, func()) {
	t.Helper()
	registry := NewRegistry()
	registry.Register("Echo", func(ctx context.Context, data json.RawMessage) (any, error) {
		var args struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(data, &args); err != nil {
			return nil, err
		}
		return map[string]string{"value": args.Value}, nil
	})
	registry.Register("Fail", func(ctx context.Context, data json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	})

	srv := NewServer(registry)
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan error, 1)
	go func() {
		ready <- srv.ListenAndServe(ctx, addr)
	}()
	return srv, cancel
}

func TestClientServerRoundTrip(t *testing.T) {
	addr := "127.0.0.1:18391"
	_, cancel := startTestServer(t, addr)
	defer cancel()
	time.Sleep(50 * time.Millisecond)

	resolver := NewResolver(map[ServiceCoord]Address{
		{Name: "Echo", Shard: 0}: {Host: "127.0.0.1", Port: 18391},
	})
	client := NewClient(ServiceCoord{Name: "Echo", Shard: 0}, resolver, 0)
	client.Start(context.Background())
	time.Sleep(50 * time.Millisecond)

	var result struct {
		Value string `json:"value"`
	}
	ctx, cancelCall := context.WithTimeout(context.Background(), time.Second)
	defer cancelCall()
	if err := client.Call(ctx, "Echo", map[string]string{"value": "hello"}, &result); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if result.Value != "hello" {
		t.Fatalf("expected hello, got %q", result.Value)
	}
}

func TestClientErrorPropagation(t *testing.T) {
	addr := "127.0.0.1:18392"
	_, cancel := startTestServer(t, addr)
	defer cancel()
	time.Sleep(50 * time.Millisecond)

	resolver := NewResolver(map[ServiceCoord]Address{
		{Name: "Echo", Shard: 0}: {Host: "127.0.0.1", Port: 18392},
	})
	client := NewClient(ServiceCoord{Name: "Echo", Shard: 0}, resolver, 0)
	client.Start(context.Background())
	time.Sleep(50 * time.Millisecond)

	ctx, cancelCall := context.WithTimeout(context.Background(), time.Second)
	defer cancelCall()
	err := client.Call(ctx, "Fail", map[string]string{}, nil)
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom error, got %v", err)
	}
}

func TestClientUnknownMethod(t *testing.T) {
	addr := "127.0.0.1:18393"
	_, cancel := startTestServer(t, addr)
	defer cancel()
	time.Sleep(50 * time.Millisecond)

	resolver := NewResolver(map[ServiceCoord]Address{
		{Name: "Echo", Shard: 0}: {Host: "127.0.0.1", Port: 18393},
	})
	client := NewClient(ServiceCoord{Name: "Echo", Shard: 0}, resolver, 0)
	client.Start(context.Background())
	time.Sleep(50 * time.Millisecond)

	ctx, cancelCall := context.WithTimeout(context.Background(), time.Second)
	defer cancelCall()
	err := client.Call(ctx, "DoesNotExist", map[string]string{}, nil)
	if err == nil {
		t.Fatal("expected error for unknown method")
	}
}

func TestFakeClientAlwaysFails(t *testing.T) {
	fc := NewFakeClient(ServiceCoord{Name: "ProxyService", Shard: 0})
	err := fc.Call(context.Background(), "Anything", nil, nil)
	var absent *ConfiguredAbsentError
	if !errors.As(err, &absent) {
		t.Fatalf("expected ConfiguredAbsentError, got %v", err)
	}
}

func TestMessageSizeLimit(t *testing.T) {
	fc := &frameConn{}
	big := make([]byte, MaxMessageSize)
	if err := fc.writeJSON(map[string]string{"value": string(big)}); err == nil {
		t.Fatal("expected writeJSON to reject a message larger than MaxMessageSize")
	}
}
