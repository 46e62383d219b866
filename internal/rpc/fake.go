package rpc

import (
	"context"
	"fmt"
)

// ConfiguredAbsentError is returned by every call made through a FakeClient.
type ConfiguredAbsentError struct {
	Coord ServiceCoord
}

func (e *ConfiguredAbsentError) Error() string {
	return fmt.Sprintf("rpc: %s is configured absent", e.Coord)
}

// Caller is the subset of Client's API that callers program against, so a
// FakeClient can stand in wherever a target endpoint is optional (e.g. a
// contest with no ProxyService configured).
type Caller interface {
	Call(ctx context.Context, method string, args any, result any) error
	Connected() bool
}

// FakeClient immediately fails every call with a configured-absent error,
// so callers of an optional service need not special-case its absence
// (§4.1: "A 'fake' client variant ... so callers need not special-case
// optional services").
type FakeClient struct {
	Coord ServiceCoord
}

func NewFakeClient(coord ServiceCoord) *FakeClient {
	return &FakeClient{Coord: coord}
}

func (f *FakeClient) Call(ctx context.Context, method string, args any, result any) error {
	return &ConfiguredAbsentError{Coord: f.Coord}
}

func (f *FakeClient) Connected() bool { return false }

var (
	_ Caller = (*Client)(nil)
	_ Caller = (*FakeClient)(nil)
)
