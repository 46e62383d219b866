package rpc

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler is a method explicitly marked callable by remote services. It
// receives the raw keyword-argument object and returns a JSON-serializable
// result or an error, which is propagated to the caller as a wire __error
// string (see §4.1 and §7 of the design: RPC handlers catch everything and
// convert to an error string, never panic the connection).
type Handler func(ctx context.Context, data json.RawMessage) (any, error)

// Registry holds the methods a service exposes over RPC. Only methods
// explicitly registered here are callable — there is no reflection-based
// discovery, mirroring the source's rpc_callable marker but resolved at
// construction time instead of via decorator introspection.
type Registry struct {
	methods map[string]Handler
}

// NewRegistry creates an empty method registry.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]Handler)}
}

// Register adds a callable method. Registering the same name twice is a
// programming error and panics at startup, not at call time.
func (r *Registry) Register(name string, h Handler) {
	if _, exists := r.methods[name]; exists {
		panic(fmt.Sprintf("rpc: method %q already registered", name))
	}
	r.methods[name] = h
}

// Lookup returns the handler for name, or ok=false if it is missing or was
// never marked callable.
func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.methods[name]
	return h, ok
}
