// Package filecacher implements the content-addressed blob store of §4.4:
// a SHA-1-digest-keyed object store with a local on-disk cache in front of
// a durable backing store, chunked I/O with cooperative yields so a single
// large transfer does not starve a service's other duties, and
// first-committer-wins dedup when two callers race to store identical
// content.
package filecacher

import (
	"context"
	"io"
	"runtime"
)

// ChunkSize is the unit of streamed I/O, matching the source's
// FileCacher.CHUNK_SIZE (2**20 bytes). Reads and writes are chunked at this
// size and a Yielder is invoked between chunks so long transfers cooperate
// with a service's step loop instead of monopolizing it.
const ChunkSize = 1 << 20

// Yielder is called between chunks of a Get or Put so that a caller running
// inside a cooperative service loop (§5's _step equivalent) gets a chance
// to interleave other work. A nil Yielder is a no-op.
type Yielder func()

// Gosched is the production Yielder: a bare runtime.Gosched() between
// chunks, giving the scheduler a chance to run other goroutines in the
// same process without blocking on I/O or a timer. Callers outside tests
// should pass this rather than nil.
func Gosched() { runtime.Gosched() }

// BackingStore is the durable object store behind the local cache: Postgres
// large objects in production (DBBackend), or a plain directory tree for
// single-node development (LocalBackend).
//
// Two writers racing to Put the same digest must converge on one stored
// object; the loser's write is discarded and both callers observe the same
// description (§4.4/S5). Backends implement this with their own atomicity
// primitive (a unique row constraint for DBBackend, a rename-into-place for
// LocalBackend).
type BackingStore interface {
	// Exists reports whether digest is already stored.
	Exists(ctx context.Context, digest string) (bool, error)

	// Open returns a reader for the object with the given digest. Callers
	// must Close it. Returns ErrNotFound if absent.
	Open(ctx context.Context, digest string) (io.ReadCloser, error)

	// Create stores the content read from r under digest, recording
	// description. If another writer already committed this digest,
	// Create discards r's content and returns nil: both racing callers
	// succeed and observe the winner's description.
	Create(ctx context.Context, digest, description string, size int64, r io.Reader, yield Yielder) error

	// Describe returns the description for digest, or ("", ErrNotFound).
	Describe(ctx context.Context, digest string) (string, error)

	// Delete removes the object's row/content. Deleting a missing digest
	// is not an error.
	Delete(ctx context.Context, digest string) error
}

// ErrNotFound is returned by BackingStore and FileCacher lookups for a
// digest that has never been stored.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "filecacher: object not found" }
