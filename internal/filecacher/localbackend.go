package filecacher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// LocalBackend stores objects as plain files under a directory tree,
// description as a sibling ".desc" file. It is meant for single-shard
// development deployments where a Postgres-backed DBBackend would be
// overkill; its flat <dir>/<digest> layout is the Go equivalent of the source's
// base_dir/objects cache directory, here playing the backing-store role
// rather than the cache role.
type LocalBackend struct {
	dir string
	mu  sync.Mutex
}

// NewLocalBackend creates a LocalBackend rooted at dir, creating it and its
// tmp subdirectory if missing.
func NewLocalBackend(dir string) (*LocalBackend, error) {
	if err := os.MkdirAll(filepath.Join(dir, "tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("filecacher: creating backing dir: %w", err)
	}
	return &LocalBackend{dir: dir}, nil
}

func (b *LocalBackend) objPath(digest string) string  { return filepath.Join(b.dir, digest) }
func (b *LocalBackend) descPath(digest string) string { return filepath.Join(b.dir, digest+".desc") }

func (b *LocalBackend) Exists(ctx context.Context, digest string) (bool, error) {
	_, err := os.Stat(b.objPath(digest))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (b *LocalBackend) Open(ctx context.Context, digest string) (io.ReadCloser, error) {
	f, err := os.Open(b.objPath(digest))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (b *LocalBackend) Describe(ctx context.Context, digest string) (string, error) {
	data, err := os.ReadFile(b.descPath(digest))
	if os.IsNotExist(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Create copies r into a private temp file, then claims digest by creating
// its object file with O_EXCL: only the first caller to win that claim
// publishes its content, a loser discards its copy and returns nil
// (§4.4/S5).
func (b *LocalBackend) Create(ctx context.Context, digest, description string, size int64, r io.Reader, yield Yielder) error {
	tmp, err := os.CreateTemp(filepath.Join(b.dir, "tmp"), "obj-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	buf := make([]byte, ChunkSize)
	if _, err := io.CopyBuffer(yieldingWriter{tmp, yield}, r, buf); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	claim, err := os.OpenFile(b.objPath(digest), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil // another writer already committed this digest
		}
		return err
	}
	claim.Close()

	if err := os.Rename(tmpName, b.objPath(digest)); err != nil {
		return err
	}
	return os.WriteFile(b.descPath(digest), []byte(description), 0o644)
}

func (b *LocalBackend) Delete(ctx context.Context, digest string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.Remove(b.objPath(digest)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(b.descPath(digest)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

type yieldingWriter struct {
	w     io.Writer
	yield Yielder
}

func (y yieldingWriter) Write(p []byte) (int, error) {
	n, err := y.w.Write(p)
	if y.yield != nil {
		y.yield()
	}
	return n, err
}
