package filecacher

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/itskum47/judgeforge/internal/observability"
	"golang.org/x/sync/singleflight"
)

// FileCacher is a local cache in front of a BackingStore, keyed by the
// SHA-1 digest of file content (§4.4). Two goroutines Put-ing identical
// content concurrently are coalesced by an in-process singleflight group
// before either one even reaches the backing store, so the common case of
// racing callers never both pay the network/DB round trip; the backing
// store's own Create still handles the cross-process case.
type FileCacher struct {
	baseDir string
	tmpDir  string
	objDir  string
	backing BackingStore

	puts singleflight.Group
}

// New creates a FileCacher rooted at baseDir ("fs-cache-<service>-<shard>"
// under the configured cache_dir, per §4.4), backed by store.
func New(baseDir string, backing BackingStore) (*FileCacher, error) {
	tmpDir := filepath.Join(baseDir, "tmp")
	objDir := filepath.Join(baseDir, "objects")
	for _, d := range []string{baseDir, tmpDir, objDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("filecacher: creating %s: %w", d, err)
		}
	}
	return &FileCacher{baseDir: baseDir, tmpDir: tmpDir, objDir: objDir, backing: backing}, nil
}

func (c *FileCacher) cachePath(digest string) string { return filepath.Join(c.objDir, digest) }

// Exists reports whether digest is present, checking the local cache
// before falling back to the backing store.
func (c *FileCacher) Exists(ctx context.Context, digest string) (bool, error) {
	if _, err := os.Stat(c.cachePath(digest)); err == nil {
		return true, nil
	}
	return c.backing.Exists(ctx, digest)
}

// Describe returns the human-readable description stored alongside digest.
func (c *FileCacher) Describe(ctx context.Context, digest string) (string, error) {
	return c.backing.Describe(ctx, digest)
}

// GetAsBytes fetches digest's full content, populating the local cache
// first if necessary.
func (c *FileCacher) GetAsBytes(ctx context.Context, digest string, yield Yielder) ([]byte, error) {
	path, err := c.ensureCached(ctx, digest, yield)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// GetAsPath returns the path of the local cache copy of digest, populating
// the cache first if necessary. The caller must not modify or remove the
// returned file: it is the shared cache entry, not a private copy.
func (c *FileCacher) GetAsPath(ctx context.Context, digest string, yield Yielder) (string, error) {
	return c.ensureCached(ctx, digest, yield)
}

// GetToWriter streams digest's content into w, chunked at ChunkSize with a
// yield between chunks, mirroring the source's get_file(file_obj=...) path.
func (c *FileCacher) GetToWriter(ctx context.Context, digest string, w io.Writer, yield Yielder) error {
	path, err := c.ensureCached(ctx, digest, yield)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, ChunkSize)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if yield != nil {
				yield()
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// ensureCached downloads digest from the backing store into the local
// cache if it is not already there, then returns the local cache path.
func (c *FileCacher) ensureCached(ctx context.Context, digest string, yield Yielder) (string, error) {
	cachePath := c.cachePath(digest)
	if _, err := os.Stat(cachePath); err == nil {
		return cachePath, nil
	}

	_, err, _ := c.puts.Do("get:"+digest, func() (any, error) {
		if _, err := os.Stat(cachePath); err == nil {
			return nil, nil
		}
		start := time.Now()
		defer func() {
			observability.FileCacherFetchLatency.Observe(time.Since(start).Seconds())
		}()

		src, err := c.backing.Open(ctx, digest)
		if err != nil {
			return nil, err
		}
		defer src.Close()

		tmp, err := os.CreateTemp(c.tmpDir, "get-*")
		if err != nil {
			return nil, err
		}
		tmpName := tmp.Name()

		buf := make([]byte, ChunkSize)
		for {
			n, rerr := src.Read(buf)
			if n > 0 {
				if _, werr := tmp.Write(buf[:n]); werr != nil {
					tmp.Close()
					os.Remove(tmpName)
					return nil, werr
				}
				if yield != nil {
					yield()
				}
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				tmp.Close()
				os.Remove(tmpName)
				return nil, rerr
			}
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpName)
			return nil, err
		}
		if err := os.Rename(tmpName, cachePath); err != nil {
			os.Remove(tmpName)
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return "", err
	}
	return cachePath, nil
}

// PutBytes stores content under its SHA-1 digest, returning the digest.
// Concurrent Puts of identical content are coalesced in-process via
// singleflight; the backing store additionally guarantees first-committer-
// wins across processes (§4.4/S5).
func (c *FileCacher) PutBytes(ctx context.Context, description string, content []byte) (string, error) {
	return c.PutReader(ctx, description, newSizedReader(content))
}

// PutReader streams r's content, hashing and caching it as it goes, and
// stores it via the backing store under the resulting digest.
func (c *FileCacher) PutReader(ctx context.Context, description string, r io.Reader) (string, error) {
	tmp, err := os.CreateTemp(c.tmpDir, "put-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	hasher := sha1.New()
	var size int64
	buf := make([]byte, ChunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				tmp.Close()
				return "", werr
			}
			size += int64(n)
			Gosched()
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			tmp.Close()
			return "", rerr
		}
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	digest := hex.EncodeToString(hasher.Sum(nil))

	_, err, _ = c.puts.Do("put:"+digest, func() (any, error) {
		cachePath := c.cachePath(digest)
		if _, statErr := os.Stat(cachePath); statErr != nil {
			f, oerr := os.Open(tmpName)
			if oerr != nil {
				return nil, oerr
			}
			oerr = c.backing.Create(ctx, digest, description, size, f, Gosched)
			f.Close()
			if oerr != nil {
				return nil, oerr
			}
			// Publish into the local cache by linking the already-hashed
			// temp file into place; ignore a concurrent winner's file.
			if linkErr := os.Link(tmpName, cachePath); linkErr != nil && !os.IsExist(linkErr) {
				return nil, linkErr
			}
		}
		return nil, nil
	})
	if err != nil {
		return "", err
	}
	return digest, nil
}

// Delete removes digest from both the local cache and the backing store.
func (c *FileCacher) Delete(ctx context.Context, digest string) error {
	os.Remove(c.cachePath(digest))
	return c.backing.Delete(ctx, digest)
}

func newSizedReader(b []byte) io.Reader { return &byteReader{b: b} }

type byteReader struct {
	b []byte
	i int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}
