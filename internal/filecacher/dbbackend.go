package filecacher

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBBackend stores object content in Postgres large objects, with a row in
// fs_objects mapping digest -> (lobject_oid, description, size). This is
// the Go analogue of the source's FSObject.get_lobject: large objects
// instead of bytea columns, for the same chunked-streaming reason.
type DBBackend struct {
	pool *pgxpool.Pool
}

// NewDBBackend wraps an existing pool. The pool is shared with
// model.PostgresStore; large objects live in the same database as the rest
// of the relational schema.
func NewDBBackend(pool *pgxpool.Pool) *DBBackend {
	return &DBBackend{pool: pool}
}

func (b *DBBackend) Exists(ctx context.Context, digest string) (bool, error) {
	var exists bool
	err := b.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM fs_objects WHERE digest = $1)`, digest).Scan(&exists)
	return exists, err
}

func (b *DBBackend) Describe(ctx context.Context, digest string) (string, error) {
	var desc string
	err := b.pool.QueryRow(ctx, `SELECT description FROM fs_objects WHERE digest = $1`, digest).Scan(&desc)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return desc, err
}

// lobjectReader streams a large object's content and owns the transaction
// it was opened in; closing it ends the transaction.
type lobjectReader struct {
	tx  pgx.Tx
	obj *pgx.LargeObject
	ctx context.Context
}

func (r *lobjectReader) Read(p []byte) (int, error) { return r.obj.Read(p) }

func (r *lobjectReader) Close() error {
	return r.tx.Commit(r.ctx)
}

func (b *DBBackend) Open(ctx context.Context, digest string) (io.ReadCloser, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}

	var oid uint32
	err = tx.QueryRow(ctx, `SELECT lobject_oid FROM fs_objects WHERE digest = $1`, digest).Scan(&oid)
	if errors.Is(err, pgx.ErrNoRows) {
		tx.Rollback(ctx)
		return nil, ErrNotFound
	}
	if err != nil {
		tx.Rollback(ctx)
		return nil, err
	}

	los := tx.LargeObjects()
	obj, err := los.Open(ctx, oid, pgx.LargeObjectModeRead)
	if err != nil {
		tx.Rollback(ctx)
		return nil, err
	}
	return &lobjectReader{tx: tx, obj: obj, ctx: ctx}, nil
}

// Create writes content to a freshly allocated large object, then tries to
// claim digest in fs_objects. If another writer already committed first,
// the ON CONFLICT DO NOTHING insert affects zero rows, the freshly written
// large object is unlinked, and the transaction rolls back: the loser's
// write is fully discarded and both callers end up pointing at the same
// digest (§4.4/S5).
func (b *DBBackend) Create(ctx context.Context, digest, description string, size int64, r io.Reader, yield Yielder) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	los := tx.LargeObjects()
	oid, err := los.Create(ctx, 0)
	if err != nil {
		return fmt.Errorf("filecacher: creating large object: %w", err)
	}
	obj, err := los.Open(ctx, oid, pgx.LargeObjectModeWrite)
	if err != nil {
		return err
	}

	buf := make([]byte, ChunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := obj.Write(buf[:n]); werr != nil {
				return werr
			}
			if yield != nil {
				yield()
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO fs_objects (digest, description, size, lobject_oid) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (digest) DO NOTHING`,
		digest, description, size, oid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := los.Unlink(ctx, oid); err != nil {
			return err
		}
		return nil
	}
	return tx.Commit(ctx)
}

func (b *DBBackend) Delete(ctx context.Context, digest string) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var oid uint32
	err = tx.QueryRow(ctx, `SELECT lobject_oid FROM fs_objects WHERE digest = $1`, digest).Scan(&oid)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM fs_objects WHERE digest = $1`, digest); err != nil {
		return err
	}
	if _, err := tx.LargeObjects().Unlink(ctx, oid); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

var (
	_ BackingStore = (*DBBackend)(nil)
	_ BackingStore = (*LocalBackend)(nil)
)
