package model

import (
	"context"
	"testing"
	"time"
)

func dialScoreLock(t *testing.T) *ScoreLock {
	t.Helper()
	addr := "127.0.0.1:6379"
	lock := NewScoreLock(addr, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := lock.Acquire(ctx, 0, 0, "probe"); err != nil {
		lock.Close()
		t.Skipf("no redis reachable at %s: %v", addr, err)
	}
	lock.Release(context.Background(), 0, 0)
	return lock
}

func TestScoreLockExcludesConcurrentHolder(t *testing.T) {
	lock := dialScoreLock(t)
	defer lock.Close()
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, 1, 2, "first")
	if err != nil || !ok {
		t.Fatalf("first Acquire: ok=%v err=%v", ok, err)
	}
	defer lock.Release(ctx, 1, 2)

	ok, err = lock.Acquire(ctx, 1, 2, "second")
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if ok {
		t.Fatalf("second Acquire succeeded while first still held the lock")
	}
}

func TestScoreLockReleaseAllowsReacquire(t *testing.T) {
	lock := dialScoreLock(t)
	defer lock.Close()
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, 3, 4, "first")
	if err != nil || !ok {
		t.Fatalf("first Acquire: ok=%v err=%v", ok, err)
	}
	if err := lock.Release(ctx, 3, 4); err != nil {
		t.Fatalf("Release: %v", err)
	}

	ok, err = lock.Acquire(ctx, 3, 4, "second")
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if !ok {
		t.Fatalf("second Acquire failed after Release")
	}
	lock.Release(ctx, 3, 4)
}
