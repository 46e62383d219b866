package model

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScoreLock serializes score recomputation for a single (participation,
// task) pair across every ScoringService shard, grounded on the teacher's
// store/redis.go RedisStore.AcquireLock/RenewLock: a SETNX-based
// distributed lock with a TTL, generalized from a generic coordination
// primitive to one specific critical section (SPEC_FULL.md §11's
// per-(participation, task) serialization lock).
type ScoreLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewScoreLock builds a ScoreLock against addr (host:port).
func NewScoreLock(addr string, ttl time.Duration) *ScoreLock {
	return &ScoreLock{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func scoreLockKey(participationID, taskID int64) string {
	return fmt.Sprintf("judgeforge:scorelock:%d:%d", participationID, taskID)
}

// Acquire attempts to take the lock for (participationID, taskID), holding
// it for at most the configured TTL so a crashed holder cannot wedge a
// task's scoring forever.
func (l *ScoreLock) Acquire(ctx context.Context, participationID, taskID int64, owner string) (bool, error) {
	ok, err := l.client.SetNX(ctx, scoreLockKey(participationID, taskID), owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("model: acquiring score lock: %w", err)
	}
	return ok, nil
}

// Release drops the lock for (participationID, taskID) unconditionally.
// Safe to call even if the lock already expired.
func (l *ScoreLock) Release(ctx context.Context, participationID, taskID int64) error {
	if err := l.client.Del(ctx, scoreLockKey(participationID, taskID)).Err(); err != nil {
		return fmt.Errorf("model: releasing score lock: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (l *ScoreLock) Close() error {
	return l.client.Close()
}
