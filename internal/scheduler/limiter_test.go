package scheduler

import (
	"testing"
	"time"
)

func TestTokenBucketLimiterEnforcesSpacing(t *testing.T) {
	l := NewTokenBucketLimiter()

	if !l.Allow("p1", 50*time.Millisecond) {
		t.Fatal("first Allow for a fresh key should succeed")
	}
	if l.Allow("p1", 50*time.Millisecond) {
		t.Fatal("second Allow within the interval should be denied")
	}
	if !l.Allow("p2", 50*time.Millisecond) {
		t.Fatal("a different key should have its own bucket")
	}

	time.Sleep(60 * time.Millisecond)
	if !l.Allow("p1", 50*time.Millisecond) {
		t.Fatal("Allow after the interval has elapsed should succeed")
	}
}

func TestTokenBucketLimiterNoLimitConfigured(t *testing.T) {
	l := NewTokenBucketLimiter()
	for i := 0; i < 5; i++ {
		if !l.Allow("unlimited", 0) {
			t.Fatalf("Allow with interval<=0 should always succeed (iteration %d)", i)
		}
	}
}
