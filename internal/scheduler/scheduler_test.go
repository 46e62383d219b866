package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/itskum47/judgeforge/internal/rpc"
	"github.com/itskum47/judgeforge/internal/worker"
)

func opAt(kind worker.Kind, obj int64, ts time.Time) *Operation {
	return &Operation{Kind: kind, ObjectID: obj, DatasetID: 1, Priority: PriorityMedium, Timestamp: ts}
}

func TestQueuePushDedups(t *testing.T) {
	q := NewQueue()
	t0 := time.Unix(0, 0)
	op := opAt(worker.KindCompile, 1, t0)
	if !q.Push(op) {
		t.Fatalf("first push should succeed")
	}
	if q.Push(opAt(worker.KindCompile, 1, t0.Add(time.Second))) {
		t.Fatalf("re-pushing an already-queued operation must be a no-op")
	}
	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1", q.Len())
	}
}

func TestQueueOrdersByPriorityThenTimestamp(t *testing.T) {
	q := NewQueue()
	t0 := time.Unix(0, 0)

	low := opAt(worker.KindCompile, 1, t0)
	low.Priority = PriorityLow
	high := opAt(worker.KindCompile, 2, t0.Add(time.Second))
	high.Priority = PriorityHigh
	olderLow := opAt(worker.KindCompile, 3, t0.Add(-time.Second))
	olderLow.Priority = PriorityLow

	q.Push(low)
	q.Push(high)
	q.Push(olderLow)

	first := q.Pop()
	if first != high {
		t.Fatalf("expected the high priority op first, got %+v", first)
	}
	second := q.Pop()
	if second != olderLow {
		t.Fatalf("expected the older low priority op before the newer one, got %+v", second)
	}
	third := q.Pop()
	if third != low {
		t.Fatalf("expected the remaining low priority op last, got %+v", third)
	}
}

func TestQueuePopEmpty(t *testing.T) {
	q := NewQueue()
	if op := q.Pop(); op != nil {
		t.Fatalf("Pop on empty queue = %+v, want nil", op)
	}
}

func TestQueueContainsAndRemove(t *testing.T) {
	q := NewQueue()
	op := opAt(worker.KindEvaluate, 5, time.Unix(0, 0))
	q.Push(op)
	if !q.Contains(op.Key()) {
		t.Fatalf("expected Contains to find the pushed op")
	}
	if !q.Remove(op.Key()) {
		t.Fatalf("Remove should report success")
	}
	if q.Contains(op.Key()) {
		t.Fatalf("op should no longer be queued after Remove")
	}
	if q.Remove(op.Key()) {
		t.Fatalf("removing an absent key should report false")
	}
}

// fakeCaller is a no-op rpc.Caller stand-in, enough for CheckTimeouts'
// fire-and-forget Quit RPC.
type fakeCaller struct{}

func (f *fakeCaller) Call(ctx context.Context, method string, args any, result any) error {
	return nil
}
func (f *fakeCaller) Connected() bool { return true }

func newFakeClients(n int) []rpc.Caller {
	clients := make([]rpc.Caller, n)
	for i := range clients {
		clients[i] = &fakeCaller{}
	}
	return clients
}

func TestWorkerPoolCheckTimeoutsRequeuesAndDisables(t *testing.T) {
	pool := NewWorkerPool(newFakeClients(1))
	pool.connected[0] = true

	op := opAt(worker.KindCompile, 1, time.Unix(0, 0))
	pool.operations[0] = []*Operation{op}
	pool.startTime[0] = time.Now().Add(-2 * workerTimeout)

	lost := pool.CheckTimeouts(time.Now())
	if len(lost) != 1 || lost[0] != op {
		t.Fatalf("CheckTimeouts lost = %+v, want [op]", lost)
	}

	status := pool.GetStatus()
	if !status[0].Disabled {
		t.Fatalf("worker should be disabled after a timeout")
	}
	if status[0].Busy {
		t.Fatalf("worker should no longer be marked busy after a timeout")
	}
}

func TestWorkerPoolIgnoresStaleResultAfterTimeout(t *testing.T) {
	// S4: once a worker has been declared dead by CheckTimeouts, a result
	// it later reports must be dropped. The scheduler learns this via
	// ReleaseWorker's ignoreAll return, populated from the ignore flag
	// CheckTimeouts sets, which must survive until that call (the bundled
	// RPC call from before the timeout is still running in the
	// background and will eventually call ReleaseWorker on its own).
	pool := NewWorkerPool(newFakeClients(1))
	pool.connected[0] = true

	op := opAt(worker.KindCompile, 1, time.Unix(0, 0))
	pool.operations[0] = []*Operation{op}
	pool.startTime[0] = time.Now().Add(-2 * workerTimeout)

	pool.CheckTimeouts(time.Now())

	ignoreAll, _ := pool.ReleaseWorker(0)
	if !ignoreAll {
		t.Fatalf("expected the stale result to be marked for ignoring")
	}
}

func TestWorkerPoolOnDisconnectedDoesNotSetIgnore(t *testing.T) {
	// Unlike a timeout, a plain disconnect does not invalidate a result
	// the worker might still deliver later (workerpool.py's
	// check_connections vs check_timeouts distinction).
	pool := NewWorkerPool(newFakeClients(1))
	pool.connected[0] = true
	op := opAt(worker.KindEvaluate, 7, time.Unix(0, 0))
	pool.operations[0] = []*Operation{op}

	lost := pool.OnDisconnected(0)
	if len(lost) != 1 || lost[0] != op {
		t.Fatalf("OnDisconnected lost = %+v, want [op]", lost)
	}
	if pool.connected[0] {
		t.Fatalf("shard should be marked disconnected")
	}
	if pool.ignore[0] {
		t.Fatalf("a plain disconnect must not set the ignore flag")
	}
}

func TestWorkerPoolFindWorkerSkipsDisabledAndBusy(t *testing.T) {
	pool := NewWorkerPool(newFakeClients(3))
	pool.connected[0] = true
	pool.connected[1] = true
	pool.connected[2] = true
	pool.disabled[0] = true
	pool.operations[1] = []*Operation{opAt(worker.KindCompile, 1, time.Unix(0, 0))}

	shard, ok := pool.FindWorker()
	if !ok || shard != 2 {
		t.Fatalf("FindWorker = (%d, %v), want (2, true)", shard, ok)
	}
}

func TestSameClassBundling(t *testing.T) {
	t0 := time.Unix(0, 0)
	a := opAt(worker.KindEvaluate, 1, t0)
	a.TestcaseCodename = "t1"
	b := opAt(worker.KindEvaluate, 1, t0)
	b.TestcaseCodename = "t2"
	c := opAt(worker.KindCompile, 1, t0)
	d := opAt(worker.KindEvaluate, 2, t0)

	if !sameClass(a, b) {
		t.Fatalf("two evaluate ops on the same submission should bundle")
	}
	if sameClass(a, c) {
		t.Fatalf("a compile and an evaluate op must not bundle")
	}
	if sameClass(a, d) {
		t.Fatalf("ops on different submissions must not bundle")
	}
}
