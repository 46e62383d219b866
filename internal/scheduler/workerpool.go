package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/itskum47/judgeforge/internal/observability"
	"github.com/itskum47/judgeforge/internal/rpc"
	"github.com/itskum47/judgeforge/internal/worker"
)

// workerTimeout is how long a worker may hold operations without completing
// them before it is presumed lost (workerpool.py's WORKER_TIMEOUT).
const workerTimeout = 600 * time.Second

// WorkerPool tracks the state of every Worker shard: which operations (if
// any) each one currently holds, whether it is connected, and whether it
// has been administratively disabled. It is the direct translation of
// workerpool.py's WorkerPool class; Python's parallel dicts keyed by shard
// become parallel slices indexed by shard here, and the gevent RLock plus
// Event become a single sync.Mutex (Go's goroutines need no cooperative
// yield the way gevent greenlets do).
type WorkerPool struct {
	mu sync.Mutex

	clients []rpc.Caller

	operations         [][]*Operation // nil means WORKER_INACTIVE
	startTime          []time.Time
	scheduleDisabling  []bool
	ignore             []bool
	operationsToIgnore [][]string // keys
	disabled           []bool
	connected          []bool
}

// NewWorkerPool builds a pool over the given per-shard RPC callers.
func NewWorkerPool(clients []rpc.Caller) *WorkerPool {
	n := len(clients)
	return &WorkerPool{
		clients:            clients,
		operations:         make([][]*Operation, n),
		startTime:          make([]time.Time, n),
		scheduleDisabling:  make([]bool, n),
		ignore:             make([]bool, n),
		operationsToIgnore: make([][]string, n),
		disabled:           make([]bool, n),
		connected:          make([]bool, n),
	}
}

// OnConnected marks shard as connected. Called from the shard's
// rpc.Client.OnConnect callback.
func (p *WorkerPool) OnConnected(shard int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected[shard] = true
}

// OnDisconnected marks shard as disconnected and returns the operations it
// was holding, so the caller can requeue them. Unlike CheckTimeouts, this
// does not mark the lost operations for ignoring: a connection drop does
// not invalidate a result the worker might still deliver once it
// reconnects and is asked to report, mirroring workerpool.py's
// check_connections (as distinct from check_timeouts).
func (p *WorkerPool) OnDisconnected(shard int) []*Operation {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected[shard] = false
	ops := p.operations[shard]
	if ops == nil {
		return nil
	}
	lost := make([]*Operation, 0, len(ops))
	toIgnore := make(map[string]struct{}, len(p.operationsToIgnore[shard]))
	for _, k := range p.operationsToIgnore[shard] {
		toIgnore[k] = struct{}{}
	}
	for _, op := range ops {
		if _, ignored := toIgnore[op.Key()]; !ignored {
			lost = append(lost, op)
		}
	}
	p.clearShard(shard)
	return lost
}

// FindWorker returns the shard of a random inactive, connected,
// non-disabled worker. Returns ok=false if none is available.
func (p *WorkerPool) FindWorker() (shard int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var candidates []int
	for s := range p.operations {
		if p.operations[s] == nil && p.connected[s] && !p.disabled[s] {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// AcquireWorker assigns ops to shard and dispatches the corresponding jobs
// over RPC, returning the results asynchronously via done. The shard must
// currently be inactive. jobs must be in the same order as ops.
func (p *WorkerPool) AcquireWorker(ctx context.Context, shard int, ops []*Operation, jobs []worker.Job, done func(results []worker.JobResult, err error)) error {
	p.mu.Lock()
	if p.operations[shard] != nil {
		p.mu.Unlock()
		return fmt.Errorf("scheduler: shard %d already busy", shard)
	}
	p.operations[shard] = ops
	p.startTime[shard] = time.Now()
	client := p.clients[shard]
	p.mu.Unlock()

	go func() {
		var results []worker.JobResult
		err := client.Call(ctx, "ExecuteJobGroup", jobs, &results)
		done(results, err)
	}()
	return nil
}

// ReleaseWorker marks shard inactive again. ignoreAll reports whether every
// result from this round should be discarded (CheckTimeouts gave up on the
// worker mid-flight); toIgnore lists individual operation keys to discard
// (workerpool.py's three-way release_worker return).
func (p *WorkerPool) ReleaseWorker(shard int) (ignoreAll bool, toIgnore []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ignoreAll = p.ignore[shard]
	toIgnore = p.operationsToIgnore[shard]
	p.clearShard(shard)
	if p.scheduleDisabling[shard] {
		p.disabled[shard] = true
		p.scheduleDisabling[shard] = false
	}
	return ignoreAll, toIgnore
}

// clearShard resets per-round bookkeeping for shard. Caller must hold mu.
func (p *WorkerPool) clearShard(shard int) {
	p.operations[shard] = nil
	p.ignore[shard] = false
	p.operationsToIgnore[shard] = nil
}

// IgnoreOperation marks a single in-flight operation's eventual result as
// disposable, without disturbing the rest of the shard's batch.
func (p *WorkerPool) IgnoreOperation(shard int, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.operationsToIgnore[shard] = append(p.operationsToIgnore[shard], key)
}

// DisableWorker prevents shard from being handed new operations. If it is
// currently busy, disabling is deferred until its round finishes
// (scheduleDisabling), exactly as workerpool.py defers it.
func (p *WorkerPool) DisableWorker(shard int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.operations[shard] != nil {
		p.scheduleDisabling[shard] = true
		return
	}
	p.disabled[shard] = true
}

// EnableWorker reverses DisableWorker.
func (p *WorkerPool) EnableWorker(shard int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disabled[shard] = false
	p.scheduleDisabling[shard] = false
}

// CheckTimeouts sweeps every shard holding operations for longer than
// workerTimeout, presumes the worker lost, and returns the operations that
// should be requeued (excluding any already marked for ignoring). A timed
// out worker is also disabled and sent a quit RPC: unlike a mere
// disconnect, a timeout means the worker may still be running and could
// report a stale result later, so its future results must be ignored too.
func (p *WorkerPool) CheckTimeouts(now time.Time) []*Operation {
	p.mu.Lock()
	var lost []*Operation
	var toQuit []int
	for s, ops := range p.operations {
		if ops == nil {
			continue
		}
		if now.Sub(p.startTime[s]) <= workerTimeout {
			continue
		}
		toIgnore := make(map[string]struct{}, len(p.operationsToIgnore[s]))
		for _, k := range p.operationsToIgnore[s] {
			toIgnore[k] = struct{}{}
		}
		for _, op := range ops {
			if _, ignored := toIgnore[op.Key()]; !ignored {
				lost = append(lost, op)
			}
		}
		// Mark the shard inactive and disabled directly, but leave the
		// ignore flag set: the in-flight RPC call is still running in the
		// background and will eventually call ReleaseWorker, which must
		// see ignore=true to discard whatever it reports. clearShard would
		// reset that flag, so it is not used here.
		p.operations[s] = nil
		p.operationsToIgnore[s] = nil
		p.ignore[s] = true
		p.disabled[s] = true
		toQuit = append(toQuit, s)
	}
	clients := p.clients
	p.mu.Unlock()

	if len(toQuit) > 0 {
		observability.WorkerTimeouts.Add(float64(len(toQuit)))
	}

	for _, s := range toQuit {
		go func(c rpc.Caller) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = c.Call(ctx, "Quit", struct{}{}, nil)
		}(clients[s])
	}
	return lost
}

// Status is a snapshot of one shard's state, for admin reporting.
type Status struct {
	Shard     int
	Connected bool
	Disabled  bool
	Busy      bool
	NumOps    int
}

// GetStatus returns a snapshot of every shard.
func (p *WorkerPool) GetStatus() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Status, len(p.operations))
	for s := range p.operations {
		out[s] = Status{
			Shard:     s,
			Connected: p.connected[s],
			Disabled:  p.disabled[s],
			Busy:      p.operations[s] != nil,
			NumOps:    len(p.operations[s]),
		}
	}
	return out
}
