package scheduler

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/itskum47/judgeforge/internal/model"
	"github.com/itskum47/judgeforge/internal/observability"
	"github.com/itskum47/judgeforge/internal/rpc"
	"github.com/itskum47/judgeforge/internal/worker"
)

// Fixed small integers per §4.3; a try is counted only for infrastructure
// failures, never for a terminal user-code failure.
const (
	MaxCompilationTries = 3
	MaxEvaluationTries  = 3
)

// maxGroupSize bounds how many operations the dispatcher bundles into one
// job group (§4.3: "up to a small bound").
const maxGroupSize = 10

// reconciliationInterval is how often the scheduler sweeps the DB for
// SubmissionResults that should be queued but aren't (§4.3).
const reconciliationInterval = 30 * time.Second

// watchdogInterval is how often busy workers are checked for staleness.
const watchdogInterval = 20 * time.Second

// dispatchTick paces the dispatcher's attempts to pair a free worker with a
// queued operation when no event wakes it directly.
const dispatchTick = 200 * time.Millisecond

// circuitQueueThreshold is the queue depth past which new submissions are
// throttled by the admission-control circuit breaker (§11).
const circuitQueueThreshold = 200

// Scheduler is §4.3's EvaluationService: the authoritative queue plus the
// worker pool plus the three concurrent duties (dispatcher, worker
// watchdog, connection watchdog).
type Scheduler struct {
	queue      *Queue
	pool       *WorkerPool
	store      model.Store
	breaker    *CircuitBreaker
	submitRate RateLimiter

	scoringNotify func(ctx context.Context, submissionID, datasetID int64)
}

// New builds a Scheduler over workers (one rpc.Caller per shard) and store.
// scoringNotify is invoked once a SubmissionResult becomes fully evaluated
// (§4.3's "signals ScoringService via RPC"); it may be nil in tests.
func New(workers []rpc.Caller, store model.Store, scoringNotify func(ctx context.Context, submissionID, datasetID int64)) *Scheduler {
	return &Scheduler{
		queue:         NewQueue(),
		pool:          NewWorkerPool(workers),
		store:         store,
		breaker:       NewCircuitBreaker(circuitQueueThreshold),
		submitRate:    NewTokenBucketLimiter(),
		scoringNotify: scoringNotify,
	}
}

// Enqueue pushes op onto the queue, respecting the dedup invariant.
func (s *Scheduler) Enqueue(op *Operation) {
	s.queue.Push(op)
}

// AdmitSubmission reports whether submissionID's initial compile operation
// may be accepted right now, gating on both the circuit breaker's view of
// queue depth (§11) and the owning contest's minimum submission interval
// (§3's SubmissionRateLimit), enforced per participation. Callers outside
// this package should check this before enqueueing a submission's initial
// compile operation; it does not apply to the scheduler's own follow-on
// operations (evaluations after a successful compile, reconciliation),
// which must always be admitted to avoid stranding work already underway.
func (s *Scheduler) AdmitSubmission(ctx context.Context, submissionID int64) (bool, error) {
	admit := s.breaker.ShouldAdmit(s.queue.Len())
	observability.CircuitBreakerState.WithLabelValues("evaluation_service").Set(float64(s.breaker.GetState()))
	if !admit {
		return false, nil
	}

	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return false, err
	}
	task, err := s.store.GetTask(ctx, sub.TaskID)
	if err != nil {
		return false, err
	}
	if task.ContestID == nil {
		return true, nil
	}
	contest, err := s.store.GetContest(ctx, *task.ContestID)
	if err != nil {
		return false, err
	}

	key := strconv.FormatInt(sub.ParticipationID, 10)
	return s.submitRate.Allow(key, contest.SubmissionRateLimit), nil
}

// Start runs the dispatcher, worker watchdog, and reconciliation loops
// until ctx is cancelled. The connection watchdog duty is not a loop: it
// is wired by the caller through each shard's rpc.Client.OnDisconnect
// calling s.HandleDisconnect(shard) directly, since the transport already
// exposes that event as a callback.
func (s *Scheduler) Start(ctx context.Context) {
	go s.dispatchLoop(ctx)
	go s.watchdogLoop(ctx)
	go s.reconciliationLoop(ctx)
}

func (s *Scheduler) dispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(dispatchTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tryDispatch(ctx)
			s.refreshMetrics()
		}
	}
}

// refreshMetrics republishes the queue depth and worker saturation gauges
// (§11), called once per dispatch tick rather than on every queue mutation.
func (s *Scheduler) refreshMetrics() {
	depths := s.queue.LenByPriority()
	for p := PriorityExtraHigh; p <= PriorityExtraLow; p++ {
		observability.QueueDepth.WithLabelValues(p.String()).Set(float64(depths[p]))
	}

	statuses := s.pool.GetStatus()
	var connected, busy int
	for _, st := range statuses {
		if st.Connected {
			connected++
			if st.Busy {
				busy++
			}
		}
	}
	if connected == 0 {
		observability.WorkerSaturation.Set(0)
		return
	}
	observability.WorkerSaturation.Set(float64(busy) / float64(connected))
}

// tryDispatch pairs one free worker with a bundle of compatible queued
// operations, if both are available.
func (s *Scheduler) tryDispatch(ctx context.Context) {
	for {
		shard, ok := s.pool.FindWorker()
		if !ok {
			return
		}
		head := s.queue.Pop()
		if head == nil {
			return
		}

		ops := []*Operation{head}
		var deferred []*Operation
		for len(ops) < maxGroupSize {
			next := s.queue.Pop()
			if next == nil {
				break
			}
			if sameClass(head, next) {
				ops = append(ops, next)
			} else {
				deferred = append(deferred, next)
			}
		}
		for _, op := range deferred {
			s.queue.Push(op)
		}

		jobs := make([]worker.Job, 0, len(ops))
		kept := ops[:0]
		for _, op := range ops {
			job, err := s.buildJob(ctx, op)
			if err != nil {
				// The object this operation refers to is gone (cascading
				// delete) or otherwise unbuildable; drop it silently per
				// §4.3's cancellation rule.
				log.Printf("scheduler: dropping operation %s: %v", op.Key(), err)
				continue
			}
			jobs = append(jobs, job)
			kept = append(kept, op)
		}
		if len(kept) == 0 {
			continue
		}

		if err := s.pool.AcquireWorker(ctx, shard, kept, jobs, func(results []worker.JobResult, err error) {
			s.handleCompletion(ctx, shard, kept, results, err)
		}); err != nil {
			// Lost the race for this shard; put the ops back and retry.
			for _, op := range kept {
				s.queue.Push(op)
			}
			return
		}
	}
}

// buildJob assembles a worker.Job from an Operation by reading the
// submission, dataset, and (for evaluate kinds) testcase and prior
// compilation result from the store.
func (s *Scheduler) buildJob(ctx context.Context, op *Operation) (worker.Job, error) {
	sub, err := s.store.GetSubmission(ctx, op.ObjectID)
	if err != nil {
		return worker.Job{}, err
	}
	ds, err := s.store.GetDataset(ctx, op.DatasetID)
	if err != nil {
		return worker.Job{}, err
	}

	job := worker.Job{
		Kind:           op.Kind,
		SubmissionID:   op.ObjectID,
		DatasetID:      op.DatasetID,
		TaskTypeName:   ds.TaskTypeName,
		TaskTypeParams: ds.TaskTypeParams,
		Language:       sub.Language,
		Files:          sub.Files,
		TimeLimit:      ds.TimeLimit,
		MemoryLimit:    ds.MemoryLimit,
	}

	if !isCompileKind(op.Kind) {
		sr, err := s.store.GetSubmissionResult(ctx, op.ObjectID, op.DatasetID)
		if err != nil {
			return worker.Job{}, err
		}
		if sr != nil {
			job.Executables = sr.Executables
		}
		testcases, err := s.store.ListTestcases(ctx, op.DatasetID)
		if err != nil {
			return worker.Job{}, err
		}
		for _, tc := range testcases {
			if tc.Codename == op.TestcaseCodename {
				job.TestcaseCodename = tc.Codename
				job.InputDigest = tc.InputDigest
				job.OutputDigest = tc.OutputDigest
				break
			}
		}
	}

	return job, nil
}

// handleCompletion processes a job group's results, applying the ignore
// bookkeeping, the retry policy, and enqueueing follow-on operations.
func (s *Scheduler) handleCompletion(ctx context.Context, shard int, ops []*Operation, results []worker.JobResult, callErr error) {
	ignoreAll, toIgnore := s.pool.ReleaseWorker(shard)

	if callErr != nil {
		// Transport failure: treat every operation as an infrastructure
		// failure, subject to retry.
		s.breaker.RecordFailure()
		for _, op := range ops {
			s.recordInfraFailure(ctx, op)
		}
		return
	}
	s.breaker.RecordSuccess()

	ignored := make(map[string]struct{}, len(toIgnore))
	for _, k := range toIgnore {
		ignored[k] = struct{}{}
	}

	for i, op := range ops {
		if ignoreAll {
			continue
		}
		if _, skip := ignored[op.Key()]; skip {
			continue
		}
		if i >= len(results) {
			s.recordInfraFailure(ctx, op)
			continue
		}
		s.handleResult(ctx, op, results[i])
	}
}

func (s *Scheduler) handleResult(ctx context.Context, op *Operation, result worker.JobResult) {
	sr, err := s.store.GetSubmissionResult(ctx, op.ObjectID, op.DatasetID)
	if err != nil {
		log.Printf("scheduler: loading result for %s: %v", op.Key(), err)
		return
	}
	if sr == nil {
		sr = &model.SubmissionResult{SubmissionID: op.ObjectID, DatasetID: op.DatasetID}
	}

	if result.Err != "" {
		s.recordInfraFailureOnResult(ctx, op, sr)
		return
	}

	if isCompileKind(op.Kind) {
		sr.CompilationText = result.CompileText
		sr.Executables = result.Executables
		if result.CompileSuccess {
			sr.CompilationOutcome = model.CompilationOK
		} else {
			sr.CompilationOutcome = model.CompilationFail
		}
		if err := s.store.PutSubmissionResult(ctx, sr); err != nil {
			log.Printf("scheduler: persisting compile result for %s: %v", op.Key(), err)
			return
		}
		if sr.CompilationOutcome == model.CompilationOK {
			s.enqueueEvaluations(ctx, op)
		}
		return
	}

	eval := &model.Evaluation{
		SubmissionID:           op.ObjectID,
		DatasetID:              op.DatasetID,
		TestcaseCodename:       op.TestcaseCodename,
		Outcome:                result.Outcome,
		Text:                   result.EvaluateText,
		ExecutionTime:          result.ExecutionTime,
		ExecutionWallClockTime: result.ExecutionWallClockTime,
		ExecutionMemory:        result.ExecutionMemory,
	}
	if err := s.store.PutEvaluation(ctx, eval); err != nil {
		log.Printf("scheduler: persisting evaluation for %s: %v", op.Key(), err)
		return
	}

	s.maybeFinishEvaluation(ctx, op, sr)
}

// enqueueEvaluations pushes one evaluate operation per testcase in the
// dataset, following a successful compile (§4.3).
func (s *Scheduler) enqueueEvaluations(ctx context.Context, compileOp *Operation) {
	testcases, err := s.store.ListTestcases(ctx, compileOp.DatasetID)
	if err != nil {
		log.Printf("scheduler: listing testcases for %s: %v", compileOp.Key(), err)
		return
	}
	kind := worker.KindEvaluate
	if compileOp.Kind == worker.KindUserTestCompile {
		kind = worker.KindUserTestEvaluate
	}
	now := compileOp.Timestamp
	for _, tc := range testcases {
		s.queue.Push(&Operation{
			Kind:             kind,
			ObjectID:         compileOp.ObjectID,
			DatasetID:        compileOp.DatasetID,
			TestcaseCodename: tc.Codename,
			Priority:         compileOp.Priority,
			Timestamp:        now,
		})
	}
}

// maybeFinishEvaluation marks sr fully evaluated and notifies
// ScoringService once every testcase in the dataset has a recorded
// evaluation.
func (s *Scheduler) maybeFinishEvaluation(ctx context.Context, op *Operation, sr *model.SubmissionResult) {
	testcases, err := s.store.ListTestcases(ctx, op.DatasetID)
	if err != nil {
		log.Printf("scheduler: listing testcases for %s: %v", op.Key(), err)
		return
	}
	evals, err := s.store.ListEvaluations(ctx, op.ObjectID, op.DatasetID)
	if err != nil {
		log.Printf("scheduler: listing evaluations for %s: %v", op.Key(), err)
		return
	}
	if len(evals) < len(testcases) {
		return
	}
	sr.EvaluationOutcome = model.EvaluationOK
	if err := s.store.PutSubmissionResult(ctx, sr); err != nil {
		log.Printf("scheduler: persisting evaluation outcome for %s: %v", op.Key(), err)
		return
	}
	if s.scoringNotify != nil {
		s.scoringNotify(ctx, op.ObjectID, op.DatasetID)
	}
}

// recordInfraFailure loads the current SubmissionResult for op and applies
// the retry policy to it.
func (s *Scheduler) recordInfraFailure(ctx context.Context, op *Operation) {
	sr, err := s.store.GetSubmissionResult(ctx, op.ObjectID, op.DatasetID)
	if err != nil {
		log.Printf("scheduler: loading result for %s: %v", op.Key(), err)
		return
	}
	if sr == nil {
		sr = &model.SubmissionResult{SubmissionID: op.ObjectID, DatasetID: op.DatasetID}
	}
	s.recordInfraFailureOnResult(ctx, op, sr)
}

func (s *Scheduler) recordInfraFailureOnResult(ctx context.Context, op *Operation, sr *model.SubmissionResult) {
	var tries, max int
	counter := observability.EvaluationRetries
	if isCompileKind(op.Kind) {
		sr.CompilationTries++
		tries, max = sr.CompilationTries, MaxCompilationTries
		counter = observability.CompilationRetries
	} else {
		sr.EvaluationTries++
		tries, max = sr.EvaluationTries, MaxEvaluationTries
	}
	if err := s.store.PutSubmissionResult(ctx, sr); err != nil {
		log.Printf("scheduler: persisting tries for %s: %v", op.Key(), err)
		return
	}
	if tries >= max {
		counter.WithLabelValues("exhausted").Inc()
		log.Printf("scheduler: %s exhausted retries (%d/%d), marked failed at the infra level", op.Key(), tries, max)
		return
	}
	counter.WithLabelValues("retried").Inc()
	s.queue.Push(op)
}

func (s *Scheduler) watchdogLoop(ctx context.Context) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, op := range s.pool.CheckTimeouts(time.Now()) {
				s.queue.Push(op)
			}
		}
	}
}

// HandleDisconnect is the connection-watchdog duty (§4.3 duty 3): wire it
// into the shard's rpc.Client.OnDisconnect callback.
func (s *Scheduler) HandleDisconnect(shard int) {
	for _, op := range s.pool.OnDisconnected(shard) {
		s.queue.Push(op)
	}
}

func (s *Scheduler) reconciliationLoop(ctx context.Context) {
	ticker := time.NewTicker(reconciliationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reconcile(ctx)
		}
	}
}

// reconcile sweeps the DB for SubmissionResults that should be queued but
// aren't, covering crash recovery and missed notifications (§4.3).
func (s *Scheduler) reconcile(ctx context.Context) {
	pending, err := s.store.ListPendingSubmissionResults(ctx)
	if err != nil {
		log.Printf("scheduler: reconciliation sweep failed: %v", err)
		return
	}
	for _, sr := range pending {
		if sr.CompilationOutcome == model.CompilationUnset {
			if sr.CompilationTries >= MaxCompilationTries {
				continue
			}
			op := &Operation{
				Kind:      worker.KindCompile,
				ObjectID:  sr.SubmissionID,
				DatasetID: sr.DatasetID,
				Priority:  PriorityMedium,
				Timestamp: time.Now(),
			}
			if !s.queue.Contains(op.Key()) {
				s.queue.Push(op)
			}
			continue
		}
		if sr.CompilationOutcome == model.CompilationOK && sr.EvaluationOutcome == model.EvaluationUnset && sr.EvaluationTries < MaxEvaluationTries {
			evals, err := s.store.ListEvaluations(ctx, sr.SubmissionID, sr.DatasetID)
			if err != nil {
				log.Printf("scheduler: reconciliation listing evaluations: %v", err)
				continue
			}
			done := make(map[string]struct{}, len(evals))
			for _, e := range evals {
				done[e.TestcaseCodename] = struct{}{}
			}
			testcases, err := s.store.ListTestcases(ctx, sr.DatasetID)
			if err != nil {
				log.Printf("scheduler: reconciliation listing testcases: %v", err)
				continue
			}
			for _, tc := range testcases {
				if _, ok := done[tc.Codename]; ok {
					continue
				}
				op := &Operation{
					Kind:             worker.KindEvaluate,
					ObjectID:         sr.SubmissionID,
					DatasetID:        sr.DatasetID,
					TestcaseCodename: tc.Codename,
					Priority:         PriorityMedium,
					Timestamp:        time.Now(),
				}
				if !s.queue.Contains(op.Key()) {
					s.queue.Push(op)
				}
			}
		}
	}
}

// GetStatus exposes worker pool state for admin reporting.
func (s *Scheduler) GetStatus() []Status {
	return s.pool.GetStatus()
}

// QueueLen reports the number of pending operations.
func (s *Scheduler) QueueLen() int {
	return s.queue.Len()
}
