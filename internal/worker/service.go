package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/itskum47/judgeforge/internal/filecacher"
	"github.com/itskum47/judgeforge/internal/model"
	"github.com/itskum47/judgeforge/internal/sandbox"
	"github.com/itskum47/judgeforge/internal/tasktype"
)

// ErrBusy is returned by ExecuteJobGroup when the worker already has a job
// group in flight. The Worker runs one group at a time (§4.2: the sandbox
// contract assumes exclusive use of the machine's resources), the same
// concurrency discipline as the source agent's single-in-flight `busy`
// flag guarding its /execute handler.
var ErrBusy = errors.New("worker: busy with another job group")

// Service implements §4.2's Worker: ExecuteJobGroup and PrecacheFiles.
type Service struct {
	runner sandbox.Runner
	cache  *filecacher.FileCacher
	store  model.Store // only used by PrecacheFiles

	mu   sync.Mutex
	busy bool
}

// NewService builds a Worker bound to runner, cache and store.
func NewService(runner sandbox.Runner, cache *filecacher.FileCacher, store model.Store) *Service {
	return &Service{runner: runner, cache: cache, store: store}
}

// ExecuteJobGroup runs jobs sequentially in sandboxes and returns one
// JobResult per job, in order. Jobs are independent (§4.2): a single job's
// infrastructure failure is reported in that job's Err field, it never
// aborts the rest of the group.
func (s *Service) ExecuteJobGroup(ctx context.Context, jobs []Job) ([]JobResult, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.busy = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	results := make([]JobResult, len(jobs))
	for i, job := range jobs {
		results[i] = s.executeOne(ctx, job)
	}
	return results, nil
}

func (s *Service) executeOne(ctx context.Context, job Job) JobResult {
	tt, err := tasktype.New(job.TaskTypeName, s.runner, s.cache)
	if err != nil {
		return JobResult{Kind: job.Kind, Err: err.Error()}
	}

	if isCompile(job.Kind) {
		res, err := tt.Compile(ctx, tasktype.CompileInput{
			Files:    job.Files,
			Language: job.Language,
			Params:   job.TaskTypeParams,
		})
		if err != nil {
			return JobResult{Kind: job.Kind, Err: err.Error()}
		}
		return JobResult{
			Kind:           job.Kind,
			CompileSuccess: res.Success,
			CompileText:    res.Text,
			Executables:    res.Executables,
		}
	}

	res, err := tt.EvaluateTestcase(ctx, tasktype.EvaluateInput{
		Codename:     job.TestcaseCodename,
		Executables:  job.Executables,
		InputDigest:  job.InputDigest,
		OutputDigest: job.OutputDigest,
		TimeLimit:    job.TimeLimit,
		MemoryLimit:  job.MemoryLimit,
		Params:       job.TaskTypeParams,
	})
	if err != nil {
		return JobResult{Kind: job.Kind, TestcaseCodename: job.TestcaseCodename, Err: err.Error()}
	}
	return JobResult{
		Kind:                   job.Kind,
		TestcaseCodename:       job.TestcaseCodename,
		Outcome:                res.Outcome,
		EvaluateText:           res.Text,
		ExecutionTime:          res.ExecutionTime,
		ExecutionWallClockTime: res.ExecutionWallClockTime,
		ExecutionMemory:        res.ExecutionMemory,
	}
}

// PrecacheFiles warms the local FileCacher with every file the contest's
// tasks reference, so the first evaluate job after a worker restart does
// not pay a backing-store round trip (§4.2, grounded on workerpool.py's
// on_worker_connected calling precache_files when a worker reconnects).
func (s *Service) PrecacheFiles(ctx context.Context, contestID int64) error {
	if s.store == nil {
		return fmt.Errorf("worker: precache_files requires a store")
	}
	digests, err := s.store.ListContestFileDigests(ctx, contestID)
	if err != nil {
		return fmt.Errorf("worker: listing contest files: %w", err)
	}
	for _, digest := range digests {
		// GetAsPath returns at once for a digest already on local disk and
		// downloads it otherwise; Exists is no guide here, since it also
		// reports digests held only by the backing store.
		if _, err := s.cache.GetAsPath(ctx, digest, filecacher.Gosched); err != nil {
			log.Printf("worker: precache of %s failed: %v", digest, err)
		}
	}
	return nil
}
