// Package scoring implements §4.5's ScoringService: turning a completed
// SubmissionResult into a score via the task's score type, and the
// cross-submission task-score aggregation rules of §3's score_mode.
package scoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/itskum47/judgeforge/internal/model"
	"github.com/itskum47/judgeforge/internal/rpc"
	"github.com/itskum47/judgeforge/internal/scoretype"
)

// Service implements the ScoringService notification handler.
type Service struct {
	store model.Store
	proxy rpc.Caller // push target; a FakeClient when no ProxyService is configured
	lock  *model.ScoreLock // serializes Score per (participation, task); nil disables locking
}

// NewService builds a ScoringService bound to store, pushing active-dataset
// score changes to proxy.
func NewService(store model.Store, proxy rpc.Caller) *Service {
	return &Service{store: store, proxy: proxy}
}

// WithLock returns a copy of s that serializes Score calls for the same
// (participation, task) pair through lock (§11), so two shards racing to
// rescore the same submission (e.g. a token play landing right after a
// rejudge) can't interleave their reads and writes.
func (s *Service) WithLock(lock *model.ScoreLock) *Service {
	return &Service{store: s.store, proxy: s.proxy, lock: lock}
}

// Score implements §4.5's Operation: load the SubmissionResult and its
// Evaluations, run the dataset's score type over them, persist the result,
// and push to ProxyService if the dataset is the task's active one.
func (s *Service) Score(ctx context.Context, submissionID, datasetID int64) error {
	sr, err := s.store.GetSubmissionResult(ctx, submissionID, datasetID)
	if err != nil {
		return fmt.Errorf("scoring: loading submission result: %w", err)
	}
	if sr == nil {
		return fmt.Errorf("scoring: no submission result for (%d, %d)", submissionID, datasetID)
	}

	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("scoring: loading submission: %w", err)
	}

	if s.lock != nil {
		owner := uuid.NewString()
		ok, err := s.lock.Acquire(ctx, sub.ParticipationID, sub.TaskID, owner)
		if err != nil {
			return fmt.Errorf("scoring: acquiring score lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("scoring: submission %d's task is already being scored elsewhere, retry later", submissionID)
		}
		defer s.lock.Release(ctx, sub.ParticipationID, sub.TaskID)
	}

	task, err := s.store.GetTask(ctx, sub.TaskID)
	if err != nil {
		return fmt.Errorf("scoring: loading task: %w", err)
	}
	ds, err := s.store.GetDataset(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("scoring: loading dataset: %w", err)
	}
	testcases, err := s.store.ListTestcases(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("scoring: loading testcases: %w", err)
	}
	evals, err := s.store.ListEvaluations(ctx, submissionID, datasetID)
	if err != nil {
		return fmt.Errorf("scoring: loading evaluations: %w", err)
	}

	st, err := scoretype.New(ds.ScoreTypeName, ds.ScoreTypeParams)
	if err != nil {
		return fmt.Errorf("scoring: building score type: %w", err)
	}

	details := st.ComputeScore(buildOutcomes(testcases, evals))

	sr.Score = scoretype.FormatScore(details.Score, task.ScorePrecision)
	sr.ScoreDetails = details.Details
	sr.PublicScore = scoretype.FormatScore(details.PublicScore, task.ScorePrecision)
	sr.PublicScoreDetails = details.PublicDetails
	sr.RankingScoreDetails = details.RankingStrings
	now := time.Now()
	sr.ScoredAt = &now

	if err := s.store.PutSubmissionResult(ctx, sr); err != nil {
		return fmt.Errorf("scoring: persisting score: %w", err)
	}

	if task.ActiveDataset == datasetID && s.proxy != nil {
		push := ScorePush{
			SubmissionID:  submissionID,
			ParticipationID: sub.ParticipationID,
			TaskID:          sub.TaskID,
			Score:           sr.Score,
			PublicScore:     sr.PublicScore,
			RankingStrings:  sr.RankingScoreDetails,
		}
		if err := s.proxy.Call(ctx, "SubmissionScored", push, nil); err != nil {
			return fmt.Errorf("scoring: pushing to proxy: %w", err)
		}
	}

	return nil
}

// ScorePush is what ScoringService forwards to ProxyService for an
// active-dataset score change (§6).
type ScorePush struct {
	SubmissionID    int64
	ParticipationID int64
	TaskID          int64
	Score           float64
	PublicScore     float64
	RankingStrings  []string
}

// buildOutcomes orders evaluations by testcase codename order (the order
// testcases were listed in, which group score types assume is subtask
// order) and attaches each testcase's public flag.
func buildOutcomes(testcases []*model.Testcase, evals []*model.Evaluation) []scoretype.TestcaseOutcome {
	publicByCodename := make(map[string]bool, len(testcases))
	order := make(map[string]int, len(testcases))
	for i, tc := range testcases {
		publicByCodename[tc.Codename] = tc.Public
		order[tc.Codename] = i
	}

	sorted := make([]*model.Evaluation, len(evals))
	copy(sorted, evals)
	sort.Slice(sorted, func(i, j int) bool {
		return order[sorted[i].TestcaseCodename] < order[sorted[j].TestcaseCodename]
	})

	outcomes := make([]scoretype.TestcaseOutcome, len(sorted))
	for i, e := range sorted {
		outcomes[i] = scoretype.TestcaseOutcome{
			Codename: e.TestcaseCodename,
			Outcome:  e.Outcome,
			Public:   publicByCodename[e.TestcaseCodename],
		}
	}
	return outcomes
}
