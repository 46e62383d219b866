package scoring

import (
	"context"
	"testing"

	"github.com/itskum47/judgeforge/internal/model"
	"github.com/itskum47/judgeforge/internal/rpc"
)

func TestServiceScoreSum(t *testing.T) {
	ctx := context.Background()
	store := model.NewMemoryStore()

	store.PutTask(&model.Task{ID: 1, ActiveDataset: 10})
	store.PutDataset(&model.Dataset{ID: 10, TaskID: 1, ScoreTypeName: "sum", ScoreTypeParams: `{"max_score":20}`})
	store.PutTestcase(&model.Testcase{ID: 1, DatasetID: 10, Codename: "t1", Public: true})
	store.PutTestcase(&model.Testcase{ID: 2, DatasetID: 10, Codename: "t2", Public: false})
	store.PutSubmission(&model.Submission{ID: 100, TaskID: 1, ParticipationID: 5})
	if err := store.PutSubmissionResult(ctx, &model.SubmissionResult{SubmissionID: 100, DatasetID: 10}); err != nil {
		t.Fatalf("PutSubmissionResult: %v", err)
	}
	if err := store.PutEvaluation(ctx, &model.Evaluation{SubmissionID: 100, DatasetID: 10, TestcaseCodename: "t1", Outcome: 1.0}); err != nil {
		t.Fatalf("PutEvaluation: %v", err)
	}
	if err := store.PutEvaluation(ctx, &model.Evaluation{SubmissionID: 100, DatasetID: 10, TestcaseCodename: "t2", Outcome: 0.5}); err != nil {
		t.Fatalf("PutEvaluation: %v", err)
	}

	svc := NewService(store, rpc.NewFakeClient(rpc.ServiceCoord{Name: "ProxyService"}))
	// No active-dataset push expected to succeed since the proxy is a
	// FakeClient; Score should still persist and only error if it tries
	// to push. Exercise the non-active-dataset path by pointing the task
	// elsewhere first.
	store.PutTask(&model.Task{ID: 1, ActiveDataset: 999})

	if err := svc.Score(ctx, 100, 10); err != nil {
		t.Fatalf("Score: %v", err)
	}

	sr, err := store.GetSubmissionResult(ctx, 100, 10)
	if err != nil {
		t.Fatalf("GetSubmissionResult: %v", err)
	}
	if sr.Score != 15 {
		t.Fatalf("Score = %v, want 15", sr.Score)
	}
	if sr.ScoredAt == nil {
		t.Fatalf("ScoredAt not set")
	}
}

func TestServiceScorePushesToActiveDatasetProxy(t *testing.T) {
	ctx := context.Background()
	store := model.NewMemoryStore()

	store.PutTask(&model.Task{ID: 1, ActiveDataset: 10})
	store.PutDataset(&model.Dataset{ID: 10, TaskID: 1, ScoreTypeName: "sum", ScoreTypeParams: `{"max_score":20}`})
	store.PutTestcase(&model.Testcase{ID: 1, DatasetID: 10, Codename: "t1", Public: true})
	store.PutSubmission(&model.Submission{ID: 100, TaskID: 1, ParticipationID: 5})
	store.PutSubmissionResult(ctx, &model.SubmissionResult{SubmissionID: 100, DatasetID: 10})
	store.PutEvaluation(ctx, &model.Evaluation{SubmissionID: 100, DatasetID: 10, TestcaseCodename: "t1", Outcome: 1.0})

	// A FakeClient always errors, so pushing to the active dataset's
	// proxy here must surface that error.
	svc := NewService(store, rpc.NewFakeClient(rpc.ServiceCoord{Name: "ProxyService"}))
	if err := svc.Score(ctx, 100, 10); err == nil {
		t.Fatalf("expected the configured-absent proxy push to surface an error")
	}
}

func TestTaskScoreMax(t *testing.T) {
	got := TaskScore(model.ScoreModeMax, []SubmissionScore{{Score: 30}, {Score: 60}, {Score: 20}})
	if got != 60 {
		t.Fatalf("TaskScore(max) = %v, want 60", got)
	}
}

func TestTaskScoreMaxTokenedLastS6(t *testing.T) {
	subs := []SubmissionScore{
		{Score: 30, Tokened: true},
		{Score: 60, Tokened: false},
		{Score: 20, Tokened: true},
	}
	if got := TaskScore(model.ScoreModeMaxTokenedLast, subs); got != 30 {
		t.Fatalf("before playing token on submission 2: TaskScore = %v, want 30", got)
	}

	subs[1].Tokened = true
	if got := TaskScore(model.ScoreModeMaxTokenedLast, subs); got != 60 {
		t.Fatalf("after playing token on submission 2: TaskScore = %v, want 60", got)
	}
}

func TestTaskScoreMaxSubtask(t *testing.T) {
	subs := []SubmissionScore{
		{RankingStrings: []string{"30.00", "0.00"}},
		{RankingStrings: []string{"10.00", "40.00"}},
	}
	if got := TaskScore(model.ScoreModeMaxSubtask, subs); got != 70 {
		t.Fatalf("TaskScore(max_subtask) = %v, want 70 (30 best subtask1 + 40 best subtask2)", got)
	}
}
