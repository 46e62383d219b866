package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/itskum47/judgeforge/internal/model"
)

func TestAdmitSubmissionRespectsContestRateLimit(t *testing.T) {
	ctx := context.Background()
	store := model.NewMemoryStore()

	contestID := int64(1)
	store.PutTask(&model.Task{ID: 1, ContestID: &contestID})
	store.PutContest(&model.Contest{ID: contestID, SubmissionRateLimit: time.Hour})
	store.PutSubmission(&model.Submission{ID: 100, TaskID: 1, ParticipationID: 5})
	store.PutSubmission(&model.Submission{ID: 101, TaskID: 1, ParticipationID: 5})
	store.PutSubmission(&model.Submission{ID: 200, TaskID: 1, ParticipationID: 6})

	s := New(nil, store, nil)

	admit, err := s.AdmitSubmission(ctx, 100)
	if err != nil || !admit {
		t.Fatalf("first submission from participation 5: admit=%v err=%v", admit, err)
	}

	admit, err = s.AdmitSubmission(ctx, 101)
	if err != nil {
		t.Fatalf("second submission from participation 5: %v", err)
	}
	if admit {
		t.Fatal("second submission from the same participation within the rate limit should be denied")
	}

	admit, err = s.AdmitSubmission(ctx, 200)
	if err != nil || !admit {
		t.Fatalf("first submission from a different participation: admit=%v err=%v", admit, err)
	}
}

func TestAdmitSubmissionNoContestNoLimit(t *testing.T) {
	ctx := context.Background()
	store := model.NewMemoryStore()

	store.PutTask(&model.Task{ID: 1})
	store.PutSubmission(&model.Submission{ID: 100, TaskID: 1, ParticipationID: 5})

	s := New(nil, store, nil)

	for i := 0; i < 3; i++ {
		admit, err := s.AdmitSubmission(ctx, 100)
		if err != nil || !admit {
			t.Fatalf("iteration %d: unassigned-contest task should never be rate-limited: admit=%v err=%v", i, admit, err)
		}
	}
}
