package tokening

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/itskum47/judgeforge/internal/model"
	"github.com/itskum47/judgeforge/internal/observability"
)

// UnacceptableTokenError is returned when a token request can't be
// accepted because the wallet is empty or still in cooldown (§4.6).
type UnacceptableTokenError struct {
	Reason string
}

func (e *UnacceptableTokenError) Error() string {
	return fmt.Sprintf("tokening: token request rejected: %s", e.Reason)
}

// TokenAlreadyPlayedError is returned when the submission already has a
// token.
type TokenAlreadyPlayedError struct {
	SubmissionID int64
}

func (e *TokenAlreadyPlayedError) Error() string {
	return fmt.Sprintf("tokening: submission %d already has a token", e.SubmissionID)
}

// AcceptToken validates and persists a token play for submission at
// timestamp, per §4.6's "token acceptance" rule: available != 0 AND
// unlock_time is nil AND submission.token is nil.
func AcceptToken(ctx context.Context, store model.Store, submission *model.Submission, contest model.Contest, task model.Task, participation model.Participation, timestamp time.Time) (*model.Token, error) {
	if submission.TokenID != nil {
		return nil, &TokenAlreadyPlayedError{SubmissionID: submission.ID}
	}

	start := EffectiveStart(contest, participation)

	history, err := store.ListTokenHistory(ctx, participation.ID, timestamp)
	if err != nil {
		return nil, fmt.Errorf("tokening: loading token history: %w", err)
	}
	var contestHistory, taskHistory []time.Time
	for _, h := range history {
		contestHistory = append(contestHistory, h.Timestamp)
		if h.TaskID == task.ID {
			taskHistory = append(taskHistory, h.Timestamp)
		}
	}

	avail, err := TokensAvailable(contest.Token, task.Token, start, contestHistory, taskHistory, timestamp)
	if err != nil {
		return nil, err
	}
	observability.TokenWalletRemaining.
		WithLabelValues(strconv.FormatInt(participation.ID, 10), strconv.FormatInt(task.ID, 10)).
		Set(float64(avail.Available))

	if avail.Available == 0 || avail.UnlockTime != nil {
		return nil, &UnacceptableTokenError{Reason: "no tokens available"}
	}

	token := &model.Token{SubmissionID: submission.ID, Timestamp: timestamp}
	if err := store.PutToken(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}
