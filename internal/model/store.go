package model

import (
	"context"
	"time"
)

// Store is the transactional relational store the core assumes (§1/§3).
// DB access uses short transactions; sessions are scoped and rolled back on
// exit unless explicitly committed (§5). Concrete backends (Postgres via
// pgx, or an in-memory store for tests) implement this.
type Store interface {
	GetContest(ctx context.Context, id int64) (*Contest, error)
	GetTask(ctx context.Context, id int64) (*Task, error)
	GetDataset(ctx context.Context, id int64) (*Dataset, error)
	ListTestcases(ctx context.Context, datasetID int64) ([]*Testcase, error)

	GetParticipation(ctx context.Context, id int64) (*Participation, error)
	GetSubmission(ctx context.Context, id int64) (*Submission, error)

	// GetUser and GetUserByUsername back contestant authentication (§4.7).
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// GetParticipationByContestAndUser resolves a (contest, user) pair to
	// its participation row, nil/nil if the user isn't registered in the
	// contest, for login (§4.7).
	GetParticipationByContestAndUser(ctx context.Context, contestID, userID int64) (*Participation, error)

	// ListParticipations returns every participation in a contest, for the
	// IP autologin scan of §4.7 (it must find the one participation, if
	// any, whose ip_allow_list contains the caller's address).
	ListParticipations(ctx context.Context, contestID int64) ([]*Participation, error)

	// GetSubmissionResult returns nil, nil if the (submission, dataset)
	// pair has never been scheduled — absence means "not scheduled yet"
	// (§3 invariant).
	GetSubmissionResult(ctx context.Context, submissionID, datasetID int64) (*SubmissionResult, error)
	PutSubmissionResult(ctx context.Context, sr *SubmissionResult) error

	ListEvaluations(ctx context.Context, submissionID, datasetID int64) ([]*Evaluation, error)
	PutEvaluation(ctx context.Context, e *Evaluation) error

	// ListPendingSubmissionResults returns SubmissionResults whose
	// compilation or evaluation is not finished, for the periodic
	// reconciliation sweep of §4.3.
	ListPendingSubmissionResults(ctx context.Context) ([]*SubmissionResult, error)

	GetToken(ctx context.Context, submissionID int64) (*Token, error)
	PutToken(ctx context.Context, t *Token) error

	// ListTokenHistory returns timestamps (ascending) of all tokens played
	// by participationID up to and including `upTo`, together with the
	// task id each token's submission belongs to, for §4.6's token
	// accounting.
	ListTokenHistory(ctx context.Context, participationID int64, upTo time.Time) ([]TokenHistoryEntry, error)

	GetFSObject(ctx context.Context, digest string) (*FSObject, error)
	PutFSObjectRow(ctx context.Context, obj *FSObject) error
	DeleteFSObjectRow(ctx context.Context, digest string) error

	// ListContestFileDigests returns every testcase input/output digest
	// referenced by the contest's tasks' active datasets, for the
	// Worker's precache_files operation (§4.2).
	ListContestFileDigests(ctx context.Context, contestID int64) ([]string, error)
}

// TokenHistoryEntry is one row of a participation's token history.
type TokenHistoryEntry struct {
	Timestamp time.Time
	TaskID    int64
}
