// Package model defines the durable row types of §3 and the Store
// interface the rest of judgeforge is built against. The schema and ORM
// themselves are out of scope (§1): this package only fixes the shape a
// transactional relational store must expose.
package model

import "time"

// ScoreMode is a Task's score_mode.
type ScoreMode string

const (
	ScoreModeMax           ScoreMode = "max"
	ScoreModeMaxSubtask    ScoreMode = "max_subtask"
	ScoreModeMaxTokenedLast ScoreMode = "max_tokened_last"
)

// TokenMode is the mode of a token policy block (§4.6).
type TokenMode string

const (
	TokenModeDisabled TokenMode = "disabled"
	TokenModeFinite   TokenMode = "finite"
	TokenModeInfinite TokenMode = "infinite"
)

// TokenPolicy is the per-contest or per-task token configuration of §4.6.
type TokenPolicy struct {
	Mode TokenMode

	GenInitial int
	GenNumber  int
	GenInterval time.Duration
	GenMax     *int // nil means uncapped
	MaxNumber  *int // nil means no hard cap
	MinInterval time.Duration
}

// Contest is §3's Contest entity.
type Contest struct {
	ID          int64
	Name        string
	Description string
	Languages   []string
	Start       time.Time
	Stop        time.Time
	PerUserTime *time.Duration // non-nil => USACO-style
	Token       TokenPolicy
	SubmissionRateLimit time.Duration
	UserTestRateLimit   time.Duration
	ScorePrecision int
	Timezone       string

	// Authentication policy (§4.7).
	AllowPasswordAuthentication bool
	IPAutologin                 bool
	IPRestriction               bool
	BlockHiddenParticipations   bool
	CookieDuration              time.Duration
}

// Task is §3's Task entity. ContestID is nil for unassigned tasks.
type Task struct {
	ID            int64
	ContestID     *int64
	Num           int
	Name          string
	Token         TokenPolicy
	ActiveDataset int64
	ScoreMode     ScoreMode
	ScorePrecision int
	FeedbackLevel  FeedbackLevel
}

// FeedbackLevel gates how much detail a contestant sees (§7/GLOSSARY).
type FeedbackLevel string

const (
	FeedbackRestricted FeedbackLevel = "restricted"
	FeedbackFull       FeedbackLevel = "full"
)

// Dataset is §3's Dataset entity. TaskTypeParams/ScoreTypeParams hold the
// opaque JSON parameters interpreted by the named task/score type plugin.
type Dataset struct {
	ID              int64
	TaskID          int64
	Description     string
	TimeLimit       float64 // seconds, fractional
	MemoryLimit     int64   // bytes
	TaskTypeName    string
	TaskTypeParams  string
	ScoreTypeName   string
	ScoreTypeParams string
	Autojudge       bool
}

// Testcase is §3's Testcase entity.
type Testcase struct {
	ID          int64
	DatasetID   int64
	Codename    string
	InputDigest string
	OutputDigest string
	Public      bool
}

// User is the global principal; Participation is its contest-local
// projection (§3).
type User struct {
	ID       int64
	Username string
	PasswordHash string
}

// Participation binds a User to a Contest.
type Participation struct {
	ID             int64
	UserID         int64
	ContestID      int64
	PasswordOverride string
	IPAllowList    []string
	Hidden         bool
	Unrestricted   bool
	StartingTime   *time.Time // set for USACO-style contests
	DelayTime      time.Duration
	ExtraTime      time.Duration
}

// CompilationOutcome is a SubmissionResult's compilation_outcome.
type CompilationOutcome string

const (
	CompilationUnset CompilationOutcome = "unset"
	CompilationOK    CompilationOutcome = "ok"
	CompilationFail  CompilationOutcome = "fail"
)

// EvaluationOutcome is a SubmissionResult's evaluation_outcome.
type EvaluationOutcome string

const (
	EvaluationUnset EvaluationOutcome = "unset"
	EvaluationOK    EvaluationOutcome = "ok"
)

// Submission is §3's Submission entity.
type Submission struct {
	ID              int64
	ParticipationID int64
	TaskID          int64
	Timestamp       time.Time
	Language        string
	Files           map[string]string // filename -> digest
	TokenID         *int64
	Official        bool
	Comment         string
	OpaqueID        string
}

// SubmissionResult is §3's SubmissionResult entity, one row per
// (submission, dataset).
type SubmissionResult struct {
	SubmissionID int64
	DatasetID    int64

	CompilationOutcome CompilationOutcome
	CompilationText    string
	CompilationTries   int
	Executables        map[string]string // filename -> digest

	EvaluationOutcome EvaluationOutcome
	EvaluationTries   int

	Score               float64
	ScoreDetails        string // opaque JSON
	PublicScore         float64
	PublicScoreDetails  string
	RankingScoreDetails []string
	ScoredAt            *time.Time
}

// Evaluation is §3's Evaluation entity, one per (submission_result,
// testcase codename).
type Evaluation struct {
	SubmissionID          int64
	DatasetID             int64
	TestcaseCodename      string
	Outcome               float64
	Text                  string
	ExecutionTime         float64
	ExecutionWallClockTime float64
	ExecutionMemory       int64
}

// Token is §3's Token entity. At most one per submission.
type Token struct {
	ID           int64
	SubmissionID int64
	Timestamp    time.Time
}

// FSObject is a content-addressed blob row (§3/§4.4). Digest is the SHA-1
// hex of the content and is the primary key.
type FSObject struct {
	Digest      string
	Description string
	Size        int64
}
