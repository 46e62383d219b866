package model

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store against a PostgreSQL database. Large
// object content backing FSObject is handled separately by
// internal/filecacher's DBBackend, which uses the same pool.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// NewPostgresStore opens a pooled connection to connString.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 25
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return &PostgresStore{Pool: pool}, nil
}

func (s *PostgresStore) Close() { s.Pool.Close() }

func (s *PostgresStore) GetContest(ctx context.Context, id int64) (*Contest, error) {
	const q = `SELECT id, name, description, start, stop, per_user_time, score_precision, timezone,
		allow_password_authentication, ip_autologin, ip_restriction, block_hidden_participations, cookie_duration
		FROM contests WHERE id = $1`
	var c Contest
	var perUserSeconds *int64
	var cookieDurationSeconds int64
	err := s.Pool.QueryRow(ctx, q, id).Scan(
		&c.ID, &c.Name, &c.Description, &c.Start, &c.Stop, &perUserSeconds, &c.ScorePrecision, &c.Timezone,
		&c.AllowPasswordAuthentication, &c.IPAutologin, &c.IPRestriction, &c.BlockHiddenParticipations,
		&cookieDurationSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if perUserSeconds != nil {
		d := time.Duration(*perUserSeconds) * time.Second
		c.PerUserTime = &d
	}
	c.CookieDuration = time.Duration(cookieDurationSeconds) * time.Second
	return &c, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id int64) (*Task, error) {
	const q = `SELECT id, contest_id, num, name, active_dataset, score_mode, score_precision
		FROM tasks WHERE id = $1`
	var t Task
	var contestID *int64
	err := s.Pool.QueryRow(ctx, q, id).Scan(
		&t.ID, &contestID, &t.Num, &t.Name, &t.ActiveDataset, &t.ScoreMode, &t.ScorePrecision)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.ContestID = contestID
	return &t, nil
}

func (s *PostgresStore) GetDataset(ctx context.Context, id int64) (*Dataset, error) {
	const q = `SELECT id, task_id, description, time_limit, memory_limit,
		task_type_name, task_type_params, score_type_name, score_type_params, autojudge
		FROM datasets WHERE id = $1`
	var d Dataset
	err := s.Pool.QueryRow(ctx, q, id).Scan(
		&d.ID, &d.TaskID, &d.Description, &d.TimeLimit, &d.MemoryLimit,
		&d.TaskTypeName, &d.TaskTypeParams, &d.ScoreTypeName, &d.ScoreTypeParams, &d.Autojudge)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PostgresStore) ListTestcases(ctx context.Context, datasetID int64) ([]*Testcase, error) {
	const q = `SELECT id, dataset_id, codename, input_digest, output_digest, public
		FROM testcases WHERE dataset_id = $1 ORDER BY codename`
	rows, err := s.Pool.Query(ctx, q, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Testcase
	for rows.Next() {
		var tc Testcase
		if err := rows.Scan(&tc.ID, &tc.DatasetID, &tc.Codename, &tc.InputDigest, &tc.OutputDigest, &tc.Public); err != nil {
			return nil, err
		}
		out = append(out, &tc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetParticipation(ctx context.Context, id int64) (*Participation, error) {
	const q = `SELECT id, user_id, contest_id, password_override, ip_allow_list, hidden, unrestricted,
		starting_time, delay_time, extra_time
		FROM participations WHERE id = $1`
	var p Participation
	var startingTime *time.Time
	var delaySeconds, extraSeconds int64
	err := s.Pool.QueryRow(ctx, q, id).Scan(
		&p.ID, &p.UserID, &p.ContestID, &p.PasswordOverride, &p.IPAllowList, &p.Hidden, &p.Unrestricted,
		&startingTime, &delaySeconds, &extraSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.StartingTime = startingTime
	p.DelayTime = time.Duration(delaySeconds) * time.Second
	p.ExtraTime = time.Duration(extraSeconds) * time.Second
	return &p, nil
}

func (s *PostgresStore) scanParticipation(rows pgx.Rows) (*Participation, error) {
	var p Participation
	var startingTime *time.Time
	var delaySeconds, extraSeconds int64
	if err := rows.Scan(&p.ID, &p.UserID, &p.ContestID, &p.PasswordOverride, &p.IPAllowList, &p.Hidden,
		&p.Unrestricted, &startingTime, &delaySeconds, &extraSeconds); err != nil {
		return nil, err
	}
	p.StartingTime = startingTime
	p.DelayTime = time.Duration(delaySeconds) * time.Second
	p.ExtraTime = time.Duration(extraSeconds) * time.Second
	return &p, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*User, error) {
	const q = `SELECT id, username, password_hash FROM users WHERE id = $1`
	var u User
	err := s.Pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	const q = `SELECT id, username, password_hash FROM users WHERE username = $1`
	var u User
	err := s.Pool.QueryRow(ctx, q, username).Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) GetParticipationByContestAndUser(ctx context.Context, contestID, userID int64) (*Participation, error) {
	const q = `SELECT id, user_id, contest_id, password_override, ip_allow_list, hidden, unrestricted,
		starting_time, delay_time, extra_time
		FROM participations WHERE contest_id = $1 AND user_id = $2`
	rows, err := s.Pool.Query(ctx, q, contestID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return s.scanParticipation(rows)
}

func (s *PostgresStore) ListParticipations(ctx context.Context, contestID int64) ([]*Participation, error) {
	const q = `SELECT id, user_id, contest_id, password_override, ip_allow_list, hidden, unrestricted,
		starting_time, delay_time, extra_time
		FROM participations WHERE contest_id = $1 ORDER BY id`
	rows, err := s.Pool.Query(ctx, q, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Participation
	for rows.Next() {
		p, err := s.scanParticipation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetSubmission(ctx context.Context, id int64) (*Submission, error) {
	const q = `SELECT id, participation_id, task_id, timestamp, language, token_id, official, comment, opaque_id
		FROM submissions WHERE id = $1`
	var sub Submission
	var tokenID *int64
	err := s.Pool.QueryRow(ctx, q, id).Scan(
		&sub.ID, &sub.ParticipationID, &sub.TaskID, &sub.Timestamp, &sub.Language, &tokenID,
		&sub.Official, &sub.Comment, &sub.OpaqueID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sub.TokenID = tokenID
	return &sub, nil
}

func (s *PostgresStore) GetSubmissionResult(ctx context.Context, submissionID, datasetID int64) (*SubmissionResult, error) {
	const q = `SELECT submission_id, dataset_id, compilation_outcome, compilation_text, compilation_tries,
		evaluation_outcome, evaluation_tries, score, score_details, public_score, public_score_details, scored_at
		FROM submission_results WHERE submission_id = $1 AND dataset_id = $2`
	var sr SubmissionResult
	err := s.Pool.QueryRow(ctx, q, submissionID, datasetID).Scan(
		&sr.SubmissionID, &sr.DatasetID, &sr.CompilationOutcome, &sr.CompilationText, &sr.CompilationTries,
		&sr.EvaluationOutcome, &sr.EvaluationTries, &sr.Score, &sr.ScoreDetails, &sr.PublicScore,
		&sr.PublicScoreDetails, &sr.ScoredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sr, nil
}

func (s *PostgresStore) PutSubmissionResult(ctx context.Context, sr *SubmissionResult) error {
	const q = `INSERT INTO submission_results
		(submission_id, dataset_id, compilation_outcome, compilation_text, compilation_tries,
		 evaluation_outcome, evaluation_tries, score, score_details, public_score, public_score_details, scored_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (submission_id, dataset_id) DO UPDATE SET
		compilation_outcome = EXCLUDED.compilation_outcome,
		compilation_text = EXCLUDED.compilation_text,
		compilation_tries = EXCLUDED.compilation_tries,
		evaluation_outcome = EXCLUDED.evaluation_outcome,
		evaluation_tries = EXCLUDED.evaluation_tries,
		score = EXCLUDED.score,
		score_details = EXCLUDED.score_details,
		public_score = EXCLUDED.public_score,
		public_score_details = EXCLUDED.public_score_details,
		scored_at = EXCLUDED.scored_at`
	_, err := s.Pool.Exec(ctx, q,
		sr.SubmissionID, sr.DatasetID, sr.CompilationOutcome, sr.CompilationText, sr.CompilationTries,
		sr.EvaluationOutcome, sr.EvaluationTries, sr.Score, sr.ScoreDetails, sr.PublicScore,
		sr.PublicScoreDetails, sr.ScoredAt)
	return err
}

func (s *PostgresStore) ListEvaluations(ctx context.Context, submissionID, datasetID int64) ([]*Evaluation, error) {
	const q = `SELECT submission_id, dataset_id, testcase_codename, outcome, text,
		execution_time, execution_wall_clock_time, execution_memory
		FROM evaluations WHERE submission_id = $1 AND dataset_id = $2`
	rows, err := s.Pool.Query(ctx, q, submissionID, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Evaluation
	for rows.Next() {
		var e Evaluation
		if err := rows.Scan(&e.SubmissionID, &e.DatasetID, &e.TestcaseCodename, &e.Outcome, &e.Text,
			&e.ExecutionTime, &e.ExecutionWallClockTime, &e.ExecutionMemory); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PutEvaluation(ctx context.Context, e *Evaluation) error {
	const q = `INSERT INTO evaluations
		(submission_id, dataset_id, testcase_codename, outcome, text, execution_time, execution_wall_clock_time, execution_memory)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (submission_id, dataset_id, testcase_codename) DO UPDATE SET
		outcome = EXCLUDED.outcome, text = EXCLUDED.text,
		execution_time = EXCLUDED.execution_time,
		execution_wall_clock_time = EXCLUDED.execution_wall_clock_time,
		execution_memory = EXCLUDED.execution_memory`
	_, err := s.Pool.Exec(ctx, q, e.SubmissionID, e.DatasetID, e.TestcaseCodename, e.Outcome, e.Text,
		e.ExecutionTime, e.ExecutionWallClockTime, e.ExecutionMemory)
	return err
}

func (s *PostgresStore) ListPendingSubmissionResults(ctx context.Context) ([]*SubmissionResult, error) {
	const q = `SELECT submission_id, dataset_id, compilation_outcome, compilation_text, compilation_tries,
		evaluation_outcome, evaluation_tries, score, score_details, public_score, public_score_details, scored_at
		FROM submission_results WHERE compilation_outcome = 'unset' OR evaluation_outcome = 'unset'`
	rows, err := s.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SubmissionResult
	for rows.Next() {
		var sr SubmissionResult
		if err := rows.Scan(&sr.SubmissionID, &sr.DatasetID, &sr.CompilationOutcome, &sr.CompilationText,
			&sr.CompilationTries, &sr.EvaluationOutcome, &sr.EvaluationTries, &sr.Score, &sr.ScoreDetails,
			&sr.PublicScore, &sr.PublicScoreDetails, &sr.ScoredAt); err != nil {
			return nil, err
		}
		out = append(out, &sr)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetToken(ctx context.Context, submissionID int64) (*Token, error) {
	const q = `SELECT id, submission_id, timestamp FROM tokens WHERE submission_id = $1`
	var t Token
	err := s.Pool.QueryRow(ctx, q, submissionID).Scan(&t.ID, &t.SubmissionID, &t.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) PutToken(ctx context.Context, t *Token) error {
	const q = `INSERT INTO tokens (submission_id, timestamp) VALUES ($1, $2) RETURNING id`
	return s.Pool.QueryRow(ctx, q, t.SubmissionID, t.Timestamp).Scan(&t.ID)
}

func (s *PostgresStore) ListTokenHistory(ctx context.Context, participationID int64, upTo time.Time) ([]TokenHistoryEntry, error) {
	const q = `SELECT tok.timestamp, sub.task_id
		FROM tokens tok JOIN submissions sub ON sub.id = tok.submission_id
		WHERE sub.participation_id = $1 AND tok.timestamp <= $2
		ORDER BY tok.timestamp ASC`
	rows, err := s.Pool.Query(ctx, q, participationID, upTo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TokenHistoryEntry
	for rows.Next() {
		var e TokenHistoryEntry
		if err := rows.Scan(&e.Timestamp, &e.TaskID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetFSObject(ctx context.Context, digest string) (*FSObject, error) {
	const q = `SELECT digest, description, size FROM fs_objects WHERE digest = $1`
	var o FSObject
	err := s.Pool.QueryRow(ctx, q, digest).Scan(&o.Digest, &o.Description, &o.Size)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// PutFSObjectRow inserts the row if absent, relying on the digest primary
// key to make concurrent inserts of the same content converge on one row
// (§4.4/S5): the loser's insert is a no-op, both callers see the winner's
// description.
func (s *PostgresStore) PutFSObjectRow(ctx context.Context, obj *FSObject) error {
	const q = `INSERT INTO fs_objects (digest, description, size) VALUES ($1, $2, $3)
		ON CONFLICT (digest) DO NOTHING`
	_, err := s.Pool.Exec(ctx, q, obj.Digest, obj.Description, obj.Size)
	return err
}

func (s *PostgresStore) DeleteFSObjectRow(ctx context.Context, digest string) error {
	const q = `DELETE FROM fs_objects WHERE digest = $1`
	_, err := s.Pool.Exec(ctx, q, digest)
	return err
}

func (s *PostgresStore) ListContestFileDigests(ctx context.Context, contestID int64) ([]string, error) {
	const q = `SELECT DISTINCT digest FROM (
		SELECT tc.input_digest AS digest
		FROM testcases tc
		JOIN datasets d ON d.id = tc.dataset_id
		JOIN tasks t ON t.id = d.task_id AND d.id = t.active_dataset
		WHERE t.contest_id = $1
		UNION
		SELECT tc.output_digest AS digest
		FROM testcases tc
		JOIN datasets d ON d.id = tc.dataset_id
		JOIN tasks t ON t.id = d.task_id AND d.id = t.active_dataset
		WHERE t.contest_id = $1
	) digests WHERE digest IS NOT NULL AND digest <> ''`
	rows, err := s.Pool.Query(ctx, q, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var digest string
		if err := rows.Scan(&digest); err != nil {
			return nil, err
		}
		out = append(out, digest)
	}
	return out, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
