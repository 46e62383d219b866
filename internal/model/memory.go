package model

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store implementation, used by tests and by
// single-shard development deployments. It returns copies of its rows so
// callers cannot mutate shared state behind the store's back.
type MemoryStore struct {
	mu sync.RWMutex

	contests       map[int64]*Contest
	tasks          map[int64]*Task
	datasets       map[int64]*Dataset
	testcases      map[int64][]*Testcase // datasetID -> testcases
	users          map[int64]*User
	participations map[int64]*Participation
	submissions    map[int64]*Submission
	results        map[string]*SubmissionResult // "submissionID/datasetID"
	evaluations    map[string][]*Evaluation     // "submissionID/datasetID"
	tokens         map[int64]*Token              // by submissionID
	fsobjects      map[string]*FSObject
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contests:       make(map[int64]*Contest),
		tasks:          make(map[int64]*Task),
		datasets:       make(map[int64]*Dataset),
		testcases:      make(map[int64][]*Testcase),
		users:          make(map[int64]*User),
		participations: make(map[int64]*Participation),
		submissions:    make(map[int64]*Submission),
		results:        make(map[string]*SubmissionResult),
		evaluations:    make(map[string][]*Evaluation),
		tokens:         make(map[int64]*Token),
		fsobjects:      make(map[string]*FSObject),
	}
}

func resultKey(submissionID, datasetID int64) string {
	return fmt.Sprintf("%d/%d", submissionID, datasetID)
}

// --- Seed helpers (memory store only; a real backend is seeded via DB
// migrations, out of scope per §1) ---

func (s *MemoryStore) PutContest(c *Contest) { s.mu.Lock(); defer s.mu.Unlock(); s.contests[c.ID] = c }
func (s *MemoryStore) PutTask(t *Task)       { s.mu.Lock(); defer s.mu.Unlock(); s.tasks[t.ID] = t }
func (s *MemoryStore) PutDataset(d *Dataset) { s.mu.Lock(); defer s.mu.Unlock(); s.datasets[d.ID] = d }
func (s *MemoryStore) PutTestcase(tc *Testcase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.testcases[tc.DatasetID] = append(s.testcases[tc.DatasetID], tc)
}
func (s *MemoryStore) PutUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}
func (s *MemoryStore) PutParticipation(p *Participation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participations[p.ID] = p
}
func (s *MemoryStore) PutSubmission(sub *Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[sub.ID] = sub
}

// --- Store implementation ---

func (s *MemoryStore) GetContest(ctx context.Context, id int64) (*Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contests[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) GetTask(ctx context.Context, id int64) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) GetDataset(ctx context.Context, id int64) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) ListTestcases(ctx context.Context, datasetID int64) ([]*Testcase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tcs := s.testcases[datasetID]
	out := make([]*Testcase, len(tcs))
	for i, tc := range tcs {
		cp := *tc
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) GetParticipation(ctx context.Context, id int64) (*Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participations[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetParticipationByContestAndUser(ctx context.Context, contestID, userID int64) (*Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.participations {
		if p.ContestID == contestID && p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListParticipations(ctx context.Context, contestID int64) ([]*Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Participation
	for _, p := range s.participations {
		if p.ContestID == contestID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetSubmission(ctx context.Context, id int64) (*Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (s *MemoryStore) GetSubmissionResult(ctx context.Context, submissionID, datasetID int64) (*SubmissionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.results[resultKey(submissionID, datasetID)]
	if !ok {
		return nil, nil
	}
	cp := *sr
	return &cp, nil
}

func (s *MemoryStore) PutSubmissionResult(ctx context.Context, sr *SubmissionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sr
	s.results[resultKey(sr.SubmissionID, sr.DatasetID)] = &cp
	return nil
}

func (s *MemoryStore) ListEvaluations(ctx context.Context, submissionID, datasetID int64) ([]*Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evs := s.evaluations[resultKey(submissionID, datasetID)]
	out := make([]*Evaluation, len(evs))
	for i, e := range evs {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) PutEvaluation(ctx context.Context, e *Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := resultKey(e.SubmissionID, e.DatasetID)
	evs := s.evaluations[key]
	for i, existing := range evs {
		if existing.TestcaseCodename == e.TestcaseCodename {
			cp := *e
			evs[i] = &cp
			return nil
		}
	}
	cp := *e
	s.evaluations[key] = append(evs, &cp)
	return nil
}

func (s *MemoryStore) ListPendingSubmissionResults(ctx context.Context) ([]*SubmissionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*SubmissionResult
	for _, sr := range s.results {
		if sr.CompilationOutcome == CompilationUnset || sr.EvaluationOutcome == EvaluationUnset {
			cp := *sr
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetToken(ctx context.Context, submissionID int64) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[submissionID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) PutToken(ctx context.Context, t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[t.SubmissionID]; exists {
		return fmt.Errorf("model: submission %d already has a token", t.SubmissionID)
	}
	cp := *t
	s.tokens[t.SubmissionID] = &cp
	return nil
}

func (s *MemoryStore) ListTokenHistory(ctx context.Context, participationID int64, upTo time.Time) ([]TokenHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TokenHistoryEntry
	for _, t := range s.tokens {
		if t.Timestamp.After(upTo) {
			continue
		}
		sub, ok := s.submissions[t.SubmissionID]
		if !ok || sub.ParticipationID != participationID {
			continue
		}
		out = append(out, TokenHistoryEntry{Timestamp: t.Timestamp, TaskID: sub.TaskID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) GetFSObject(ctx context.Context, digest string) (*FSObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.fsobjects[digest]
	if !ok {
		return nil, nil
	}
	cp := *obj
	return &cp, nil
}

func (s *MemoryStore) PutFSObjectRow(ctx context.Context, obj *FSObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.fsobjects[obj.Digest]; exists {
		return nil // first-committer-wins; losers silently reuse the row (§4.4/S5)
	}
	cp := *obj
	s.fsobjects[obj.Digest] = &cp
	return nil
}

func (s *MemoryStore) DeleteFSObjectRow(ctx context.Context, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fsobjects, digest)
	return nil
}

func (s *MemoryStore) ListContestFileDigests(ctx context.Context, contestID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	add := func(digest string) {
		if digest == "" {
			return
		}
		if _, ok := seen[digest]; ok {
			return
		}
		seen[digest] = struct{}{}
		out = append(out, digest)
	}

	for _, t := range s.tasks {
		if t.ContestID == nil || *t.ContestID != contestID {
			continue
		}
		dataset, ok := s.datasets[t.ActiveDataset]
		if !ok {
			continue
		}
		for _, tc := range s.testcases[dataset.ID] {
			add(tc.InputDigest)
			add(tc.OutputDigest)
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
