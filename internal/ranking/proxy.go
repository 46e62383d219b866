// Package ranking implements ProxyService's push side (§6): a REST-like
// client that mirrors contest/task/user/team/submission/subchange entities
// to an external ranking server over HTTP PUT/DELETE with Basic auth.
package ranking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Client pushes entity updates to one external ranker. A contest may be
// configured with several rankers; callers hold one Client per ranker and
// fan a push out to all of them.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

// NewClient builds a Client targeting baseURL (e.g.
// "https://ranker.example.org", without a trailing slash), authenticating with username/password.
func NewClient(baseURL, username, password string) *Client {
	return &Client{baseURL: baseURL, username: username, password: password, http: &http.Client{}}
}

// Contest is the external ranker's contest entity.
type Contest struct {
	Name  string `json:"name"`
	Begin int64  `json:"begin"` // unix seconds
	End   int64  `json:"end"`
}

// Task is the external ranker's task entity.
type Task struct {
	Name           string   `json:"name"`
	Contest        string   `json:"contest"`
	MaxScore       float64  `json:"max_score"`
	ExtraHeaders   []string `json:"extra_headers"`
	Order          int      `json:"order"`
	ScorePrecision int      `json:"score_precision"`
}

// Team is the external ranker's team entity.
type Team struct {
	Name string `json:"name"`
}

// User is the external ranker's user entity.
type User struct {
	FirstName string `json:"f_name"`
	LastName  string `json:"l_name"`
	Team      string `json:"team,omitempty"`
}

// Submission is the external ranker's submission entity.
type Submission struct {
	User string  `json:"user"`
	Task string  `json:"task"`
	Time float64 `json:"time"` // seconds since contest start
}

// Subchange is the external ranker's submission-change entity: a score
// reveal at a point in time, pushed once per score recomputation.
type Subchange struct {
	Submission string   `json:"submission"`
	Time       float64  `json:"time"`
	Score      float64  `json:"score"`
	Extra      []string `json:"extra,omitempty"`
}

// PutContest upserts a contest on the ranker.
func (c *Client) PutContest(ctx context.Context, id string, v Contest) error {
	return c.put(ctx, "contests", id, v)
}

// PutTask upserts a task on the ranker.
func (c *Client) PutTask(ctx context.Context, id string, v Task) error {
	return c.put(ctx, "tasks", id, v)
}

// PutTeam upserts a team on the ranker.
func (c *Client) PutTeam(ctx context.Context, id string, v Team) error {
	return c.put(ctx, "teams", id, v)
}

// PutUser upserts a user on the ranker.
func (c *Client) PutUser(ctx context.Context, id string, v User) error {
	return c.put(ctx, "users", id, v)
}

// PutSubmission upserts a submission on the ranker.
func (c *Client) PutSubmission(ctx context.Context, id string, v Submission) error {
	return c.put(ctx, "submissions", id, v)
}

// PutSubchange pushes a score reveal for a submission.
func (c *Client) PutSubchange(ctx context.Context, id string, v Subchange) error {
	return c.put(ctx, "subchanges", id, v)
}

// DeleteSubmission retracts a submission (dataset deletion / invalidation).
func (c *Client) DeleteSubmission(ctx context.Context, id string) error {
	return c.delete(ctx, "submissions", id)
}

func (c *Client) put(ctx context.Context, entity, id string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ranking: marshaling %s %s: %w", entity, id, err)
	}
	return c.do(ctx, http.MethodPut, entity, id, bytes.NewReader(body))
}

func (c *Client) delete(ctx context.Context, entity, id string) error {
	return c.do(ctx, http.MethodDelete, entity, id, nil)
}

func (c *Client) do(ctx context.Context, method, entity, id string, body *bytes.Reader) error {
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, entity, id)
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, url, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, url, nil)
	}
	if err != nil {
		return fmt.Errorf("ranking: building request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ranking: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ranking: %s %s: status %d", method, url, resp.StatusCode)
	}
	return nil
}
