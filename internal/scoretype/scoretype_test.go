package scoretype

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

// TestSumAllPublic reproduces §8 S1: 3 public testcases, sum to 100,
// outcomes 1.0/0.5/0.0 → score 50.00.
func TestSumAllPublic(t *testing.T) {
	st, err := New("sum", `{"max_score": 100}`)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	outcomes := []TestcaseOutcome{
		{Codename: "t1", Outcome: 1.0, Public: true},
		{Codename: "t2", Outcome: 0.5, Public: true},
		{Codename: "t3", Outcome: 0.0, Public: true},
	}
	details := st.ComputeScore(outcomes)
	if !almostEqual(details.Score, 50.0) {
		t.Fatalf("Score = %v, want ~50.0", details.Score)
	}
	if !almostEqual(details.PublicScore, 50.0) {
		t.Fatalf("PublicScore = %v, want ~50.0", details.PublicScore)
	}
}

// TestGroupMinScenario reproduces §8 S2: GroupMin with a 2-testcase public
// subtask (max 60) and a regex-matched private subtask (max 40).
func TestGroupMinScenario(t *testing.T) {
	params := `{"subtasks": [{"max_score": 60, "testcases": 2}, {"max_score": 40, "regex": "^priv"}]}`
	st, err := New("group_min", params)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	outcomes := []TestcaseOutcome{
		{Codename: "t1", Outcome: 1.0, Public: true},
		{Codename: "t2", Outcome: 1.0, Public: true},
		{Codename: "priv1", Outcome: 1.0, Public: false},
		{Codename: "priv2", Outcome: 0.5, Public: false},
		{Codename: "priv3", Outcome: 1.0, Public: false},
	}
	details := st.ComputeScore(outcomes)
	if !almostEqual(details.Score, 80.0) {
		t.Fatalf("Score = %v, want 80.0", details.Score)
	}
	if !almostEqual(details.PublicScore, 60.0) {
		t.Fatalf("PublicScore = %v, want 60.0", details.PublicScore)
	}
}

func TestGroupMulAndThreshold(t *testing.T) {
	params := `{"subtasks": [{"max_score": 100, "testcases": 3}]}`

	mul, err := New("group_mul", params)
	if err != nil {
		t.Fatalf("New(group_mul): %v", err)
	}
	d := mul.ComputeScore([]TestcaseOutcome{
		{Codename: "a", Outcome: 1.0, Public: true},
		{Codename: "b", Outcome: 0.5, Public: true},
		{Codename: "c", Outcome: 1.0, Public: true},
	})
	if !almostEqual(d.Score, 50.0) {
		t.Fatalf("group_mul Score = %v, want 50.0", d.Score)
	}

	thresh, err := New("group_threshold", `{"subtasks":[{"max_score":100,"testcases":3}],"threshold":1.0}`)
	if err != nil {
		t.Fatalf("New(group_threshold): %v", err)
	}
	allPass := thresh.ComputeScore([]TestcaseOutcome{
		{Codename: "a", Outcome: 1.0, Public: true},
		{Codename: "b", Outcome: 1.0, Public: true},
		{Codename: "c", Outcome: 1.0, Public: true},
	})
	if !almostEqual(allPass.Score, 100.0) {
		t.Fatalf("group_threshold (all pass) Score = %v, want 100.0", allPass.Score)
	}
	onePasses := thresh.ComputeScore([]TestcaseOutcome{
		{Codename: "a", Outcome: 1.0, Public: true},
		{Codename: "b", Outcome: 0.99, Public: true},
		{Codename: "c", Outcome: 1.0, Public: true},
	})
	if !almostEqual(onePasses.Score, 0.0) {
		t.Fatalf("group_threshold (one below) Score = %v, want 0.0", onePasses.Score)
	}
}

func TestPublicOutcomeLabels(t *testing.T) {
	st, _ := New("sum", `{"max_score": 100}`)
	cases := []struct {
		outcome float64
		want    PublicOutcome
	}{
		{1.0, Correct},
		{0.0, NotCorrect},
		{0.5, PartiallyCorrect},
	}
	for _, c := range cases {
		if got := st.PublicOutcome(c.outcome); got != c.want {
			t.Errorf("PublicOutcome(%v) = %v, want %v", c.outcome, got, c.want)
		}
	}
}

func TestUnknownScoreType(t *testing.T) {
	if _, err := New("no_such_type", `{}`); err == nil {
		t.Fatal("expected error for unknown score type")
	}
}

// TestFormatScore reproduces §8 S1's "rounded to score_precision=2" scenario
// plus abc.py's round()-at-precision semantics at a couple of other scales.
func TestFormatScore(t *testing.T) {
	cases := []struct {
		score     float64
		precision int
		want      float64
	}{
		{33.333333, 2, 33.33},
		{33.335, 2, 33.34},
		{50.0, 2, 50.0},
		{12.7, 0, 13.0},
		{12.3, 0, 12.0},
	}
	for _, c := range cases {
		if got := FormatScore(c.score, c.precision); !almostEqual(got, c.want) {
			t.Errorf("FormatScore(%v, %d) = %v, want %v", c.score, c.precision, got, c.want)
		}
	}
}
