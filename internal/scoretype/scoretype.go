// Package scoretype implements §4.5's score-type contract as a registry of
// tagged variants rather than the source's ScoreType -> ScoreTypeAlone ->
// ScoreTypeGroup inheritance chain (§9 "deep inheritance" redesign flag):
// the three group variants are one groupScoreType parameterized by a
// reducer strategy, Sum is its own small type, and subtask assembly lives
// in the shared subtaskMatcher helpers. Each type carries its own
// PublicOutcome method.
package scoretype

import (
	"fmt"
	"math"
	"regexp"
)

// PublicOutcome is the label rendered for a contestant's restricted
// feedback (§4.5).
type PublicOutcome string

const (
	Correct          PublicOutcome = "Correct"
	NotCorrect       PublicOutcome = "Not correct"
	PartiallyCorrect PublicOutcome = "Partially correct"
)

// TestcaseOutcome is one testcase's raw numeric outcome plus whether it is
// public (visible in restricted feedback).
type TestcaseOutcome struct {
	Codename string
	Outcome  float64
	Public   bool
}

// ScoreDetails is the computed result of §4.5's compute_score.
type ScoreDetails struct {
	Score        float64
	Details      string // opaque, rendered by the admin/contestant UI (out of scope here)
	PublicScore  float64
	PublicDetails string
	RankingStrings []string
}

// MaxScores is §4.5's max_scores(): derived solely from parameters and the
// public/private flags of testcases, never from evaluation data.
type MaxScores struct {
	MaxTotal       float64
	MaxPublic      float64
	ColumnHeaders  []string
}

// ScoreType is the capability interface every concrete variant satisfies
// (§9's "common capability interface" for the registry-of-tagged-variants
// pattern).
type ScoreType interface {
	MaxScores() MaxScores
	ComputeScore(outcomes []TestcaseOutcome) ScoreDetails
	PublicOutcome(outcome float64) PublicOutcome
}

// FormatScore rounds score to precision fractional digits, the same
// rounding compute_score's result is put through before it's shown in the
// submission table (abc.py's format_score: round(score, score_precision)).
// A non-positive precision rounds to a whole number.
func FormatScore(score float64, precision int) float64 {
	if precision <= 0 {
		return math.Round(score)
	}
	mult := math.Pow(10, float64(precision))
	return math.Round(score*mult) / mult
}

// Constructor builds a ScoreType from its opaque JSON parameters.
type Constructor func(params string) (ScoreType, error)

var registry = map[string]Constructor{}

// Register adds name to the registry. Called from init() in this package
// for the built-in variants; panics on duplicate registration, the same
// fail-fast posture as internal/rpc.Registry.Register.
func Register(name string, ctor Constructor) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("scoretype: duplicate registration for %q", name))
	}
	registry[name] = ctor
}

// New builds the named score type from its dataset row's opaque
// parameters (§3 Dataset.score_type_name/score_type_params).
func New(name, params string) (ScoreType, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("scoretype: unknown score type %q", name)
	}
	return ctor(params)
}

func init() {
	Register("sum", newSum)
	Register("group_min", newGroupReduce(reduceMin))
	Register("group_mul", newGroupReduce(reduceMul))
	Register("group_threshold", newGroupReduce(reduceThreshold))
}

// subtaskMatcher groups testcase codenames into a subtask, either by a
// fixed prefix count or by regex match (§4.5: "all parameters must be the
// same kind within one task").
type subtaskMatcher interface {
	match(codename string, index int) bool
}

type countMatcher struct{ from, to int } // [from, to) by position in codename order

func (m countMatcher) match(_ string, index int) bool { return index >= m.from && index < m.to }

type regexMatcher struct{ re *regexp.Regexp }

func (m regexMatcher) match(codename string, _ int) bool { return m.re.MatchString(codename) }
