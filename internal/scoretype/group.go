package scoretype

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// reducer collapses one subtask's testcase outcomes into a fraction of
// that subtask's max score (§9's composition-over-inheritance redesign:
// GroupMin/GroupMul/GroupThreshold are the same groupScoreType with a
// different reducer, not three separate class hierarchies).
type reducer func(outcomes []float64, threshold float64) float64

func reduceMin(outcomes []float64, _ float64) float64 {
	min := 1.0
	for _, o := range outcomes {
		if o < min {
			min = o
		}
	}
	return min
}

func reduceMul(outcomes []float64, _ float64) float64 {
	product := 1.0
	for _, o := range outcomes {
		product *= o
	}
	return product
}

func reduceThreshold(outcomes []float64, threshold float64) float64 {
	for _, o := range outcomes {
		if o < threshold {
			return 0
		}
	}
	return 1
}

type subtaskParams struct {
	MaxScore  float64  `json:"max_score"`
	Testcases *int     `json:"testcases,omitempty"` // count-based: the next N positions after earlier count-based subtasks
	Regex     *string  `json:"regex,omitempty"`      // regex-based: match on codename
}

type groupParams struct {
	Subtasks  []subtaskParams `json:"subtasks"`
	Threshold float64         `json:"threshold"`
}

type subtask struct {
	maxScore float64
	matcher  subtaskMatcher
}

type groupScoreType struct {
	subtasks  []subtask
	threshold float64
	reduce    reducer
}

// newGroupReduce returns a Constructor bound to reduce, shared by
// group_min, group_mul, and group_threshold (§9).
func newGroupReduce(reduce reducer) Constructor {
	return func(raw string) (ScoreType, error) {
		var p groupParams
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("scoretype: group: %w", err)
		}
		if len(p.Subtasks) == 0 {
			return nil, fmt.Errorf("scoretype: group: no subtasks")
		}

		// Each subtask names its own testcases either by count or by
		// regex (§8 S2 uses both kinds within the same task, so despite
		// §4.5's "same kind" phrasing this is validated per-subtask, not
		// across the whole task).
		subtasks := make([]subtask, 0, len(p.Subtasks))
		offset := 0
		for i, sp := range p.Subtasks {
			var m subtaskMatcher
			if sp.Testcases != nil {
				m = countMatcher{from: offset, to: offset + *sp.Testcases}
				offset += *sp.Testcases
			} else {
				if sp.Regex == nil {
					return nil, fmt.Errorf("scoretype: group: subtask %d missing regex", i)
				}
				re, err := regexp.Compile(*sp.Regex)
				if err != nil {
					return nil, fmt.Errorf("scoretype: group: subtask %d: %w", i, err)
				}
				m = regexMatcher{re: re}
			}
			subtasks = append(subtasks, subtask{maxScore: sp.MaxScore, matcher: m})
		}

		return &groupScoreType{subtasks: subtasks, threshold: p.Threshold, reduce: reduce}, nil
	}
}

func (g *groupScoreType) MaxScores() MaxScores {
	var total float64
	headers := make([]string, len(g.subtasks))
	for i, s := range g.subtasks {
		total += s.maxScore
		headers[i] = fmt.Sprintf("Subtask %d", i+1)
	}
	return MaxScores{MaxTotal: total, MaxPublic: total, ColumnHeaders: headers}
}

// assign buckets outcomes into subtasks in codename order, matching the
// source's "testcases belong to a subtask by position or regex" rule
// (§4.5).
func (g *groupScoreType) assign(outcomes []TestcaseOutcome) [][]TestcaseOutcome {
	buckets := make([][]TestcaseOutcome, len(g.subtasks))
	for i, o := range outcomes {
		for si, s := range g.subtasks {
			if s.matcher.match(o.Codename, i) {
				buckets[si] = append(buckets[si], o)
				break
			}
		}
	}
	return buckets
}

func (g *groupScoreType) ComputeScore(outcomes []TestcaseOutcome) ScoreDetails {
	buckets := g.assign(outcomes)

	var total, public float64
	ranking := make([]string, 0, len(g.subtasks))
	for si, s := range g.subtasks {
		bucket := buckets[si]
		vals := make([]float64, len(bucket))
		subtaskAllPublic := len(bucket) > 0
		for i, o := range bucket {
			vals[i] = o.Outcome
			if !o.Public {
				subtaskAllPublic = false
			}
		}
		fraction := g.reduce(vals, g.threshold)
		contribution := fraction * s.maxScore
		total += contribution
		ranking = append(ranking, fmt.Sprintf("%.2f", contribution))

		if subtaskAllPublic {
			public += contribution
		}
	}
	return ScoreDetails{
		Score:          total,
		PublicScore:    public,
		RankingStrings: ranking,
	}
}

func (g *groupScoreType) PublicOutcome(outcome float64) PublicOutcome {
	switch {
	case outcome >= 1.0:
		return Correct
	case outcome <= 0.0:
		return NotCorrect
	default:
		return PartiallyCorrect
	}
}

var _ ScoreType = (*groupScoreType)(nil)
