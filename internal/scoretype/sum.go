package scoretype

import (
	"encoding/json"
	"fmt"
)

// sumParams is Sum's opaque dataset parameters: the contest's total max
// score for the dataset, divided evenly across however many testcases the
// submission was actually evaluated against.
type sumParams struct {
	MaxScore float64 `json:"max_score"`
}

type sumScoreType struct {
	params sumParams
}

func newSum(raw string) (ScoreType, error) {
	var p sumParams
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("scoretype: sum: %w", err)
	}
	if p.MaxScore <= 0 {
		return nil, fmt.Errorf("scoretype: sum: max_score must be positive")
	}
	return &sumScoreType{params: p}, nil
}

func (s *sumScoreType) MaxScores() MaxScores {
	return MaxScores{MaxTotal: s.params.MaxScore, MaxPublic: s.params.MaxScore}
}

func (s *sumScoreType) ComputeScore(outcomes []TestcaseOutcome) ScoreDetails {
	if len(outcomes) == 0 {
		return ScoreDetails{}
	}
	perTestcase := s.params.MaxScore / float64(len(outcomes))

	var total, public float64
	ranking := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		contribution := o.Outcome * perTestcase
		total += contribution
		if o.Public {
			public += contribution
		}
		ranking = append(ranking, fmt.Sprintf("%.2f", contribution))
	}
	return ScoreDetails{
		Score:          total,
		PublicScore:    public,
		RankingStrings: ranking,
	}
}

func (s *sumScoreType) PublicOutcome(outcome float64) PublicOutcome {
	switch {
	case outcome >= 1.0:
		return Correct
	case outcome <= 0.0:
		return NotCorrect
	default:
		return PartiallyCorrect
	}
}

var _ ScoreType = (*sumScoreType)(nil)
