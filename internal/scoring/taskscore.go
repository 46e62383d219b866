package scoring

import (
	"strconv"

	"github.com/itskum47/judgeforge/internal/model"
)

// SubmissionScore is one official submission's contribution to a task's
// overall score, in submission order (oldest first).
type SubmissionScore struct {
	Score          float64
	RankingStrings []string // per-subtask contribution, parallel across a task's submissions
	Tokened        bool
}

// TaskScore computes the score a contestant's participation sees for a
// task (§3's score_mode), from its official submissions' results in
// submission order.
func TaskScore(mode model.ScoreMode, submissions []SubmissionScore) float64 {
	if len(submissions) == 0 {
		return 0
	}
	switch mode {
	case model.ScoreModeMaxSubtask:
		return maxSubtaskScore(submissions)
	case model.ScoreModeMaxTokenedLast:
		return maxTokenedLast(submissions)
	default: // model.ScoreModeMax
		return maxScore(submissions)
	}
}

func maxScore(submissions []SubmissionScore) float64 {
	best := submissions[0].Score
	for _, s := range submissions[1:] {
		if s.Score > best {
			best = s.Score
		}
	}
	return best
}

// maxSubtaskScore sums, for each subtask, the best contribution any
// submission achieved on it — Group score types' RankingStrings carry one
// formatted contribution per subtask, used here as the structured
// per-subtask breakdown.
func maxSubtaskScore(submissions []SubmissionScore) float64 {
	var best []float64
	for _, s := range submissions {
		for i, raw := range s.RankingStrings {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			if i >= len(best) {
				best = append(best, make([]float64, i-len(best)+1)...)
			}
			if v > best[i] {
				best[i] = v
			}
		}
	}
	var total float64
	for _, v := range best {
		total += v
	}
	return total
}

// maxTokenedLast implements §4.6/S6's max_tokened_last: the contestant
// sees the max of every tokened (released) submission's score and the
// last submission's score, regardless of whether the last one is itself
// tokened. The source's own ambiguity about a tokened last submission is
// resolved the way the specification states: it collapses to
// max(released ∪ {last}), i.e. tokening the last submission contributes
// no more than already counting it as "last" would.
func maxTokenedLast(submissions []SubmissionScore) float64 {
	best := submissions[len(submissions)-1].Score
	for _, s := range submissions {
		if s.Tokened && s.Score > best {
			best = s.Score
		}
	}
	return best
}
