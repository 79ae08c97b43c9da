package proctor

import (
	"github.com/pixellab-dev/invigilo/internal/model"
)

// QuestionScore is the scoring outcome for one question.
type QuestionScore struct {
	QuestionID        string   `json:"question_id"`
	CorrectOptionIDs  []string `json:"correct_option_ids"`
	SelectedOptionIDs []string `json:"selected_option_ids"`
	IsCorrect         bool     `json:"is_correct"`
	PointsAwarded     float64  `json:"points_awarded"`
}

// Result is the full scoring outcome of a submitted session.
type Result struct {
	PerQuestion []QuestionScore `json:"per_question"`
	Total       float64         `json:"total"`
	MaxTotal    float64         `json:"max_total"`
}

// Score grades the submitted answers against the question set. It is a pure
// function: identical inputs always yield identical output.
//
// A question is correct iff the submitted option-id set is exactly equal to
// the set of options flagged correct — same size, same membership, order
// irrelevant. No partial credit. A malformed question with zero options is
// unscoreable: it awards 0 and is excluded from MaxTotal rather than
// failing the whole submission.
func Score(questions []model.Question, answers map[string][]string) Result {
	result := Result{
		PerQuestion: make([]QuestionScore, 0, len(questions)),
	}

	for i := range questions {
		q := &questions[i]
		selected := answers[q.ID]

		qs := QuestionScore{
			QuestionID:        q.ID,
			CorrectOptionIDs:  q.CorrectOptionIDs(),
			SelectedOptionIDs: append([]string(nil), selected...),
		}

		if len(q.Options) == 0 {
			// Unscoreable; not counted toward the maximum.
			result.PerQuestion = append(result.PerQuestion, qs)
			continue
		}

		result.MaxTotal += q.Points

		if setEqual(qs.CorrectOptionIDs, selected) {
			qs.IsCorrect = true
			qs.PointsAwarded = q.Points
			result.Total += q.Points
		}

		result.PerQuestion = append(result.PerQuestion, qs)
	}

	return result
}

// Passed reports whether a result meets the configured minimum passing
// score. The threshold is an absolute point value, not a percentage; a zero
// threshold always passes.
func Passed(r Result, scoreMin float64) bool {
	return r.Total >= scoreMin
}

// setEqual compares two id slices as sets.
func setEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	if len(seen) != len(b) {
		return false
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			return false
		}
	}
	return true
}
