package proctor

import (
	"testing"

	"github.com/pixellab-dev/invigilo/internal/model"
)

func scorerQuestions() []model.Question {
	return []model.Question{
		{
			ID:     "q1",
			Kind:   model.AnswerSingle,
			Points: 10,
			Options: []model.Option{
				{ID: "q1a", IsCorrect: true},
				{ID: "q1b"},
				{ID: "q1c"},
			},
		},
		{
			ID:     "q2",
			Kind:   model.AnswerMultiple,
			Points: 5,
			Options: []model.Option{
				{ID: "q2a", IsCorrect: true},
				{ID: "q2b", IsCorrect: true},
				{ID: "q2c"},
			},
		},
		{
			ID:     "q3",
			Kind:   model.AnswerSingle,
			Points: 2.5,
			Options: []model.Option{
				{ID: "q3a"},
				{ID: "q3b", IsCorrect: true},
			},
		},
	}
}

func TestScoreExactSetMatch(t *testing.T) {
	questions := scorerQuestions()

	cases := []struct {
		name    string
		answers map[string][]string
		total   float64
	}{
		{
			"all correct",
			map[string][]string{
				"q1": {"q1a"},
				"q2": {"q2a", "q2b"},
				"q3": {"q3b"},
			},
			17.5,
		},
		{
			"multiple-answer order irrelevant",
			map[string][]string{"q2": {"q2b", "q2a"}},
			5,
		},
		{
			"subset earns nothing",
			map[string][]string{"q2": {"q2a"}},
			0,
		},
		{
			"superset earns nothing",
			map[string][]string{"q2": {"q2a", "q2b", "q2c"}},
			0,
		},
		{
			"wrong single option",
			map[string][]string{"q1": {"q1b"}},
			0,
		},
		{
			"no answers at all",
			map[string][]string{},
			0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Score(questions, tc.answers)
			if result.Total != tc.total {
				t.Fatalf("total = %v, want %v", result.Total, tc.total)
			}
			if result.MaxTotal != 17.5 {
				t.Errorf("max total = %v, want 17.5", result.MaxTotal)
			}
			if len(result.PerQuestion) != len(questions) {
				t.Errorf("per-question entries = %d, want %d", len(result.PerQuestion), len(questions))
			}
		})
	}
}

func TestScoreNoPartialCredit(t *testing.T) {
	questions := scorerQuestions()
	result := Score(questions, map[string][]string{
		"q1": {"q1a"},        // correct
		"q2": {"q2a", "q2c"}, // one right, one wrong
	})

	if result.Total != 10 {
		t.Fatalf("total = %v, want 10", result.Total)
	}
	for _, qs := range result.PerQuestion {
		if qs.QuestionID == "q2" && qs.PointsAwarded != 0 {
			t.Errorf("q2 awarded %v points for a partial answer", qs.PointsAwarded)
		}
	}
}

func TestScoreUnscoreableQuestion(t *testing.T) {
	questions := []model.Question{
		{ID: "ok", Kind: model.AnswerSingle, Points: 3, Options: []model.Option{
			{ID: "a", IsCorrect: true},
		}},
		{ID: "broken", Kind: model.AnswerSingle, Points: 7}, // no options
	}

	result := Score(questions, map[string][]string{"ok": {"a"}})

	if result.MaxTotal != 3 {
		t.Fatalf("max total = %v; broken question must not count", result.MaxTotal)
	}
	if result.Total != 3 {
		t.Fatalf("total = %v, want 3", result.Total)
	}
	if len(result.PerQuestion) != 2 {
		t.Fatalf("per-question entries = %d, want 2", len(result.PerQuestion))
	}
	for _, qs := range result.PerQuestion {
		if qs.QuestionID == "broken" && (qs.IsCorrect || qs.PointsAwarded != 0) {
			t.Errorf("broken question scored: %+v", qs)
		}
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	questions := scorerQuestions()
	answers := map[string][]string{"q1": {"q1a"}, "q2": {"q2b", "q2a"}}

	first := Score(questions, answers)
	for i := 0; i < 10; i++ {
		again := Score(questions, answers)
		if again.Total != first.Total || again.MaxTotal != first.MaxTotal {
			t.Fatalf("run %d diverged: %+v vs %+v", i, again, first)
		}
	}
}

func TestPassed(t *testing.T) {
	r := Result{Total: 12, MaxTotal: 20}

	if !Passed(r, 0) {
		t.Error("zero threshold must always pass")
	}
	if !Passed(r, 12) {
		t.Error("meeting the threshold exactly must pass")
	}
	if Passed(r, 12.5) {
		t.Error("below threshold must not pass")
	}
}
