package model

// AnswerKind is a question's answer cardinality.
type AnswerKind string

const (
	AnswerSingle   AnswerKind = "single"
	AnswerMultiple AnswerKind = "multiple"
)

// Option is one answer choice. Option ids are opaque tokens minted by the
// editor; once the exam is published options are immutable and owned
// exclusively by their question.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question is a single exam question with its options, point value and
// per-answer feedback texts.
type Question struct {
	ID            string     `json:"id"`
	Prompt        string     `json:"prompt"`
	Kind          AnswerKind `json:"kind"`
	Points        float64    `json:"points"`
	Required      bool       `json:"required"`
	Options       []Option   `json:"options"`
	FeedbackOk    string     `json:"feedback_ok,omitempty"`
	FeedbackError string     `json:"feedback_error,omitempty"`
}

// CorrectOptionIDs returns the ids of the options flagged correct, in
// option order.
func (q *Question) CorrectOptionIDs() []string {
	var ids []string
	for _, o := range q.Options {
		if o.IsCorrect {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// HasOption reports whether the question owns the given option id.
func (q *Question) HasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// Validate checks the question invariants: at least one option, and for
// single-answer questions at most one correct option.
func (q *Question) Validate() error {
	if len(q.Options) == 0 {
		return ErrQuestionNoOptions
	}
	if q.Kind != AnswerSingle && q.Kind != AnswerMultiple {
		return ErrQuestionBadKind
	}
	if q.Points < 0 {
		return ErrQuestionNegativePoints
	}
	if q.Kind == AnswerSingle && len(q.CorrectOptionIDs()) > 1 {
		return ErrQuestionMultiCorrect
	}
	return nil
}
