package model

// Request and response payloads for the exam builder and candidate surfaces.

// OptionPayload is an option as submitted by the editor.
type OptionPayload struct {
	ID        string `json:"id" binding:"omitempty,max=64"`
	Text      string `json:"text" binding:"max=2000"`
	IsCorrect bool   `json:"is_correct"`
}

// QuestionPayload is a question as submitted by the editor.
type QuestionPayload struct {
	ID            string          `json:"id" binding:"omitempty,max=64"`
	Prompt        string          `json:"prompt" binding:"max=4000"`
	Kind          string          `json:"kind" binding:"required,oneof=single multiple"`
	Points        float64         `json:"points" binding:"min=0"`
	Required      bool            `json:"required"`
	Options       []OptionPayload `json:"options" binding:"required,min=1,dive"`
	FeedbackOk    string          `json:"feedback_ok" binding:"max=2000"`
	FeedbackError string          `json:"feedback_error" binding:"max=2000"`
}

// CreateExamRequest is the payload for creating an exam definition.
type CreateExamRequest struct {
	Title       string            `json:"title" binding:"required,min=1,max=255"`
	Description string            `json:"description" binding:"max=4000"`
	Questions   []QuestionPayload `json:"questions" binding:"dive"`
	Settings    ProctorSettings   `json:"settings"`
	AccessCode  string            `json:"access_code" binding:"omitempty,min=4,max=64"`
}

// UpdateExamRequest is the payload for updating an exam definition.
type UpdateExamRequest struct {
	Title       string            `json:"title" binding:"omitempty,min=1,max=255"`
	Description *string           `json:"description" binding:"omitempty,max=4000"`
	Questions   []QuestionPayload `json:"questions" binding:"omitempty,dive"`
	Settings    *ProctorSettings  `json:"settings"`
	AccessCode  string            `json:"access_code" binding:"omitempty,min=4,max=64"`
}

// StartSessionRequest is the payload for a candidate starting a session.
type StartSessionRequest struct {
	CandidateID string `json:"candidate_id" binding:"required,min=1,max=128"`
	AccessCode  string `json:"access_code" binding:"omitempty,max=64"`
}

// ─── Candidate-facing (sanitized) shapes ────────────────────────────

// CandidateOption is an option with the correct flag stripped.
type CandidateOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// CandidateQuestion is a question with correct flags and feedback stripped.
type CandidateQuestion struct {
	ID       string            `json:"id"`
	Prompt   string            `json:"prompt"`
	Kind     AnswerKind        `json:"kind"`
	Points   float64           `json:"points"`
	Required bool              `json:"required"`
	Options  []CandidateOption `json:"options"`
}

// CandidatePaper is the sanitized exam payload sent to a candidate at
// session start. Question and option order reflect any per-session shuffle.
type CandidatePaper struct {
	ExamID      string              `json:"exam_id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	OneByOne    bool                `json:"one_by_one"`
	TimerSecs   int                 `json:"timer_seconds"`
	Questions   []CandidateQuestion `json:"questions"`
}

// SanitizeQuestions converts definition questions to their candidate-facing
// shape, preserving order.
func SanitizeQuestions(questions []Question) []CandidateQuestion {
	out := make([]CandidateQuestion, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		opts := make([]CandidateOption, 0, len(q.Options))
		for _, o := range q.Options {
			opts = append(opts, CandidateOption{ID: o.ID, Text: o.Text})
		}
		out = append(out, CandidateQuestion{
			ID:       q.ID,
			Prompt:   q.Prompt,
			Kind:     q.Kind,
			Points:   q.Points,
			Required: q.Required,
			Options:  opts,
		})
	}
	return out
}
