package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates persisted attempt states.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
)

// Attempt is the persisted record of one candidate's exam session.
type Attempt struct {
	ID          uuid.UUID     `json:"id"`
	ExamID      uuid.UUID     `json:"exam_id"`
	CandidateID string        `json:"candidate_id"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	Status      AttemptStatus `json:"status"`
	Score       *float64      `json:"score,omitempty"`
	MaxScore    *float64      `json:"max_score,omitempty"`
	Failed      bool          `json:"failed"`
	FailReason  string        `json:"fail_reason,omitempty"`
}

// QuestionReview is the persisted per-question result row, in presentation
// order.
type QuestionReview struct {
	QuestionID        string   `json:"question_id"`
	CorrectOptionIDs  []string `json:"correct_option_ids"`
	SelectedOptionIDs []string `json:"selected_option_ids"`
	IsCorrect         bool     `json:"is_correct"`
	PointsAwarded     float64  `json:"points_awarded"`
}

// AttemptResult is the full persisted result shape handed to storage.
type AttemptResult struct {
	AttemptID   uuid.UUID        `json:"attempt_id"`
	ExamID      uuid.UUID        `json:"exam_id"`
	CandidateID string           `json:"candidate_id"`
	Review      []QuestionReview `json:"review"`
	Score       float64          `json:"score"`
	MaxScore    float64          `json:"max_score"`
	Failed      bool             `json:"failed"`
	FailReason  string           `json:"fail_reason,omitempty"`
}
