package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Exam definition validation errors.
var (
	ErrExamNoQuestions        = errors.New("exam has no questions")
	ErrQuestionNoOptions      = errors.New("question has no options")
	ErrQuestionBadKind        = errors.New("question has an unknown answer kind")
	ErrQuestionNegativePoints = errors.New("question has negative points")
	ErrQuestionMultiCorrect   = errors.New("single-answer question has multiple correct options")
)

// ExamStatus enumerates the lifecycle of an exam definition.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// ExamDefinition is the published exam document: title, description, ordered
// questions and proctor settings. Created by the editor; read-only to the
// session engine.
type ExamDefinition struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Questions   []Question      `json:"questions"`
	Settings    ProctorSettings `json:"settings"`
	Status      ExamStatus      `json:"status"`
	// AccessCodeHash is the bcrypt hash of the exam's access code. Never
	// serialized to clients.
	AccessCodeHash string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate checks the definition invariants needed to start a session.
func (e *ExamDefinition) Validate() error {
	if len(e.Questions) == 0 {
		return ErrExamNoQuestions
	}
	for i := range e.Questions {
		if err := e.Questions[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MaxPoints returns the sum of all question point values.
func (e *ExamDefinition) MaxPoints() float64 {
	var total float64
	for i := range e.Questions {
		total += e.Questions[i].Points
	}
	return total
}

// ─── Proctor settings ───────────────────────────────────────────────

// ProctorSettings is the nested proctoring configuration. Every boolean
// defaults to false; an absent section means the feature is disabled.
type ProctorSettings struct {
	General    GeneralSettings    `json:"general"`
	Timer      TimerSettings      `json:"timer"`
	Camera     CameraSettings     `json:"camera"`
	Microphone MicrophoneSettings `json:"microphone"`
	Screen     ScreenSettings     `json:"screen"`
}

// GeneralSettings covers presentation and pass-threshold options.
type GeneralSettings struct {
	ShuffleQuestions bool `json:"shuffle_questions"`
	ShuffleOptions   bool `json:"shuffle_options"`
	// OneByOne shows a single question at a time with prev/next navigation.
	OneByOne bool `json:"one_by_one"`
	// ScoreMin is the absolute point threshold to pass; 0 means no threshold.
	ScoreMin float64 `json:"score_min"`
}

// TimerSettings configures the countdown.
type TimerSettings struct {
	Enabled bool `json:"enabled"`
	Hours   int  `json:"hours"`
	Minutes int  `json:"minutes"`
}

// TotalSeconds returns the configured countdown length, 0 when disabled.
func (t TimerSettings) TotalSeconds() int {
	if !t.Enabled {
		return 0
	}
	return t.Hours*3600 + t.Minutes*60
}

// CameraSettings configures camera-based checks.
type CameraSettings struct {
	Enabled      bool `json:"enabled"`
	FaceAbsence  bool `json:"face_absence"`
	GazeTracking bool `json:"gaze_tracking"`
}

// MicrophoneSettings configures microphone-based checks.
type MicrophoneSettings struct {
	Enabled   bool `json:"enabled"`
	LoudNoise bool `json:"loud_noise"`
}

// ScreenSettings configures browser/document event checks. These are
// best-effort heuristics reported by the client.
type ScreenSettings struct {
	TabSwitch      bool `json:"tab_switch"`
	FullscreenExit bool `json:"fullscreen_exit"`
	Devtools       bool `json:"devtools"`
	BlockShortcuts bool `json:"block_shortcuts"`
	SecondMonitor  bool `json:"second_monitor"`
}

// AnyEnabled reports whether any screen check is on.
func (s ScreenSettings) AnyEnabled() bool {
	return s.TabSwitch || s.FullscreenExit || s.Devtools || s.BlockShortcuts || s.SecondMonitor
}
