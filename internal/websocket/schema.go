package websocket

// Wire schema for the session stream. The client sends sensor status acks,
// derived sensor samples, and exam actions; the server pushes integrity
// events, timer syncs, and the graded result.

// ─── Client → Server ────────────────────────────────────────────────

type Action string

const (
	// Sensor plumbing.
	ActionSensorStatus Action = "sensor_status"
	ActionFrame        Action = "frame"
	ActionAudio        Action = "audio"
	ActionScreen       Action = "screen"

	// Exam actions.
	ActionAnswer   Action = "answer"
	ActionNavigate Action = "navigate"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// ClientMessage is the single inbound message shape. Only the fields for
// the given action are populated; the rest stay at their zero value.
type ClientMessage struct {
	Action Action `json:"action"`

	// sensor_status
	Sensor string `json:"sensor,omitempty"` // camera | microphone | screen
	Status string `json:"status,omitempty"` // ready | denied | unavailable

	// frame
	Faces []FacePayload `json:"faces,omitempty"`

	// audio
	RMS     float64   `json:"rms,omitempty"`
	Profile []float64 `json:"profile,omitempty"`

	// screen
	Event string `json:"event,omitempty"`

	// answer
	QuestionID string `json:"question_id,omitempty"`
	OptionID   string `json:"option_id,omitempty"`

	// navigate
	Delta int `json:"delta,omitempty"`
}

// FacePayload is one detected face's landmark set, normalized [0,1].
type FacePayload struct {
	Landmarks [][2]float64 `json:"landmarks"`
}

// ─── Server → Client ────────────────────────────────────────────────

type Event string

const (
	EventIntegrity Event = "integrity"
	EventTimer     Event = "timer"
	EventAnswerAck Event = "answer_ack"
	EventGraded    Event = "graded"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// IntegrityPush is one integrity event surfaced to the candidate.
type IntegrityPush struct {
	Event    Event  `json:"event"`
	Source   string `json:"source"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	At       int64  `json:"at"`
}

// TimerPush resynchronizes the countdown.
type TimerPush struct {
	Event     Event `json:"event"`
	Remaining int   `json:"remaining"`
}

// AnswerAck confirms an autosaved answer with the resulting selection.
type AnswerAck struct {
	Event      Event    `json:"event"`
	QuestionID string   `json:"question_id"`
	Selected   []string `json:"selected"`
}

// GradedPush carries the final result after submission.
type GradedPush struct {
	Event      Event   `json:"event"`
	Score      float64 `json:"score"`
	MaxScore   float64 `json:"max_score"`
	Failed     bool    `json:"failed"`
	FailReason string  `json:"fail_reason,omitempty"`
}

type ErrorPush struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongPush struct {
	Event Event `json:"event"`
}
