package proctor

import "time"

// Source identifies which sensor produced an integrity event.
type Source string

const (
	SourceCamera     Source = "camera"
	SourceMicrophone Source = "microphone"
	SourceScreen     Source = "screen"
	SourceTimer      Source = "timer"
)

// Severity classifies an integrity event.
type Severity string

const (
	SeverityNotice    Severity = "notice"
	SeverityViolation Severity = "violation"
	SeverityFatal     Severity = "fatal"
)

// IntegrityEvent is a single entry in a session's append-only integrity log.
type IntegrityEvent struct {
	Source   Source    `json:"source"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Landmark is a normalized face-mesh point in [0,1] coordinates.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Face mesh landmark indices used for gaze analysis. These follow the
// MediaPipe FaceMesh layout the browser client runs: 33/133 are the left
// eye's outer/inner corners, 468 is the refined left iris center.
const (
	landmarkEyeOuter = 33
	landmarkEyeInner = 133
	landmarkPupil    = 468
)

// Face is one detected face region with its landmark set.
type Face struct {
	Landmarks []Landmark `json:"landmarks"`
}

// FrameSample is one analyzed camera frame: zero or more detected faces.
type FrameSample struct {
	Faces []Face `json:"faces"`
}

// AudioSample is one microphone analysis window: root-mean-square amplitude
// in [0,1] plus a coarse frequency profile.
type AudioSample struct {
	RMS     float64   `json:"rms"`
	Profile []float64 `json:"profile,omitempty"`
}

// ScreenEventKind enumerates discrete browser/document events.
type ScreenEventKind string

const (
	ScreenTabHidden       ScreenEventKind = "tab_hidden"
	ScreenTabVisible      ScreenEventKind = "tab_visible"
	ScreenFullscreenEnter ScreenEventKind = "fullscreen_enter"
	ScreenFullscreenExit  ScreenEventKind = "fullscreen_exit"
	ScreenDevtoolsOpen    ScreenEventKind = "devtools_open"
	ScreenBlockedShortcut ScreenEventKind = "blocked_shortcut"
	ScreenSecondMonitor   ScreenEventKind = "second_monitor"
)

// ScreenSample is one discrete screen/document event.
type ScreenSample struct {
	Event ScreenEventKind `json:"event"`
}
