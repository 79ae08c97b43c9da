package proctor

import "time"

// Debouncers turn noisy per-sample sensor output into stable integrity
// events. Every reducer here is pure: (previousState, sample) → (newState,
// events). No goroutines, no clocks of their own — callers pass timestamps —
// so they are deterministic under test with no hardware.

// ─── Face count ─────────────────────────────────────────────────────

// FaceClass is the debounced classification of a frame's face count.
type FaceClass string

const (
	FaceUnknown FaceClass = "unknown"
	FaceZero    FaceClass = "zero"
	FaceOne     FaceClass = "one"
	FaceMany    FaceClass = "many"
)

// FaceState is the face-count debouncer state. The zero value (Last ==
// "") reports the first classified frame as a transition from FaceUnknown.
type FaceState struct {
	Last FaceClass
}

func classifyFaces(count int) FaceClass {
	switch {
	case count == 0:
		return FaceZero
	case count == 1:
		return FaceOne
	default:
		return FaceMany
	}
}

// ReduceFaces classifies one frame and emits an event only when the
// classification differs from the last reported one (edge-triggered).
// A steady one-face stream produces no events at all.
func ReduceFaces(prev FaceState, sample FrameSample, at time.Time) (FaceState, *IntegrityEvent) {
	class := classifyFaces(len(sample.Faces))
	if prev.Last == "" {
		prev.Last = FaceUnknown
	}
	if class == prev.Last {
		return prev, nil
	}

	next := FaceState{Last: class}

	var ev *IntegrityEvent
	switch class {
	case FaceZero:
		ev = &IntegrityEvent{
			Source:   SourceCamera,
			Severity: SeverityViolation,
			Message:  "No face detected. Stay in view.",
			At:       at,
		}
	case FaceMany:
		ev = &IntegrityEvent{
			Source:   SourceCamera,
			Severity: SeverityViolation,
			Message:  "Multiple faces detected.",
			At:       at,
		}
	case FaceOne:
		// Recovery transitions are logged as notices so the event log shows
		// when the candidate came back into view.
		ev = &IntegrityEvent{
			Source:   SourceCamera,
			Severity: SeverityNotice,
			Message:  "Face back in view.",
			At:       at,
		}
	}

	// The very first classified frame only establishes the baseline; a
	// single-face first frame is the expected case and not worth an event.
	if prev.Last == FaceUnknown && class == FaceOne {
		return next, nil
	}

	return next, ev
}

// ─── Gaze ───────────────────────────────────────────────────────────

// Gaze thresholds on the horizontal pupil offset ratio. Inside the band the
// candidate is looking at the screen.
const (
	GazeLowThreshold  = 0.32
	GazeHighThreshold = 0.68
)

// GazeState is the gaze debouncer state.
type GazeState struct {
	// Samples counts qualifying (looking-away) samples, for diagnostics.
	Samples int
}

// gazeOffset computes the horizontal pupil offset ratio from the left eye's
// corner and iris landmarks. Returns false when the landmark set is too
// small to carry the iris points (mesh without refined landmarks).
func gazeOffset(face Face) (float64, bool) {
	if len(face.Landmarks) <= landmarkPupil {
		return 0, false
	}
	outer := face.Landmarks[landmarkEyeOuter]
	inner := face.Landmarks[landmarkEyeInner]
	pupil := face.Landmarks[landmarkPupil]

	width := inner.X - outer.X
	if width == 0 {
		return 0, false
	}
	return (pupil.X - outer.X) / width, true
}

// ReduceGaze reports a looking-away event for each qualifying sample: offset
// below the low threshold or above the high threshold. Frames without
// exactly one face are ignored here — the face-count debouncer owns those.
func ReduceGaze(prev GazeState, sample FrameSample, at time.Time) (GazeState, *IntegrityEvent) {
	if len(sample.Faces) != 1 {
		return prev, nil
	}

	offset, ok := gazeOffset(sample.Faces[0])
	if !ok {
		return prev, nil
	}

	var msg string
	switch {
	case offset < GazeLowThreshold:
		msg = "Looking away detected (right)."
	case offset > GazeHighThreshold:
		msg = "Looking away detected (left)."
	default:
		return prev, nil
	}

	prev.Samples++
	return prev, &IntegrityEvent{
		Source:   SourceCamera,
		Severity: SeverityViolation,
		Message:  msg,
		At:       at,
	}
}

// ─── Audio ──────────────────────────────────────────────────────────

// Audio volume thresholds and the continuous-noise budget.
const (
	AudioNoiseThreshold = 0.16 // "too loud"
	AudioSpeakThreshold = 0.18 // voice detected
	MaxNoiseTicks       = 5    // continuous loud ticks before auto-fail

	// noiseWindow is how recently a loud sample must have occurred for the
	// continuous-noise counter to keep climbing.
	noiseWindow = time.Second
)

// AudioState is the audio debouncer state. Failed is latched: once true the
// reducer never emits another fatal and never resets it.
type AudioState struct {
	NoiseTicks int
	LastLoudAt time.Time
	Failed     bool
}

// ReduceAudio processes one volume sample. Loud samples raise a notice and
// refresh the continuous-noise window; each update cycle inside the window
// increments the tick counter, and reaching MaxNoiseTicks raises exactly one
// fatal "excess noise" event.
func ReduceAudio(prev AudioState, sample AudioSample, at time.Time) (AudioState, []IntegrityEvent) {
	next := prev
	var events []IntegrityEvent

	if sample.RMS > AudioSpeakThreshold {
		next.LastLoudAt = at
		events = append(events, IntegrityEvent{
			Source:   SourceMicrophone,
			Severity: SeverityNotice,
			Message:  "Speaking detected.",
			At:       at,
		})
	} else if sample.RMS > AudioNoiseThreshold {
		next.LastLoudAt = at
		events = append(events, IntegrityEvent{
			Source:   SourceMicrophone,
			Severity: SeverityNotice,
			Message:  "Loud background noise detected.",
			At:       at,
		})
	}

	if !next.LastLoudAt.IsZero() && at.Sub(next.LastLoudAt) < noiseWindow {
		next.NoiseTicks++
	} else {
		next.NoiseTicks = 0
	}

	if !next.Failed && next.NoiseTicks >= MaxNoiseTicks {
		next.Failed = true
		events = append(events, IntegrityEvent{
			Source:   SourceMicrophone,
			Severity: SeverityFatal,
			Message:  "Excess noise: sustained loud audio.",
			At:       at,
		})
	}

	return next, events
}

// ─── Screen ─────────────────────────────────────────────────────────

// ScreenPolicy selects which discrete screen events are reported, mirroring
// the screen section of the proctor settings.
type ScreenPolicy struct {
	TabSwitch      bool
	FullscreenExit bool
	Devtools       bool
	BlockShortcuts bool
	SecondMonitor  bool
}

// ReduceScreen maps one discrete screen event to an integrity event, or nil
// when the policy has that check disabled. Screen events are already
// discrete (the browser fires them once per transition) so no further
// debouncing is needed.
func ReduceScreen(policy ScreenPolicy, sample ScreenSample, at time.Time) *IntegrityEvent {
	var msg string
	switch sample.Event {
	case ScreenTabHidden:
		if !policy.TabSwitch {
			return nil
		}
		msg = "Tab switched or window minimized."
	case ScreenTabVisible:
		if !policy.TabSwitch {
			return nil
		}
		return &IntegrityEvent{
			Source:   SourceScreen,
			Severity: SeverityNotice,
			Message:  "Tab visible again.",
			At:       at,
		}
	case ScreenFullscreenExit:
		if !policy.FullscreenExit {
			return nil
		}
		msg = "Fullscreen exited."
	case ScreenDevtoolsOpen:
		if !policy.Devtools {
			return nil
		}
		msg = "Developer tools opened."
	case ScreenBlockedShortcut:
		if !policy.BlockShortcuts {
			return nil
		}
		msg = "Blocked keyboard shortcut pressed."
	case ScreenSecondMonitor:
		if !policy.SecondMonitor {
			return nil
		}
		msg = "Second monitor detected."
	default:
		return nil
	}

	return &IntegrityEvent{
		Source:   SourceScreen,
		Severity: SeverityViolation,
		Message:  msg,
		At:       at,
	}
}
