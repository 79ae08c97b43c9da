package proctor

import (
	"testing"
	"time"
)

func frameWithFaces(n int) FrameSample {
	faces := make([]Face, n)
	return FrameSample{Faces: faces}
}

// frameWithGaze builds a single-face frame whose pupil offset ratio equals
// offset. Eye corners sit at x=0.2 and x=0.6 so the landmark slice carries
// realistic values.
func frameWithGaze(offset float64) FrameSample {
	landmarks := make([]Landmark, landmarkPupil+1)
	const outerX, innerX = 0.2, 0.6
	landmarks[landmarkEyeOuter] = Landmark{X: outerX, Y: 0.4}
	landmarks[landmarkEyeInner] = Landmark{X: innerX, Y: 0.4}
	landmarks[landmarkPupil] = Landmark{X: outerX + offset*(innerX-outerX), Y: 0.4}
	return FrameSample{Faces: []Face{{Landmarks: landmarks}}}
}

func TestReduceFacesEdgeTriggered(t *testing.T) {
	at := time.Now()
	counts := []int{1, 1, 1, 0, 0, 1}

	var state FaceState
	var events []IntegrityEvent
	for _, n := range counts {
		var ev *IntegrityEvent
		state, ev = ReduceFaces(state, frameWithFaces(n), at)
		if ev != nil {
			events = append(events, *ev)
		}
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events for %v, got %d: %+v", counts, len(events), events)
	}
	if events[0].Severity != SeverityViolation || events[0].Message != "No face detected. Stay in view." {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Severity != SeverityNotice || events[1].Message != "Face back in view." {
		t.Errorf("unexpected second event: %+v", events[1])
	}
}

func TestReduceFacesSteadyStreamIsSilent(t *testing.T) {
	at := time.Now()
	var state FaceState
	for i := 0; i < 50; i++ {
		var ev *IntegrityEvent
		state, ev = ReduceFaces(state, frameWithFaces(1), at)
		if ev != nil {
			t.Fatalf("steady one-face stream emitted event at frame %d: %+v", i, ev)
		}
	}
}

func TestReduceFacesMultipleFaces(t *testing.T) {
	at := time.Now()
	var state FaceState

	state, ev := ReduceFaces(state, frameWithFaces(1), at)
	if ev != nil {
		t.Fatalf("baseline frame emitted event: %+v", ev)
	}
	state, ev = ReduceFaces(state, frameWithFaces(2), at)
	if ev == nil || ev.Severity != SeverityViolation || ev.Message != "Multiple faces detected." {
		t.Fatalf("expected multiple-faces violation, got %+v", ev)
	}
	// Staying at two faces must not re-report.
	_, ev = ReduceFaces(state, frameWithFaces(3), at)
	if ev != nil {
		t.Errorf("2→3 faces re-reported: %+v", ev)
	}
}

func TestReduceFacesFirstFrameEmpty(t *testing.T) {
	// Only a one-face first frame is the silent baseline; starting with no
	// face is itself a violation.
	_, ev := ReduceFaces(FaceState{}, frameWithFaces(0), time.Now())
	if ev == nil || ev.Severity != SeverityViolation {
		t.Fatalf("expected violation on empty first frame, got %+v", ev)
	}
}

func TestReduceGaze(t *testing.T) {
	at := time.Now()

	cases := []struct {
		name    string
		sample  FrameSample
		message string // "" means no event expected
	}{
		{"centered", frameWithGaze(0.5), ""},
		{"at low threshold", frameWithGaze(GazeLowThreshold), ""},
		{"below low threshold", frameWithGaze(0.20), "Looking away detected (right)."},
		{"above high threshold", frameWithGaze(0.80), "Looking away detected (left)."},
		{"no face", frameWithFaces(0), ""},
		{"two faces", frameWithFaces(2), ""},
		{"mesh without iris", frameWithFaces(1), ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ev := ReduceGaze(GazeState{}, tc.sample, at)
			if tc.message == "" {
				if ev != nil {
					t.Fatalf("expected no event, got %+v", ev)
				}
				return
			}
			if ev == nil {
				t.Fatal("expected an event, got none")
			}
			if ev.Message != tc.message || ev.Severity != SeverityViolation {
				t.Fatalf("expected violation %q, got %+v", tc.message, ev)
			}
		})
	}
}

func TestReduceGazeReportsEveryQualifyingSample(t *testing.T) {
	at := time.Now()
	var state GazeState
	var count int
	for i := 0; i < 3; i++ {
		var ev *IntegrityEvent
		state, ev = ReduceGaze(state, frameWithGaze(0.1), at)
		if ev != nil {
			count++
		}
	}
	if count != 3 {
		t.Fatalf("expected 3 gaze events, got %d", count)
	}
	if state.Samples != 3 {
		t.Errorf("expected 3 counted samples, got %d", state.Samples)
	}
}

func TestReduceAudioNotices(t *testing.T) {
	at := time.Now()

	_, events := ReduceAudio(AudioState{}, AudioSample{RMS: 0.05}, at)
	if len(events) != 0 {
		t.Fatalf("quiet sample emitted events: %+v", events)
	}

	_, events = ReduceAudio(AudioState{}, AudioSample{RMS: 0.17}, at)
	if len(events) != 1 || events[0].Message != "Loud background noise detected." {
		t.Fatalf("expected noise notice, got %+v", events)
	}

	_, events = ReduceAudio(AudioState{}, AudioSample{RMS: 0.25}, at)
	if len(events) != 1 || events[0].Message != "Speaking detected." {
		t.Fatalf("expected speaking notice, got %+v", events)
	}
}

func TestReduceAudioSustainedNoiseFailsOnce(t *testing.T) {
	at := time.Now()
	var state AudioState
	var fatals int

	// Well past the tick budget: the fatal must fire exactly once.
	for i := 0; i < MaxNoiseTicks*2; i++ {
		var events []IntegrityEvent
		state, events = ReduceAudio(state, AudioSample{RMS: 0.3}, at)
		for _, ev := range events {
			if ev.Severity == SeverityFatal {
				fatals++
			}
		}
		at = at.Add(100 * time.Millisecond)
	}

	if fatals != 1 {
		t.Fatalf("expected exactly 1 fatal event, got %d", fatals)
	}
	if !state.Failed {
		t.Error("Failed flag not latched")
	}
}

func TestReduceAudioWindowResets(t *testing.T) {
	at := time.Now()
	var state AudioState

	for i := 0; i < MaxNoiseTicks-1; i++ {
		state, _ = ReduceAudio(state, AudioSample{RMS: 0.3}, at)
		at = at.Add(100 * time.Millisecond)
	}
	if state.NoiseTicks != MaxNoiseTicks-1 {
		t.Fatalf("expected %d ticks, got %d", MaxNoiseTicks-1, state.NoiseTicks)
	}

	// A quiet gap longer than the window clears the counter.
	at = at.Add(2 * time.Second)
	state, events := ReduceAudio(state, AudioSample{RMS: 0.05}, at)
	if state.NoiseTicks != 0 {
		t.Fatalf("expected counter reset, got %d ticks", state.NoiseTicks)
	}
	if len(events) != 0 {
		t.Fatalf("quiet sample emitted events: %+v", events)
	}
	if state.Failed {
		t.Error("session failed without reaching the tick budget")
	}
}

func TestReduceScreen(t *testing.T) {
	at := time.Now()
	all := ScreenPolicy{
		TabSwitch:      true,
		FullscreenExit: true,
		Devtools:       true,
		BlockShortcuts: true,
		SecondMonitor:  true,
	}

	cases := []struct {
		name     string
		policy   ScreenPolicy
		event    ScreenEventKind
		severity Severity // "" means nil expected
	}{
		{"tab hidden", all, ScreenTabHidden, SeverityViolation},
		{"tab visible is a notice", all, ScreenTabVisible, SeverityNotice},
		{"fullscreen exit", all, ScreenFullscreenExit, SeverityViolation},
		{"devtools", all, ScreenDevtoolsOpen, SeverityViolation},
		{"blocked shortcut", all, ScreenBlockedShortcut, SeverityViolation},
		{"second monitor", all, ScreenSecondMonitor, SeverityViolation},
		{"fullscreen enter is silent", all, ScreenFullscreenEnter, ""},
		{"disabled check", ScreenPolicy{}, ScreenTabHidden, ""},
		{"partial policy", ScreenPolicy{Devtools: true}, ScreenFullscreenExit, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := ReduceScreen(tc.policy, ScreenSample{Event: tc.event}, at)
			if tc.severity == "" {
				if ev != nil {
					t.Fatalf("expected no event, got %+v", ev)
				}
				return
			}
			if ev == nil {
				t.Fatal("expected an event, got none")
			}
			if ev.Severity != tc.severity || ev.Source != SourceScreen {
				t.Fatalf("unexpected event %+v", ev)
			}
		})
	}
}
