package proctor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pixellab-dev/invigilo/internal/model"
)

func sessionExam(mutate func(*model.ExamDefinition)) *model.ExamDefinition {
	exam := &model.ExamDefinition{
		Title:  "Unit Exam",
		Status: model.ExamStatusPublished,
		Questions: []model.Question{
			{ID: "q1", Kind: model.AnswerSingle, Points: 10, Options: []model.Option{
				{ID: "q1a", IsCorrect: true},
				{ID: "q1b"},
			}},
			{ID: "q2", Kind: model.AnswerMultiple, Points: 5, Options: []model.Option{
				{ID: "q2a", IsCorrect: true},
				{ID: "q2b", IsCorrect: true},
				{ID: "q2c"},
			}},
			{ID: "q3", Kind: model.AnswerSingle, Points: 5, Options: []model.Option{
				{ID: "q3a"},
				{ID: "q3b", IsCorrect: true},
			}},
		},
	}
	if mutate != nil {
		mutate(exam)
	}
	return exam
}

func testConfig() Config {
	return Config{
		SensorStartTimeout: 2 * time.Second,
		TickInterval:       time.Millisecond,
		Logger:             zerolog.Nop(),
	}
}

func TestNewSessionRejectsInvalidExam(t *testing.T) {
	if _, err := NewSession(nil, testConfig()); !errors.Is(err, ErrInvalidExam) {
		t.Fatalf("nil exam: err = %v, want ErrInvalidExam", err)
	}

	empty := sessionExam(func(e *model.ExamDefinition) { e.Questions = nil })
	if _, err := NewSession(empty, testConfig()); !errors.Is(err, ErrInvalidExam) {
		t.Fatalf("empty exam: err = %v, want ErrInvalidExam", err)
	}
}

func TestSessionAnswerFlow(t *testing.T) {
	s, err := NewSession(sessionExam(nil), testConfig())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	if s.Phase() != PhaseNotStarted {
		t.Fatalf("phase = %s before start", s.Phase())
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.Phase() != PhaseRunning {
		t.Fatalf("phase = %s after start", s.Phase())
	}

	// Single-answer questions replace the previous selection.
	if err := s.SetAnswer("q1", "q1b"); err != nil {
		t.Fatalf("set answer: %v", err)
	}
	if err := s.SetAnswer("q1", "q1a"); err != nil {
		t.Fatalf("set answer: %v", err)
	}
	if got := s.Snapshot().Answers["q1"]; len(got) != 1 || got[0] != "q1a" {
		t.Fatalf("q1 answer = %v, want [q1a]", got)
	}

	// Multiple-answer questions toggle membership.
	for _, opt := range []string{"q2a", "q2b", "q2c", "q2c"} {
		if err := s.SetAnswer("q2", opt); err != nil {
			t.Fatalf("set answer %s: %v", opt, err)
		}
	}
	if got := s.Snapshot().Answers["q2"]; len(got) != 2 {
		t.Fatalf("q2 answer = %v, want the toggled pair", got)
	}

	if err := s.SetAnswer("q1", "nope"); err == nil {
		t.Error("unknown option accepted")
	}
	if err := s.SetAnswer("ghost", "q1a"); err == nil {
		t.Error("unknown question accepted")
	}

	result := s.Submit()
	if result == nil {
		t.Fatal("submit returned nil result")
	}
	if result.Total != 15 {
		t.Fatalf("total = %v, want 15", result.Total)
	}
	if s.Phase() != PhaseScored {
		t.Fatalf("phase = %s after submit", s.Phase())
	}
}

func TestSessionSubmitIsIdempotent(t *testing.T) {
	var scored atomic.Int32
	cfg := testConfig()
	cfg.OnScored = func(Result) { scored.Add(1) }

	s, err := NewSession(sessionExam(nil), cfg)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = s.SetAnswer("q1", "q1a")

	var wg sync.WaitGroup
	results := make([]*Result, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.Submit()
		}(i)
	}
	wg.Wait()

	if n := scored.Load(); n != 1 {
		t.Fatalf("scored callback ran %d times, want 1", n)
	}
	for i, r := range results {
		if r == nil {
			t.Fatalf("submit %d returned nil", i)
		}
		if r != results[0] {
			t.Fatalf("submit %d returned a different result", i)
		}
	}

	// Changes after the submission barrier are refused.
	if err := s.SetAnswer("q3", "q3b"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("post-submit set answer err = %v, want ErrNotRunning", err)
	}
	if got := s.Snapshot().Answers["q3"]; len(got) != 0 {
		t.Fatalf("answer recorded after submit: %v", got)
	}
}

func TestSessionAutoSubmitOnTimeout(t *testing.T) {
	scoredCh := make(chan Result, 2)
	cfg := testConfig()
	cfg.OnScored = func(r Result) { scoredCh <- r }

	exam := sessionExam(func(e *model.ExamDefinition) {
		e.Settings.Timer = model.TimerSettings{Enabled: true, Minutes: 1}
	})
	s, err := NewSession(exam, cfg)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = s.SetAnswer("q1", "q1a")

	select {
	case <-scoredCh:
	case <-time.After(5 * time.Second):
		t.Fatal("countdown never submitted the session")
	}

	if s.Phase() != PhaseScored {
		t.Fatalf("phase = %s after timeout", s.Phase())
	}
	if s.TimeLeft() != 0 {
		t.Fatalf("time left = %d after timeout", s.TimeLeft())
	}

	var timeUp int
	for _, ev := range s.Monitor().Notices() {
		if ev.Source == SourceTimer && strings.Contains(ev.Message, "Time is up") {
			timeUp++
		}
	}
	if timeUp != 1 {
		t.Fatalf("time-is-up notices = %d, want 1", timeUp)
	}

	// A manual submit after the timeout is a no-op on the same result.
	result := s.Submit()
	if result == nil || result.Total != 10 {
		t.Fatalf("post-timeout submit result = %+v", result)
	}
	select {
	case <-scoredCh:
		t.Fatal("scored callback ran twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionCameraDeniedKeepsRunning(t *testing.T) {
	exam := sessionExam(func(e *model.ExamDefinition) {
		e.Settings.Camera = model.CameraSettings{Enabled: true, FaceAbsence: true}
	})
	s, err := NewSession(exam, testConfig())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	events := make(chan IntegrityEvent, 16)
	s.Monitor().Subscribe(func(ev IntegrityEvent) { events <- ev })

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.ResolveSensor(SourceCamera, AcquireDenied)

	select {
	case ev := <-events:
		if ev.Severity != SeverityNotice || ev.Source != SourceCamera {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if !strings.Contains(ev.Message, "permission denied") {
			t.Fatalf("message = %q", ev.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no notice for the denied camera")
	}

	if s.Phase() != PhaseRunning {
		t.Fatalf("phase = %s; a denied sensor must not block the session", s.Phase())
	}
	if s.Monitor().HasFailed() {
		t.Fatal("denied sensor marked the session failed")
	}

	// Frames that slip through anyway must be ignored.
	s.PushFrame(frameWithFaces(0))
	select {
	case ev := <-events:
		t.Fatalf("disabled camera produced event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionCameraEventsFlow(t *testing.T) {
	exam := sessionExam(func(e *model.ExamDefinition) {
		e.Settings.Camera = model.CameraSettings{Enabled: true, FaceAbsence: true}
	})
	s, err := NewSession(exam, testConfig())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	events := make(chan IntegrityEvent, 16)
	s.Monitor().Subscribe(func(ev IntegrityEvent) { events <- ev })

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.ResolveSensor(SourceCamera, AcquireReady)

	// The adapter activates asynchronously after the ack; frames pushed
	// before that are dropped, so keep feeding the empty frame until the
	// edge-triggered violation lands. Repeats are absorbed by the debouncer.
	deadline := time.After(2 * time.Second)
	var first IntegrityEvent
wait:
	for {
		s.PushFrame(frameWithFaces(0))
		select {
		case first = <-events:
			break wait
		case <-deadline:
			t.Fatal("no violation for the empty frame")
		case <-time.After(time.Millisecond):
		}
	}

	if first.Severity != SeverityViolation || first.Message != "No face detected. Stay in view." {
		t.Fatalf("unexpected first event: %+v", first)
	}

	s.PushFrame(frameWithFaces(1))
	select {
	case ev := <-events:
		if ev.Message != "Face back in view." {
			t.Fatalf("unexpected recovery event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no recovery notice")
	}

	if s.Monitor().HasFailed() {
		t.Fatal("violations alone must not fail the session")
	}
}

func TestSessionSustainedNoiseLatchesFailure(t *testing.T) {
	exam := sessionExam(func(e *model.ExamDefinition) {
		e.Settings.Microphone = model.MicrophoneSettings{Enabled: true, LoudNoise: true}
	})
	s, err := NewSession(exam, testConfig())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.ResolveSensor(SourceMicrophone, AcquireReady)

	deadline := time.Now().Add(2 * time.Second)
	for !s.Monitor().HasFailed() {
		if time.Now().After(deadline) {
			t.Fatal("sustained noise never latched the failure")
		}
		s.PushAudio(AudioSample{RMS: 0.5})
		time.Sleep(time.Millisecond)
	}

	snap := s.Snapshot()
	if !snap.Failed {
		t.Fatal("snapshot does not carry the failed flag")
	}
	if snap.FailReason == "" {
		t.Fatal("fail reason missing")
	}
	// A failed session still runs to submission; the flag rides along.
	if snap.Phase != PhaseRunning {
		t.Fatalf("phase = %s; failure must not end the session", snap.Phase)
	}
	if result := s.Submit(); result == nil {
		t.Fatal("failed session could not submit")
	}
}

func TestSessionNavigateClamps(t *testing.T) {
	exam := sessionExam(func(e *model.ExamDefinition) {
		e.Settings.General.OneByOne = true
	})
	s, err := NewSession(exam, testConfig())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	s.Navigate(100)
	if got := s.Snapshot().Index; got != 2 {
		t.Fatalf("index = %d after overshoot, want 2", got)
	}
	s.Navigate(-100)
	if got := s.Snapshot().Index; got != 0 {
		t.Fatalf("index = %d after undershoot, want 0", got)
	}
	s.Navigate(1)
	if got := s.Snapshot().Index; got != 1 {
		t.Fatalf("index = %d, want 1", got)
	}
}

func TestSessionNavigateNoOpWithoutOneByOne(t *testing.T) {
	s, err := NewSession(sessionExam(nil), testConfig())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	s.Navigate(2)
	if got := s.Snapshot().Index; got != 0 {
		t.Fatalf("index = %d; navigation must be a no-op in all-at-once mode", got)
	}
}

func TestSessionShuffleIsSeedDeterministic(t *testing.T) {
	exam := sessionExam(func(e *model.ExamDefinition) {
		e.Settings.General.ShuffleQuestions = true
		e.Settings.General.ShuffleOptions = true
	})

	cfg := testConfig()
	cfg.ShuffleSeed = 42

	a, err := NewSession(exam, cfg)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer a.Close()
	b, err := NewSession(exam, cfg)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer b.Close()

	orderA, orderB := a.QuestionOrder(), b.QuestionOrder()
	if len(orderA) != 3 || len(orderB) != 3 {
		t.Fatalf("order lengths: %d, %d", len(orderA), len(orderB))
	}
	for i := range orderA {
		if orderA[i] != orderB[i] {
			t.Fatalf("same seed diverged: %v vs %v", orderA, orderB)
		}
	}

	// The shuffle must not touch the definition itself.
	if exam.Questions[0].ID != "q1" || exam.Questions[2].ID != "q3" {
		t.Fatalf("definition mutated: %v", exam.Questions)
	}
}

func TestSessionResumeRestoresState(t *testing.T) {
	cfg := testConfig()
	cfg.RemainingSeconds = 900
	cfg.InitialAnswers = map[string][]string{
		"q1":    {"q1a", "q1b"}, // single kind: only the first valid id survives
		"q2":    {"q2a", "ghost-opt"},
		"ghost": {"q1a"},
	}

	exam := sessionExam(func(e *model.ExamDefinition) {
		e.Settings.Timer = model.TimerSettings{Enabled: true, Minutes: 30}
	})
	s, err := NewSession(exam, cfg)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The countdown resumes from the restored remainder, not the full 1800.
	if got := s.TimeLeft(); got <= 0 || got > 900 {
		t.Fatalf("time left = %d, want the restored countdown", got)
	}

	answers := s.Snapshot().Answers
	if got := answers["q1"]; len(got) != 1 || got[0] != "q1a" {
		t.Fatalf("q1 restored as %v, want [q1a]", got)
	}
	if got := answers["q2"]; len(got) != 1 || got[0] != "q2a" {
		t.Fatalf("q2 restored as %v, want [q2a]", got)
	}
	if _, ok := answers["ghost"]; ok {
		t.Fatal("unknown question id survived the restore")
	}

	// Restored selections score like freshly entered ones.
	result := s.Submit()
	if result == nil || result.Total != 10 {
		t.Fatalf("resumed submit result = %+v, want total 10", result)
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	s, err := NewSession(sessionExam(nil), testConfig())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	s.Close()
	s.Close()

	// Close before submission leaves the session unscored; nothing crashes.
	if s.Result() != nil {
		t.Fatal("close scored the session")
	}
}
