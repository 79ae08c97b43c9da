package proctor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pixellab-dev/invigilo/internal/model"
)

// Phase is the session lifecycle state.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseRunning    Phase = "running"
	PhaseSubmitting Phase = "submitting"
	PhaseScored     Phase = "scored"
)

// Config tunes a session. The zero value uses production defaults; tests
// override the intervals and clock.
type Config struct {
	// SensorStartTimeout bounds each adapter's acquisition wait.
	SensorStartTimeout time.Duration
	// TickInterval is the countdown cadence. Production uses one second.
	TickInterval time.Duration
	// Now is the clock used to stamp integrity events.
	Now func() time.Time
	// ShuffleSeed seeds per-session question/option shuffling so the
	// presented order is reproducible from the stored seed.
	ShuffleSeed int64
	// RemainingSeconds overrides the countdown on resume. Zero means the
	// timer runs from the exam's full duration.
	RemainingSeconds int
	// InitialAnswers seeds the answer map on resume, as option-id slices per
	// question id. Unknown question or option ids are dropped.
	InitialAnswers map[string][]string
	// OnScored is invoked exactly once, after scoring completes, outside the
	// session lock.
	OnScored func(Result)
	// OnTimeUp is invoked once when the countdown reaches zero, before the
	// automatic submission is processed.
	OnTimeUp func()
	Logger   zerolog.Logger
}

// Session is the exam session state machine. It owns all mutable session
// state; adapters and callers only submit events through its methods, which
// serialize on a single mutex — one event is processed to completion before
// the next.
type Session struct {
	ID   uuid.UUID
	exam *model.ExamDefinition

	mu        sync.Mutex
	phase     Phase
	questions []model.Question // presentation order
	answers   map[string]map[string]struct{}
	index     int
	timeLeft  int
	result    *Result

	faceState  FaceState
	gazeState  GazeState
	audioState AudioState
	screenPol  ScreenPolicy

	monitor *Monitor

	camera *CameraAdapter
	mic    *MicrophoneAdapter
	screen *ScreenAdapter
	timer  *TimerAdapter

	// cameraDown/micDown latch when a sensor failed to start: its checks are
	// disabled for the rest of the session and can never raise a violation.
	cameraDown bool
	micDown    bool
	screenDown bool

	releaseOnce sync.Once
	cancelStart context.CancelFunc

	cfg Config
	now func() time.Time
	log zerolog.Logger
}

// NewSession builds a session from a published exam definition. A missing or
// malformed definition fails with ErrInvalidExam and no resources are
// acquired.
func NewSession(exam *model.ExamDefinition, cfg Config) (*Session, error) {
	if exam == nil {
		return nil, ErrInvalidExam
	}
	if err := exam.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExam, err)
	}

	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		ID:      uuid.New(),
		exam:    exam,
		phase:   PhaseNotStarted,
		answers: make(map[string]map[string]struct{}),
		monitor: NewMonitor(),
		cfg:     cfg,
		now:     now,
		log:     cfg.Logger.With().Str("component", "session").Logger(),
	}

	s.questions = presentationOrder(exam, cfg.ShuffleSeed)
	s.seedAnswers(cfg.InitialAnswers)

	s.screenPol = ScreenPolicy{
		TabSwitch:      exam.Settings.Screen.TabSwitch,
		FullscreenExit: exam.Settings.Screen.FullscreenExit,
		Devtools:       exam.Settings.Screen.Devtools,
		BlockShortcuts: exam.Settings.Screen.BlockShortcuts,
		SecondMonitor:  exam.Settings.Screen.SecondMonitor,
	}

	if exam.Settings.Camera.Enabled {
		s.camera = NewCameraAdapter(cfg.SensorStartTimeout, s.handleFrame)
	}
	if exam.Settings.Microphone.Enabled {
		s.mic = NewMicrophoneAdapter(cfg.SensorStartTimeout, s.handleAudio)
	}
	if exam.Settings.Screen.AnyEnabled() {
		s.screen = NewScreenAdapter(cfg.SensorStartTimeout, s.handleScreen)
	}

	return s, nil
}

// seedAnswers pre-fills the answer map from a restored attempt. Ids that no
// longer resolve against the definition are dropped; a single-answer question
// keeps only its first valid selection.
func (s *Session) seedAnswers(initial map[string][]string) {
	for qid, optionIDs := range initial {
		q := s.findQuestion(qid)
		if q == nil {
			continue
		}
		set := make(map[string]struct{})
		for _, oid := range optionIDs {
			if !q.HasOption(oid) {
				continue
			}
			set[oid] = struct{}{}
			if q.Kind == model.AnswerSingle {
				break
			}
		}
		if len(set) > 0 {
			s.answers[qid] = set
		}
	}
}

// presentationOrder copies the question list, applying the per-session
// shuffle when enabled. The copy keeps the definition immutable.
func presentationOrder(exam *model.ExamDefinition, seed int64) []model.Question {
	questions := make([]model.Question, len(exam.Questions))
	copy(questions, exam.Questions)

	if !exam.Settings.General.ShuffleQuestions && !exam.Settings.General.ShuffleOptions {
		return questions
	}

	rng := rand.New(rand.NewSource(seed))
	if exam.Settings.General.ShuffleQuestions {
		rng.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
	}
	if exam.Settings.General.ShuffleOptions {
		for i := range questions {
			opts := make([]model.Option, len(questions[i].Options))
			copy(opts, questions[i].Options)
			rng.Shuffle(len(opts), func(a, b int) {
				opts[a], opts[b] = opts[b], opts[a]
			})
			questions[i].Options = opts
		}
	}
	return questions
}

// Monitor exposes the session's integrity monitor for subscription.
func (s *Session) Monitor() *Monitor { return s.monitor }

// Questions returns the questions in presentation order.
func (s *Session) Questions() []model.Question {
	out := make([]model.Question, len(s.questions))
	copy(out, s.questions)
	return out
}

// QuestionOrder returns the presented question ids in order.
func (s *Session) QuestionOrder() []string {
	ids := make([]string, len(s.questions))
	for i := range s.questions {
		ids[i] = s.questions[i].ID
	}
	return ids
}

// ─── Lifecycle ──────────────────────────────────────────────────────

// Start transitions NotStarted → Running: initializes the countdown and the
// answer map, arms the timer and kicks off sensor acquisition. Sensor starts
// run in the background and never block or fail the transition — a sensor
// that cannot start disables its checks and records a one-time notice.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseNotStarted {
		s.mu.Unlock()
		return fmt.Errorf("start: session already %s", s.phase)
	}
	s.phase = PhaseRunning
	s.timeLeft = s.exam.Settings.Timer.TotalSeconds()
	if s.cfg.RemainingSeconds > 0 {
		s.timeLeft = s.cfg.RemainingSeconds
	}
	s.timer = NewTimerAdapter(s.timeLeft, s.cfg.TickInterval, s.handleTick)
	startCtx, cancel := context.WithCancel(context.Background())
	s.cancelStart = cancel
	s.mu.Unlock()

	// The timer has no acquisition step; arming it cannot fail.
	_ = s.timer.Start(startCtx)

	if s.camera != nil {
		go s.startSensor(startCtx, s.camera, &s.cameraDown)
	}
	if s.mic != nil {
		go s.startSensor(startCtx, s.mic, &s.micDown)
	}
	if s.screen != nil {
		go s.startSensor(startCtx, s.screen, &s.screenDown)
	}

	return nil
}

// startSensor waits for one adapter's acquisition and degrades gracefully on
// failure: the down flag latches, exactly one notice is recorded, and the
// session keeps running.
func (s *Session) startSensor(ctx context.Context, a Adapter, down *bool) {
	err := a.Start(ctx)
	if err == nil {
		return
	}

	s.mu.Lock()
	*down = true
	s.mu.Unlock()

	msg := fmt.Sprintf("%s unavailable; related checks disabled.", a.Source())
	if err == ErrPermissionDenied {
		msg = fmt.Sprintf("%s permission denied; related checks disabled.", a.Source())
	}
	s.log.Warn().Str("sensor", string(a.Source())).Err(err).Msg("Sensor start failed")
	s.monitor.Record(IntegrityEvent{
		Source:   a.Source(),
		Severity: SeverityNotice,
		Message:  msg,
		At:       s.now(),
	})
}

// ResolveSensor routes the client's acquisition report to the adapter.
func (s *Session) ResolveSensor(src Source, status AcquireStatus) {
	switch src {
	case SourceCamera:
		if s.camera != nil {
			s.camera.Resolve(status)
		}
	case SourceMicrophone:
		if s.mic != nil {
			s.mic.Resolve(status)
		}
	case SourceScreen:
		if s.screen != nil {
			s.screen.Resolve(status)
		}
	}
}

// Close releases all adapters. Deterministic and idempotent: safe in any
// phase, exactly one release happens regardless of how the session ended.
func (s *Session) Close() {
	s.release()
}

func (s *Session) release() {
	s.releaseOnce.Do(func() {
		if s.cancelStart != nil {
			s.cancelStart()
		}
		if s.timer != nil {
			s.timer.Stop()
		}
		if s.camera != nil {
			s.camera.Stop()
		}
		if s.mic != nil {
			s.mic.Stop()
		}
		if s.screen != nil {
			s.screen.Stop()
		}
	})
}

// ─── Sample ingestion ───────────────────────────────────────────────

// PushFrame ingests one analyzed camera frame from the stream.
func (s *Session) PushFrame(f FrameSample) {
	if s.camera != nil {
		s.camera.Push(f)
	}
}

// PushAudio ingests one microphone sample from the stream.
func (s *Session) PushAudio(a AudioSample) {
	if s.mic != nil {
		s.mic.Push(a)
	}
}

// PushScreen ingests one screen event from the stream.
func (s *Session) PushScreen(e ScreenSample) {
	if s.screen != nil {
		s.screen.Push(e)
	}
}

func (s *Session) handleFrame(f FrameSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseRunning || s.cameraDown {
		return
	}
	at := s.now()

	if s.exam.Settings.Camera.FaceAbsence {
		var ev *IntegrityEvent
		s.faceState, ev = ReduceFaces(s.faceState, f, at)
		if ev != nil {
			s.monitor.Record(*ev)
		}
	}
	if s.exam.Settings.Camera.GazeTracking {
		var ev *IntegrityEvent
		s.gazeState, ev = ReduceGaze(s.gazeState, f, at)
		if ev != nil {
			s.monitor.Record(*ev)
		}
	}
}

func (s *Session) handleAudio(a AudioSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseRunning || s.micDown {
		return
	}
	if !s.exam.Settings.Microphone.LoudNoise {
		return
	}

	var events []IntegrityEvent
	s.audioState, events = ReduceAudio(s.audioState, a, s.now())
	for _, ev := range events {
		s.monitor.Record(ev)
	}
}

func (s *Session) handleScreen(e ScreenSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseRunning || s.screenDown {
		return
	}
	if ev := ReduceScreen(s.screenPol, e, s.now()); ev != nil {
		s.monitor.Record(*ev)
	}
}

// handleTick processes one countdown tick. The zero-crossing submits
// automatically — and because it runs under the session lock, it is
// processed before any late-arriving answer change.
func (s *Session) handleTick(remaining int) {
	s.mu.Lock()
	if s.phase != PhaseRunning {
		s.mu.Unlock()
		return
	}
	s.timeLeft = remaining
	if remaining > 0 {
		s.mu.Unlock()
		return
	}

	s.monitor.Record(IntegrityEvent{
		Source:   SourceTimer,
		Severity: SeverityNotice,
		Message:  "Time is up. The exam was submitted automatically.",
		At:       s.now(),
	})
	if s.cfg.OnTimeUp != nil {
		s.cfg.OnTimeUp()
	}
	s.submitLocked()
	s.mu.Unlock()
}

// ─── Actions ────────────────────────────────────────────────────────

// SetAnswer records an option selection. Single-answer questions replace the
// selection; multiple-answer questions toggle membership. Returns
// ErrNotRunning once the session has left Running (submission is a hard
// barrier).
func (s *Session) SetAnswer(questionID, optionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseRunning {
		return ErrNotRunning
	}

	q := s.findQuestion(questionID)
	if q == nil {
		return fmt.Errorf("set answer: unknown question %q", questionID)
	}
	if !q.HasOption(optionID) {
		return fmt.Errorf("set answer: unknown option %q", optionID)
	}

	set := s.answers[questionID]
	if set == nil {
		set = make(map[string]struct{})
		s.answers[questionID] = set
	}

	switch q.Kind {
	case model.AnswerSingle:
		for id := range set {
			delete(set, id)
		}
		set[optionID] = struct{}{}
	default:
		if _, ok := set[optionID]; ok {
			delete(set, optionID)
		} else {
			set[optionID] = struct{}{}
		}
	}
	return nil
}

// Navigate moves the current question index by delta. Meaningful only in
// one-by-one mode; otherwise a no-op. The index clamps to the question
// range and never wraps.
func (s *Session) Navigate(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseRunning {
		return
	}
	if !s.exam.Settings.General.OneByOne {
		return
	}

	s.index += delta
	if s.index < 0 {
		s.index = 0
	}
	if max := len(s.questions) - 1; s.index > max {
		s.index = max
	}
}

// Submit finishes the session: Running → Submitting → Scored, synchronously.
// Idempotent — a second call (or a timer-driven auto-submit racing a manual
// one) is a no-op that returns the already-computed result.
func (s *Session) Submit() *Result {
	s.mu.Lock()
	if s.phase != PhaseRunning {
		result := s.result
		s.mu.Unlock()
		return result
	}
	s.submitLocked()
	result := s.result
	s.mu.Unlock()
	return result
}

// submitLocked runs the terminal transition. Caller holds s.mu; the lock is
// released (and reacquired) around the scored callback so subscribers can
// read session state.
func (s *Session) submitLocked() {
	s.phase = PhaseSubmitting

	// Resource release is guaranteed even if scoring panics.
	defer s.release()

	answers := s.answerSets()
	result := Score(s.questions, answers)
	s.result = &result
	s.phase = PhaseScored

	if s.cfg.OnScored != nil {
		s.mu.Unlock()
		s.cfg.OnScored(result)
		s.mu.Lock()
	}
}

// ─── Snapshots ──────────────────────────────────────────────────────

// Snapshot is a read-only view of the session state.
type Snapshot struct {
	SessionID  uuid.UUID           `json:"session_id"`
	ExamID     uuid.UUID           `json:"exam_id"`
	Phase      Phase               `json:"phase"`
	TimeLeft   int                 `json:"time_left"`
	Index      int                 `json:"index"`
	Answers    map[string][]string `json:"answers"`
	Failed     bool                `json:"failed"`
	FailReason string              `json:"fail_reason,omitempty"`
	Notices    []IntegrityEvent    `json:"notices"`
}

// Snapshot returns the current state. The returned value shares nothing
// with session internals.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	answers := s.answerSets()
	snap := Snapshot{
		SessionID: s.ID,
		ExamID:    s.exam.ID,
		Phase:     s.phase,
		TimeLeft:  s.timeLeft,
		Index:     s.index,
		Answers:   answers,
	}
	s.mu.Unlock()

	snap.Failed = s.monitor.HasFailed()
	snap.FailReason = s.monitor.FailReason()
	snap.Notices = s.monitor.Notices()
	return snap
}

// Result returns the scoring outcome, or nil before the session is scored.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// TimeLeft returns the remaining seconds.
func (s *Session) TimeLeft() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeLeft
}

func (s *Session) findQuestion(id string) *model.Question {
	for i := range s.questions {
		if s.questions[i].ID == id {
			return &s.questions[i]
		}
	}
	return nil
}

// answerSets converts the internal answer sets to sorted-insertion slices.
// Caller holds s.mu.
func (s *Session) answerSets() map[string][]string {
	out := make(map[string][]string, len(s.answers))
	for qid, set := range s.answers {
		ids := make([]string, 0, len(set))
		// Iterate options in presentation order so the slice is stable.
		if q := s.findQuestion(qid); q != nil {
			for _, o := range q.Options {
				if _, ok := set[o.ID]; ok {
					ids = append(ids, o.ID)
				}
			}
		}
		out[qid] = ids
	}
	return out
}
