package service

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pixellab-dev/invigilo/internal/config"
	"github.com/pixellab-dev/invigilo/internal/model"
	"github.com/pixellab-dev/invigilo/internal/proctor"
	"github.com/pixellab-dev/invigilo/internal/repository"
)

// Session errors.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrAttemptCompleted = errors.New("attempt already completed")
)

// LiveSession is one in-memory running session plus the channels the
// WebSocket writer drains. Events overflowing the buffer are dropped for the
// live feed only — the monitor log and the persistence queue keep everything.
type LiveSession struct {
	Session     *proctor.Session
	AttemptID   uuid.UUID
	ExamID      uuid.UUID
	CandidateID string
	Events      chan proctor.IntegrityEvent
	Graded      chan proctor.Result
}

// StartedSession is the response to a successful session start.
type StartedSession struct {
	SessionID uuid.UUID            `json:"session_id"`
	AttemptID uuid.UUID            `json:"attempt_id"`
	Token     string               `json:"token"`
	Paper     model.CandidatePaper `json:"paper"`
}

// SessionService owns the registry of live sessions and wires the engine's
// outputs (integrity events, graded results) to Redis queues and the
// attempt repository.
type SessionService struct {
	examService *ExamService
	attemptRepo *repository.AttemptRepository
	auth        *AuthService
	rdb         *redis.Client
	cfg         *config.Config
	log         zerolog.Logger

	mu   sync.RWMutex
	live map[uuid.UUID]*LiveSession
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	examService *ExamService,
	attemptRepo *repository.AttemptRepository,
	auth *AuthService,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		examService: examService,
		attemptRepo: attemptRepo,
		auth:        auth,
		rdb:         rdb,
		cfg:         cfg,
		log:         log.With().Str("component", "session_service").Logger(),
		live:        make(map[uuid.UUID]*LiveSession),
	}
}

// Start begins (or resumes) a candidate's session for a published exam.
// The access code is checked against the stored bcrypt hash; a completed
// attempt can never be restarted. An IN_PROGRESS attempt with no live
// session — the server restarted mid-exam — comes back with its autosaved
// answers and the original countdown deadline.
func (s *SessionService) Start(ctx context.Context, examID uuid.UUID, req *model.StartSessionRequest) (*StartedSession, error) {
	exam, err := s.examService.GetPublished(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := s.auth.CheckAccessCode(exam.AccessCodeHash, req.AccessCode); err != nil {
		return nil, err
	}

	attempt := &model.Attempt{ExamID: examID, CandidateID: req.CandidateID}
	var resume *resumeState
	err = s.attemptRepo.Create(ctx, attempt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict: the candidate already has an attempt for this exam.
		existing, gerr := s.attemptRepo.GetByExamAndCandidate(ctx, examID, req.CandidateID)
		if gerr != nil {
			return nil, fmt.Errorf("get existing attempt: %w", gerr)
		}
		if existing.Status == model.AttemptStatusCompleted {
			return nil, ErrAttemptCompleted
		}
		if started := s.findByAttempt(existing.ID); started != nil {
			// Reconnect path: reissue a token for the running session.
			return s.startedResponse(started, exam)
		}
		// Respawn path (server restarted mid-attempt): rebuild the session
		// from the autosaved answers and the stored countdown deadline.
		attempt = existing
		resume = s.restoreState(ctx, exam, existing)
	} else if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	if resume != nil && resume.Expired {
		// The deadline passed while no server was running. Score what was
		// autosaved and close the attempt instead of granting fresh time.
		live, err := s.spawn(ctx, exam, attempt, resume)
		if err != nil {
			return nil, err
		}
		s.Submit(live)
		return nil, ErrAttemptCompleted
	}

	live, err := s.spawn(ctx, exam, attempt, resume)
	if err != nil {
		return nil, err
	}
	return s.startedResponse(live, exam)
}

// resumeState carries what survives a server restart: the autosaved answers
// and the countdown remainder derived from the stored deadline.
type resumeState struct {
	Answers   map[string][]string
	Remaining int
	Expired   bool
}

// restoreState rebuilds an interrupted attempt's session inputs. Answers come
// from the Redis autosave hash, falling back to the persisted attempt_answers
// rows; the remaining time comes from the stored deadline, falling back to
// started_at plus the exam duration.
func (s *SessionService) restoreState(ctx context.Context, exam *model.ExamDefinition, attempt *model.Attempt) *resumeState {
	resume := &resumeState{}

	key := config.CacheKey.CandidateAnswersKey(exam.ID.String(), attempt.CandidateID)
	if saved, err := s.rdb.HGetAll(ctx, key).Result(); err == nil && len(saved) > 0 {
		resume.Answers = make(map[string][]string, len(saved))
		for qid, raw := range saved {
			var ids []string
			if err := json.Unmarshal([]byte(raw), &ids); err == nil {
				resume.Answers[qid] = ids
			}
		}
	} else if persisted, derr := s.attemptRepo.GetAnswers(ctx, attempt.ID); derr != nil {
		s.log.Error().Err(derr).Str("attempt_id", attempt.ID.String()).Msg("Restore answers failed")
	} else if len(persisted) > 0 {
		resume.Answers = persisted
	}

	total := exam.Settings.Timer.TotalSeconds()
	if total <= 0 {
		return resume
	}

	deadline := attempt.StartedAt.Add(time.Duration(total) * time.Second)
	dkey := config.CacheKey.CandidateDeadlineKey(exam.ID.String(), attempt.CandidateID)
	if unix, err := s.rdb.Get(ctx, dkey).Int64(); err == nil {
		deadline = time.Unix(unix, 0)
	}

	resume.Remaining = int(time.Until(deadline).Seconds())
	if resume.Remaining <= 0 {
		// Keep the engine constructible; the caller submits immediately.
		resume.Remaining = 1
		resume.Expired = true
	}
	return resume
}

// spawn builds the engine session for an attempt, registers it, wires the
// monitor to the live feed and the persistence queue, and starts it. A
// non-nil resume seeds the engine with the restored answers and countdown.
func (s *SessionService) spawn(ctx context.Context, exam *model.ExamDefinition, attempt *model.Attempt, resume *resumeState) (*LiveSession, error) {
	live := &LiveSession{
		AttemptID:   attempt.ID,
		ExamID:      exam.ID,
		CandidateID: attempt.CandidateID,
		Events:      make(chan proctor.IntegrityEvent, 64),
		Graded:      make(chan proctor.Result, 1),
	}

	engineCfg := proctor.Config{
		SensorStartTimeout: s.cfg.SensorStartTimeout,
		ShuffleSeed:        shuffleSeed(attempt.ID),
		Logger:             s.log,
		OnScored:           func(r proctor.Result) { s.onScored(live, r) },
	}
	if resume != nil {
		engineCfg.RemainingSeconds = resume.Remaining
		engineCfg.InitialAnswers = resume.Answers
	}

	// The scored callback only fires after Start, so capturing live before
	// its Session field is set is safe.
	session, err := proctor.NewSession(exam, engineCfg)
	if err != nil {
		return nil, err
	}
	live.Session = session

	// Subscribers registered before Start so no event is missed.
	session.Monitor().Subscribe(func(ev proctor.IntegrityEvent) {
		select {
		case live.Events <- ev:
		default:
		}
		s.queueEvent(live, ev)
	})

	if err := session.Start(ctx); err != nil {
		session.Close()
		return nil, err
	}

	s.mu.Lock()
	s.live[session.ID] = live
	s.mu.Unlock()

	s.afterStart(context.Background(), live, exam)

	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("exam_id", exam.ID.String()).
		Str("candidate_id", attempt.CandidateID).
		Msg("Session started")
	return live, nil
}

// afterStart records the session's derived state in Redis: the question
// order (write-behind to the attempt row) and the countdown deadline used
// for timer resync on reconnect.
func (s *SessionService) afterStart(ctx context.Context, live *LiveSession, exam *model.ExamDefinition) {
	order := live.Session.QuestionOrder()
	payload, _ := json.Marshal(map[string]interface{}{
		"attempt_id": live.AttemptID.String(),
		"order":      order,
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistOrderQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).Msg("Queue question order failed")
	}

	if total := exam.Settings.Timer.TotalSeconds(); total > 0 {
		// SetNX: on a respawn the original deadline stays authoritative, so a
		// restart can never extend the candidate's time.
		deadline := time.Now().Add(time.Duration(total) * time.Second)
		key := config.CacheKey.CandidateDeadlineKey(exam.ID.String(), live.CandidateID)
		if err := s.rdb.SetNX(ctx, key, deadline.Unix(), time.Duration(total)*time.Second+time.Hour).Err(); err != nil {
			s.log.Error().Err(err).Msg("Store deadline failed")
		}
	}
}

func (s *SessionService) startedResponse(live *LiveSession, exam *model.ExamDefinition) (*StartedSession, error) {
	token, err := s.auth.GenerateSessionToken(live.CandidateID, live.ExamID, live.Session.ID)
	if err != nil {
		return nil, err
	}

	return &StartedSession{
		SessionID: live.Session.ID,
		AttemptID: live.AttemptID,
		Token:     token,
		Paper: model.CandidatePaper{
			ExamID:      exam.ID.String(),
			Title:       exam.Title,
			Description: exam.Description,
			OneByOne:    exam.Settings.General.OneByOne,
			TimerSecs:   live.Session.TimeLeft(),
			Questions:   model.SanitizeQuestions(live.Session.Questions()),
		},
	}, nil
}

// Get returns the live session for an id.
func (s *SessionService) Get(sessionID uuid.UUID) (*LiveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	live, ok := s.live[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return live, nil
}

func (s *SessionService) findByAttempt(attemptID uuid.UUID) *LiveSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, live := range s.live {
		if live.AttemptID == attemptID {
			return live
		}
	}
	return nil
}

// SaveAnswer applies an answer change to the engine, mirrors it to the
// Redis autosave hash, and queues the write-behind persistence.
func (s *SessionService) SaveAnswer(ctx context.Context, live *LiveSession, questionID, optionID string) error {
	if err := live.Session.SetAnswer(questionID, optionID); err != nil {
		return err
	}

	selected := live.Session.Snapshot().Answers[questionID]
	raw, _ := json.Marshal(selected)

	key := config.CacheKey.CandidateAnswersKey(live.ExamID.String(), live.CandidateID)
	if err := s.rdb.HSet(ctx, key, questionID, raw).Err(); err != nil {
		s.log.Error().Err(err).Str("attempt_id", live.AttemptID.String()).Msg("Autosave Redis error")
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"attempt_id":  live.AttemptID.String(),
		"question_id": questionID,
		"option_ids":  selected,
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).Msg("Queue answer failed")
	}
	return nil
}

// Submit finishes a live session. Scoring and persistence run through the
// session's scored callback; a repeat submit is a no-op.
func (s *SessionService) Submit(live *LiveSession) *proctor.Result {
	return live.Session.Submit()
}

// queueEvent pushes one integrity event to the persistence queue and the
// attempt's PubSub channel for external monitors.
func (s *SessionService) queueEvent(live *LiveSession, ev proctor.IntegrityEvent) {
	ctx := context.Background()

	payload, _ := json.Marshal(map[string]interface{}{
		"attempt_id":  live.AttemptID.String(),
		"source":      ev.Source,
		"severity":    ev.Severity,
		"message":     ev.Message,
		"recorded_at": ev.At.Unix(),
	})

	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistEventsQueue, payload)
	pipe.Publish(ctx, config.CacheKey.AttemptEventChannel(live.AttemptID.String()), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).Str("attempt_id", live.AttemptID.String()).Msg("Queue integrity event failed")
	}
}

// onScored runs once per session, after the engine finished grading. It
// queues the result for persistence, feeds the live graded channel, and
// retires the session from the registry.
func (s *SessionService) onScored(live *LiveSession, result proctor.Result) {
	ctx := context.Background()

	review := make([]model.QuestionReview, 0, len(result.PerQuestion))
	for _, qs := range result.PerQuestion {
		review = append(review, model.QuestionReview{
			QuestionID:        qs.QuestionID,
			CorrectOptionIDs:  qs.CorrectOptionIDs,
			SelectedOptionIDs: qs.SelectedOptionIDs,
			IsCorrect:         qs.IsCorrect,
			PointsAwarded:     qs.PointsAwarded,
		})
	}

	attemptResult := model.AttemptResult{
		AttemptID:   live.AttemptID,
		ExamID:      live.ExamID,
		CandidateID: live.CandidateID,
		Review:      review,
		Score:       result.Total,
		MaxScore:    result.MaxTotal,
		Failed:      live.Session.Monitor().HasFailed(),
		FailReason:  live.Session.Monitor().FailReason(),
	}

	payload, err := json.Marshal(attemptResult)
	if err != nil {
		s.log.Error().Err(err).Msg("Marshal result failed")
	} else if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).Str("attempt_id", live.AttemptID.String()).Msg("Queue result failed")
	}

	select {
	case live.Graded <- result:
	default:
	}

	s.mu.Lock()
	delete(s.live, live.Session.ID)
	s.mu.Unlock()

	live.Session.Close()

	s.log.Info().
		Str("attempt_id", live.AttemptID.String()).
		Float64("score", result.Total).
		Float64("max_score", result.MaxTotal).
		Bool("failed", attemptResult.Failed).
		Msg("Session scored")
}

// Result loads a finished attempt's persisted result for the review screen.
func (s *SessionService) Result(ctx context.Context, attemptID uuid.UUID) (*model.AttemptResult, error) {
	attempt, err := s.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptStatusCompleted {
		return nil, ErrSessionNotFound
	}

	review, err := s.attemptRepo.GetReview(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	res := &model.AttemptResult{
		AttemptID:   attempt.ID,
		ExamID:      attempt.ExamID,
		CandidateID: attempt.CandidateID,
		Review:      review,
		Failed:      attempt.Failed,
		FailReason:  attempt.FailReason,
	}
	if attempt.Score != nil {
		res.Score = *attempt.Score
	}
	if attempt.MaxScore != nil {
		res.MaxScore = *attempt.MaxScore
	}
	return res, nil
}

// ListAttempts pages through an exam's attempts for the builder's results
// view.
func (s *SessionService) ListAttempts(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.Attempt, int, error) {
	return s.attemptRepo.ListByExam(ctx, examID, limit, offset)
}

// CloseAll shuts down every live session. Called on server shutdown.
func (s *SessionService) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, live := range s.live {
		live.Session.Close()
		delete(s.live, id)
	}
}

// shuffleSeed derives a deterministic shuffle seed from the attempt id so a
// restarted server presents the same order for the same attempt.
func shuffleSeed(attemptID uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(attemptID[:8]))
}
