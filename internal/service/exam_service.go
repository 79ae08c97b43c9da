package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pixellab-dev/invigilo/internal/config"
	"github.com/pixellab-dev/invigilo/internal/model"
	"github.com/pixellab-dev/invigilo/internal/repository"
	"github.com/pixellab-dev/invigilo/internal/response"
)

// Domain Errors
var (
	ErrNoQuestions      = errors.New("exam has no questions, cannot publish/start")
	ErrExamNotDraft     = errors.New("exam status is not DRAFT")
	ErrExamNotPublished = errors.New("exam status is not PUBLISHED")
)

// ExamService handles exam definition business logic and Redis caching.
// Published definitions are cached whole; candidate-facing sanitization
// happens per session because the presented order may be shuffled.
type ExamService struct {
	examRepo *repository.ExamRepository
	auth     *AuthService
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(examRepo *repository.ExamRepository, auth *AuthService, rdb *redis.Client, log zerolog.Logger) *ExamService {
	return &ExamService{
		examRepo: examRepo,
		auth:     auth,
		rdb:      rdb,
		log:      log.With().Str("component", "exam_service").Logger(),
	}
}

// Create inserts a new exam definition as DRAFT. Questions and options get
// ids minted here when the editor did not supply them.
func (s *ExamService) Create(ctx context.Context, req *model.CreateExamRequest) (*model.ExamDefinition, error) {
	exam := &model.ExamDefinition{
		Title:       req.Title,
		Description: req.Description,
		Questions:   buildQuestions(req.Questions),
		Settings:    req.Settings,
		Status:      model.ExamStatusDraft,
	}

	if req.AccessCode != "" {
		hash, err := s.auth.HashAccessCode(req.AccessCode)
		if err != nil {
			return nil, fmt.Errorf("hash access code: %w", err)
		}
		exam.AccessCodeHash = hash
	}

	if err := s.examRepo.Create(ctx, exam); err != nil {
		return nil, err
	}
	return exam, nil
}

// Update modifies an existing draft exam definition.
func (s *ExamService) Update(ctx context.Context, id uuid.UUID, req *model.UpdateExamRequest) (*model.ExamDefinition, error) {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}

	if req.Title != "" {
		exam.Title = req.Title
	}
	if req.Description != nil {
		exam.Description = *req.Description
	}
	if req.Questions != nil {
		exam.Questions = buildQuestions(req.Questions)
	}
	if req.Settings != nil {
		exam.Settings = *req.Settings
	}
	if req.AccessCode != "" {
		hash, err := s.auth.HashAccessCode(req.AccessCode)
		if err != nil {
			return nil, fmt.Errorf("hash access code: %w", err)
		}
		exam.AccessCodeHash = hash
	}

	if err := s.examRepo.Update(ctx, exam); err != nil {
		return nil, err
	}
	return exam, nil
}

// Delete removes a draft exam definition.
func (s *ExamService) Delete(ctx context.Context, id uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.examRepo.Delete(ctx, id)
}

// GetByID retrieves an exam definition by its UUID (builder view, not
// sanitized).
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	return s.examRepo.GetByID(ctx, id)
}

// List retrieves exam definitions with an optional title filter.
func (s *ExamService) List(ctx context.Context, titleFilter string, page, perPage int) ([]model.ExamDefinition, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	exams, total, err := s.examRepo.ListPaginated(ctx, titleFilter, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if exams == nil {
		exams = []model.ExamDefinition{}
	}

	return exams, response.NewPagination(page, perPage, total), nil
}

// Publish validates a draft definition, changes its status to PUBLISHED and
// caches it in Redis. This is the path that populates the fast lane the
// session service reads from.
func (s *ExamService) Publish(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	if err := exam.Validate(); err != nil {
		if errors.Is(err, model.ErrExamNoQuestions) {
			return ErrNoQuestions
		}
		return fmt.Errorf("validate exam: %w", err)
	}

	exam.Status = model.ExamStatusPublished
	if err := s.warmExamCache(ctx, exam); err != nil {
		return err
	}
	if err := s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusPublished); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam published")
	return nil
}

// Archive changes a published exam's status to ARCHIVED and evicts its cache
// so no new sessions can start from it.
func (s *ExamService) Archive(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return ErrExamNotPublished
	}

	if err := s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusArchived); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if err := s.rdb.Del(ctx,
		config.CacheKey.ExamDefinitionKey(examID.String()),
		config.CacheKey.ExamAccessHashKey(examID.String())).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Cache evict failed")
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam archived")
	return nil
}

// GetPublished retrieves a published definition, cache-first with a database
// failover that re-warms the cache.
func (s *ExamService) GetPublished(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	key := config.CacheKey.ExamDefinitionKey(examID.String())

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var exam model.ExamDefinition
		if err := json.Unmarshal(data, &exam); err == nil {
			// The hash lives in its own key; a miss means no code required.
			hash, err := s.rdb.Get(ctx, config.CacheKey.ExamAccessHashKey(examID.String())).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				s.log.Warn().Err(err).Msg("Redis read failed, falling back to database")
			} else {
				exam.AccessCodeHash = hash
				return &exam, nil
			}
		} else {
			s.log.Warn().Str("exam_id", examID.String()).Msg("Corrupt cached definition, falling back to database")
		}
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Redis read failed, falling back to database")
	}

	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}
	if err := s.warmExamCache(ctx, exam); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Cache re-warm failed")
	}
	return exam, nil
}

// warmExamCache serializes the definition into Redis. The access code hash
// is excluded from JSON so a cached definition can never leak it; the hash
// always rides along in its own key.
func (s *ExamService) warmExamCache(ctx context.Context, exam *model.ExamDefinition) error {
	payload, err := json.Marshal(exam)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamDefinitionKey(exam.ID.String()), payload, 0)
	pipe.Set(ctx, config.CacheKey.ExamAccessHashKey(exam.ID.String()), exam.AccessCodeHash, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(exam.Questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published exams into Redis on application startup.
// This prevents any lazy-loading race conditions under thundering herd traffic.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		if err := s.warmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// buildQuestions converts editor payloads to definition questions, minting
// ids where the editor omitted them.
func buildQuestions(payloads []model.QuestionPayload) []model.Question {
	questions := make([]model.Question, 0, len(payloads))
	for _, qp := range payloads {
		q := model.Question{
			ID:            qp.ID,
			Prompt:        qp.Prompt,
			Kind:          model.AnswerKind(qp.Kind),
			Points:        qp.Points,
			Required:      qp.Required,
			FeedbackOk:    qp.FeedbackOk,
			FeedbackError: qp.FeedbackError,
		}
		if q.ID == "" {
			q.ID = uuid.New().String()
		}
		for _, op := range qp.Options {
			o := model.Option{ID: op.ID, Text: op.Text, IsCorrect: op.IsCorrect}
			if o.ID == "" {
				o.ID = uuid.New().String()
			}
			q.Options = append(q.Options, o)
		}
		questions = append(questions, q)
	}
	return questions
}
