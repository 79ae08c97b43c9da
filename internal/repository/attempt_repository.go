package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pixellab-dev/invigilo/internal/model"
)

// AttemptRepository handles attempt data access: the per-candidate session
// row plus its review rows and persisted question order.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts a new attempt (candidate joins the exam). The unique
// (exam_id, candidate_id) constraint makes a second join a no-op; the caller
// detects that by the empty returned id.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (exam_id, candidate_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (exam_id, candidate_id) DO NOTHING
		 RETURNING id, started_at`,
		a.ExamID, a.CandidateID, model.AttemptStatusInProgress,
	).Scan(&a.ID, &a.StartedAt)
}

// GetByExamAndCandidate retrieves an attempt for one exam-candidate pair.
func (r *AttemptRepository) GetByExamAndCandidate(ctx context.Context, examID uuid.UUID, candidateID string) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, candidate_id, started_at, finished_at, status,
		        score, max_score, failed, fail_reason
		 FROM attempts
		 WHERE exam_id = $1 AND candidate_id = $2`, examID, candidateID,
	).Scan(&a.ID, &a.ExamID, &a.CandidateID, &a.StartedAt, &a.FinishedAt,
		&a.Status, &a.Score, &a.MaxScore, &a.Failed, &a.FailReason)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, candidate_id, started_at, finished_at, status,
		        score, max_score, failed, fail_reason
		 FROM attempts WHERE id = $1`, id,
	).Scan(&a.ID, &a.ExamID, &a.CandidateID, &a.StartedAt, &a.FinishedAt,
		&a.Status, &a.Score, &a.MaxScore, &a.Failed, &a.FailReason)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetAnswers retrieves an attempt's write-behind answer rows keyed by
// question id. Used to rebuild a session when the Redis autosave hash is
// gone.
func (r *AttemptRepository) GetAnswers(ctx context.Context, attemptID uuid.UUID) (map[string][]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, option_ids
		 FROM attempt_answers
		 WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[string][]string)
	for rows.Next() {
		var qid string
		var optionIDs []string
		if err := rows.Scan(&qid, &optionIDs); err != nil {
			return nil, err
		}
		answers[qid] = optionIDs
	}
	return answers, rows.Err()
}

// Complete marks an attempt completed with its final scores. Idempotent on
// the status guard so a worker retry cannot double-complete.
func (r *AttemptRepository) Complete(ctx context.Context, attemptID uuid.UUID, score, maxScore float64, failed bool, failReason string) error {
	now := time.Now()
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, score = $2, max_score = $3, failed = $4,
		     fail_reason = $5, finished_at = $6
		 WHERE id = $7 AND status = $8`,
		model.AttemptStatusCompleted, score, maxScore, failed, failReason,
		now, attemptID, model.AttemptStatusInProgress)
	return err
}

// SaveReview replaces the attempt's per-question review rows.
func (r *AttemptRepository) SaveReview(ctx context.Context, attemptID uuid.UUID, review []model.QuestionReview) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM attempt_reviews WHERE attempt_id = $1`, attemptID); err != nil {
		return err
	}

	for i, qr := range review {
		if _, err := tx.Exec(ctx,
			`INSERT INTO attempt_reviews
			   (attempt_id, position, question_id, correct_option_ids,
			    selected_option_ids, is_correct, points_awarded)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			attemptID, i, qr.QuestionID, qr.CorrectOptionIDs,
			qr.SelectedOptionIDs, qr.IsCorrect, qr.PointsAwarded); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetReview retrieves an attempt's review rows in presentation order.
func (r *AttemptRepository) GetReview(ctx context.Context, attemptID uuid.UUID) ([]model.QuestionReview, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, correct_option_ids, selected_option_ids,
		        is_correct, points_awarded
		 FROM attempt_reviews
		 WHERE attempt_id = $1
		 ORDER BY position`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var review []model.QuestionReview
	for rows.Next() {
		var qr model.QuestionReview
		if err := rows.Scan(&qr.QuestionID, &qr.CorrectOptionIDs,
			&qr.SelectedOptionIDs, &qr.IsCorrect, &qr.PointsAwarded); err != nil {
			return nil, err
		}
		review = append(review, qr)
	}
	return review, rows.Err()
}

// ListByExam retrieves attempts for one exam with pagination.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.Attempt, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE exam_id = $1`, examID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, candidate_id, started_at, finished_at, status,
		        score, max_score, failed, fail_reason
		 FROM attempts
		 WHERE exam_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2 OFFSET $3`, examID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.CandidateID, &a.StartedAt,
			&a.FinishedAt, &a.Status, &a.Score, &a.MaxScore, &a.Failed,
			&a.FailReason); err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, a)
	}
	return attempts, total, rows.Err()
}
