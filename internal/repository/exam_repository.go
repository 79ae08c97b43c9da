package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pixellab-dev/invigilo/internal/model"
)

// ExamRepository handles exam definition data access. Questions and proctor
// settings live in jsonb columns — the definition is one document, read and
// replaced whole.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam definition by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	e := &model.ExamDefinition{}
	var questions, settings []byte

	err := r.pool.QueryRow(ctx,
		`SELECT id, title, description, questions, settings, status,
		        access_code_hash, created_at, updated_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Description, &questions, &settings, &e.Status,
		&e.AccessCodeHash, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(questions, &e.Questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if err := json.Unmarshal(settings, &e.Settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return e, nil
}

// ListPaginated retrieves exam definitions with an optional title filter.
func (r *ExamRepository) ListPaginated(ctx context.Context, titleFilter string, limit, offset int) ([]model.ExamDefinition, int, error) {
	countQuery := `SELECT COUNT(*) FROM exams`
	var countArgs []interface{}
	if titleFilter != "" {
		countQuery += ` WHERE title ILIKE $1`
		countArgs = append(countArgs, "%"+titleFilter+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, title, description, questions, settings, status,
	                 access_code_hash, created_at, updated_at
	          FROM exams`
	var args []interface{}
	argIdx := 1
	if titleFilter != "" {
		query += ` WHERE title ILIKE $1`
		args = append(args, "%"+titleFilter+"%")
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.ExamDefinition
	for rows.Next() {
		var e model.ExamDefinition
		var questions, settings []byte
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &questions, &settings,
			&e.Status, &e.AccessCodeHash, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(questions, &e.Questions); err != nil {
			return nil, 0, fmt.Errorf("decode questions: %w", err)
		}
		if err := json.Unmarshal(settings, &e.Settings); err != nil {
			return nil, 0, fmt.Errorf("decode settings: %w", err)
		}
		exams = append(exams, e)
	}
	return exams, total, rows.Err()
}

// Create inserts a new exam definition.
func (r *ExamRepository) Create(ctx context.Context, e *model.ExamDefinition) error {
	questions, err := json.Marshal(e.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	settings, err := json.Marshal(e.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, description, questions, settings, status, access_code_hash)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.Description, questions, settings, e.Status, e.AccessCodeHash,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update replaces an exam definition's document fields.
func (r *ExamRepository) Update(ctx context.Context, e *model.ExamDefinition) error {
	questions, err := json.Marshal(e.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	settings, err := json.Marshal(e.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE exams
		 SET title = $1, description = $2, questions = $3, settings = $4,
		     access_code_hash = $5, updated_at = NOW()
		 WHERE id = $6`,
		e.Title, e.Description, questions, settings, e.AccessCodeHash, e.ID)
	return err
}

// UpdateStatus updates an exam's status.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	return err
}

// Delete removes an exam definition.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	return err
}

// ListPublished returns all exams with PUBLISHED status.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.ExamDefinition, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, description, questions, settings, status,
		        access_code_hash, created_at, updated_at
		 FROM exams WHERE status = $1
		 ORDER BY created_at DESC`, model.ExamStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.ExamDefinition
	for rows.Next() {
		var e model.ExamDefinition
		var questions, settings []byte
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &questions, &settings,
			&e.Status, &e.AccessCodeHash, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(questions, &e.Questions); err != nil {
			return nil, fmt.Errorf("decode questions: %w", err)
		}
		if err := json.Unmarshal(settings, &e.Settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}
