package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pixellab-dev/invigilo/internal/config"
	"github.com/pixellab-dev/invigilo/internal/model"
	"github.com/pixellab-dev/invigilo/internal/repository"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultWorker consumes persist_results_queue: completes the attempt row in
// bulk, writes the per-question review, and clears the candidate's autosave
// hash. The engine already graded in memory; this is pure write-behind.
type ResultWorker struct {
	pool        *pgxpool.Pool
	rdb         *redis.Client
	attemptRepo *repository.AttemptRepository
	log         zerolog.Logger
}

// NewResultWorker creates a new ResultWorker.
func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, attemptRepo *repository.AttemptRepository, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		pool:        pool,
		rdb:         rdb,
		attemptRepo: attemptRepo,
		log:         log.With().Str("component", "result_worker").Logger(),
	}
}

// Start begins the batching loop. Call in a goroutine.
func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*model.AttemptResult, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var r model.AttemptResult
			if err := json.Unmarshal([]byte(item[1]), &r); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &r)
		}
	}
}

// flushSafe completes the attempt rows in one UNNEST update, then writes the
// reviews per attempt. A result that fails either step goes back on the
// queue whole — both steps are idempotent on retry.
func (w *ResultWorker) flushSafe(ctx context.Context, batch []*model.AttemptResult) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkComplete(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("Bulk attempt update failed, using fallback")

		for _, r := range batch {
			if err := w.persistSingle(ctx, r); err != nil {
				w.log.Error().Err(err).Str("attempt_id", r.AttemptID.String()).Msg("persistSingle failed — requeueing")
				raw, _ := json.Marshal(r)
				w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
			}
		}
		return
	}

	requeue := make([]*model.AttemptResult, 0)
	for _, r := range batch {
		if err := w.attemptRepo.SaveReview(ctx, r.AttemptID, r.Review); err != nil {
			w.log.Error().Err(err).Str("attempt_id", r.AttemptID.String()).Msg("Review write failed — requeueing")
			requeue = append(requeue, r)
		}
	}
	if len(requeue) > 0 {
		pipe := w.rdb.Pipeline()
		for _, r := range requeue {
			raw, _ := json.Marshal(r)
			pipe.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
		}
		_, _ = pipe.Exec(ctx)
	}

	// The graded attempt no longer needs its autosave buffer.
	w.bulkClearAutosaves(ctx, batch)
}

// bulkComplete flips all attempts to COMPLETED with their final scores in
// one UNNEST update. The status guard keeps a retried batch from touching
// rows a previous run already completed.
func (w *ResultWorker) bulkComplete(ctx context.Context, batch []*model.AttemptResult) error {
	n := len(batch)

	attemptIDs := make([]uuid.UUID, 0, n)
	scores := make([]float64, 0, n)
	maxScores := make([]float64, 0, n)
	faileds := make([]bool, 0, n)
	failReasons := make([]string, 0, n)
	finishedAts := make([]time.Time, n)

	now := time.Now()
	for i, r := range batch {
		attemptIDs = append(attemptIDs, r.AttemptID)
		scores = append(scores, r.Score)
		maxScores = append(maxScores, r.MaxScore)
		faileds = append(faileds, r.Failed)
		failReasons = append(failReasons, r.FailReason)
		finishedAts[i] = now
	}

	query := `
		UPDATE attempts AS a
		SET status = 'COMPLETED',
		    score = t.score,
		    max_score = t.max_score,
		    failed = t.failed,
		    fail_reason = t.fail_reason,
		    finished_at = t.finished_at
		FROM (
			SELECT
				u.attempt_id,
				u.score,
				u.max_score,
				u.failed,
				u.fail_reason,
				u.finished_at
			FROM UNNEST(
				$1::uuid[],
				$2::float8[],
				$3::float8[],
				$4::bool[],
				$5::text[],
				$6::timestamptz[]
			) AS u (attempt_id, score, max_score, failed, fail_reason, finished_at)
		) AS t
		WHERE a.id = t.attempt_id
		  AND a.status = 'IN_PROGRESS'
	`

	_, err := w.pool.Exec(ctx, query, attemptIDs, scores, maxScores, faileds, failReasons, finishedAts)
	return err
}

// persistSingle is the row-by-row fallback: attempt completion plus review.
func (w *ResultWorker) persistSingle(ctx context.Context, r *model.AttemptResult) error {
	if err := w.attemptRepo.Complete(ctx, r.AttemptID, r.Score, r.MaxScore, r.Failed, r.FailReason); err != nil {
		return err
	}
	if err := w.attemptRepo.SaveReview(ctx, r.AttemptID, r.Review); err != nil {
		return err
	}
	w.rdb.Del(ctx,
		config.CacheKey.CandidateAnswersKey(r.ExamID.String(), r.CandidateID),
		config.CacheKey.CandidateDeadlineKey(r.ExamID.String(), r.CandidateID))
	return nil
}

// bulkClearAutosaves drops the completed attempts' autosave hashes and
// countdown deadlines. Both only matter for resuming an IN_PROGRESS attempt.
func (w *ResultWorker) bulkClearAutosaves(ctx context.Context, batch []*model.AttemptResult) {
	pipe := w.rdb.Pipeline()
	for _, r := range batch {
		pipe.Del(ctx,
			config.CacheKey.CandidateAnswersKey(r.ExamID.String(), r.CandidateID),
			config.CacheKey.CandidateDeadlineKey(r.ExamID.String(), r.CandidateID))
	}
	_, _ = pipe.Exec(ctx)
}
