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
)

const (
	OrderBatchSize    = 50
	OrderBatchTimeout = 2 * time.Second
	OrderPollTimeout  = 1 * time.Second
)

// OrderWorker consumes persist_order_queue and writes the presented question
// order onto the attempt row. The order is derived from the attempt id, but
// the persisted copy makes results readable without re-deriving the shuffle.
type OrderWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewOrderWorker creates a new OrderWorker.
func NewOrderWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *OrderWorker {
	return &OrderWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "order_worker").Logger(),
	}
}

type orderPayload struct {
	AttemptID string   `json:"attempt_id"`
	Order     []string `json:"order"`
}

// Start begins the batching loop. Call in a goroutine.
func (w *OrderWorker) Start(ctx context.Context) {
	w.log.Info().Msg("OrderWorker started")

	batch := make([]*orderPayload, 0, OrderBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= OrderBatchSize || time.Since(lastFlush) >= OrderBatchTimeout) {

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
			item, err := w.rdb.BLPop(ctx, OrderPollTimeout, config.WorkerKey.PersistOrderQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p orderPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

func (w *OrderWorker) flushSafe(ctx context.Context, batch []*orderPayload) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkUpdate(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("Bulk question order update failed, using fallback")

		for _, p := range batch {
			if err := w.persistSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Msg("persistSingle failed — requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistOrderQueue, raw)
			}
		}
	}
}

func (w *OrderWorker) bulkUpdate(ctx context.Context, batch []*orderPayload) error {
	n := len(batch)

	attemptIDs := make([]uuid.UUID, 0, n)
	ordersBytes := make([][]byte, 0, n)

	for _, p := range batch {
		aID, err := uuid.Parse(p.AttemptID)
		if err != nil {
			return err
		}

		ob, _ := json.Marshal(p.Order)

		attemptIDs = append(attemptIDs, aID)
		ordersBytes = append(ordersBytes, ob)
	}

	query := `
		UPDATE attempts AS a
		SET question_order = t.qo
		FROM (
			SELECT
				u.attempt_id,
				u.qo
			FROM UNNEST(
				$1::uuid[],
				$2::jsonb[]
			) AS u (attempt_id, qo)
		) AS t
		WHERE a.id = t.attempt_id
	`

	_, err := w.pool.Exec(ctx, query, attemptIDs, ordersBytes)
	return err
}

func (w *OrderWorker) persistSingle(ctx context.Context, p *orderPayload) error {
	aID, err := uuid.Parse(p.AttemptID)
	if err != nil {
		return err
	}

	ob, _ := json.Marshal(p.Order)

	_, err = w.pool.Exec(ctx,
		`UPDATE attempts
		 SET question_order = $1
		 WHERE id = $2`,
		ob, aID,
	)

	return err
}
