package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/algoprep-backend/internal/config"
)

// XPPayload credits XP to a user.
type XPPayload struct {
	UserID int `json:"user_id"`
	Amount int `json:"amount"`
}

// XPWorker applies queued XP credits to user_progress in batches.
type XPWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewXPWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *XPWorker {
	return &XPWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "xp_worker").Logger(),
	}
}

func (w *XPWorker) Start(ctx context.Context) {
	w.log.Info().Msg("XPWorker started")

	batch := make([]*XPPayload, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 && (len(batch) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
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
			item, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistXPQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			var p XPPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}
			batch = append(batch, &p)
		}
	}
}

func (w *XPWorker) flushSafe(ctx context.Context, batch []*XPPayload) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkCredit(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("Bulk XP credit failed, using fallback")

		for _, p := range batch {
			if err := w.creditSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Int("user_id", p.UserID).Msg("XP credit failed, requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistXPQueue, raw)
			}
		}
	}
}

// sumByUser folds a batch so each user appears once in the UNNEST.
func sumByUser(batch []*XPPayload) ([]int, []int) {
	totals := make(map[int]int, len(batch))
	order := make([]int, 0, len(batch))
	for _, p := range batch {
		if _, seen := totals[p.UserID]; !seen {
			order = append(order, p.UserID)
		}
		totals[p.UserID] += p.Amount
	}

	amounts := make([]int, len(order))
	for i, id := range order {
		amounts[i] = totals[id]
	}
	return order, amounts
}

func (w *XPWorker) bulkCredit(ctx context.Context, batch []*XPPayload) error {
	users, amounts := sumByUser(batch)

	_, err := w.pool.Exec(ctx, `
		INSERT INTO user_progress (user_id, xp)
		SELECT u.user_id, u.amount
		FROM UNNEST($1::int[], $2::int[]) AS u (user_id, amount)
		ON CONFLICT (user_id) DO UPDATE
		SET xp = user_progress.xp + EXCLUDED.xp,
		    updated_at = NOW()
	`, users, amounts)
	return err
}

func (w *XPWorker) creditSingle(ctx context.Context, p *XPPayload) error {
	_, err := w.pool.Exec(ctx,
		`INSERT INTO user_progress (user_id, xp) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE
		 SET xp = user_progress.xp + EXCLUDED.xp, updated_at = NOW()`,
		p.UserID, p.Amount,
	)
	return err
}
