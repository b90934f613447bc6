package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/algoprep-backend/internal/config"
)

// DraftPayload is a practice draft queued for durable storage.
type DraftPayload struct {
	UserID     int       `json:"user_id"`
	QuestionID string    `json:"question_id"`
	Language   string    `json:"language"`
	Code       string    `json:"code"`
	SavedAt    time.Time `json:"saved_at"`
}

// AutosaveWorker consumes the drafts queue and UPSERTs drafts to PostgreSQL.
type AutosaveWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "autosave_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AutosaveWorker) processNext(ctx context.Context) {
	queue := config.WorkerKey.PersistDraftsQueue
	result, err := w.rdb.BLPop(ctx, PollTimeout, queue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	var payload DraftPayload
	if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
		w.log.Error().Err(err).Msg("Discarding malformed draft payload")
		return
	}

	if err := w.persistDraft(ctx, &payload); err != nil {
		w.log.Error().Err(err).
			Int("user_id", payload.UserID).
			Str("question_id", payload.QuestionID).
			Msg("Persist error, retrying in 5s")
		w.rdb.RPush(ctx, queue, result[1])
		time.Sleep(5 * time.Second)
	}
}

// persistDraft keeps the newest draft; an older save arriving late is ignored.
func (w *AutosaveWorker) persistDraft(ctx context.Context, p *DraftPayload) error {
	questionID, err := uuid.Parse(p.QuestionID)
	if err != nil {
		return err
	}

	_, err = w.pool.Exec(ctx,
		`INSERT INTO code_drafts (user_id, question_id, language, code, saved_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, question_id) DO UPDATE
		 SET language = EXCLUDED.language, code = EXCLUDED.code, saved_at = EXCLUDED.saved_at
		 WHERE code_drafts.saved_at <= EXCLUDED.saved_at`,
		p.UserID, questionID, p.Language, p.Code, p.SavedAt,
	)
	return err
}

// drain persists everything left in the queue before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	queue := config.WorkerKey.PersistDraftsQueue
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, queue).Result()
		if err != nil {
			break
		}

		var payload DraftPayload
		if err := json.Unmarshal([]byte(result), &payload); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.persistDraft(ctx, &payload); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, queue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining drafts")
	}
}
