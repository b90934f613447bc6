package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/algoprep-backend/internal/config"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Redis rejects BLPOP timeouts under 1s
)

// PastePayload is a paste-interception signal from an interview session.
type PastePayload struct {
	SessionID  string `json:"session_id"`
	UserID     int    `json:"user_id"`
	QuestionID string `json:"question_id"`
	Length     int    `json:"length"`
	Timestamp  int64  `json:"timestamp"`
}

// PasteWorker batches paste events into PostgreSQL.
type PasteWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewPasteWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *PasteWorker {
	return &PasteWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "paste_worker").Logger(),
	}
}

func (w *PasteWorker) Start(ctx context.Context) {
	w.log.Info().Msg("PasteWorker started")

	buffer := make([]*PastePayload, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistPasteEventsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var payload PastePayload
		if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}
		buffer = append(buffer, &payload)
	}
}

// flushSafe tries a bulk COPY, then row-by-row inserts, then requeue.
func (w *PasteWorker) flushSafe(ctx context.Context, batch []*PastePayload) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func pasteRow(p *PastePayload) ([]any, error) {
	sessionID, err := uuid.Parse(p.SessionID)
	if err != nil {
		return nil, err
	}
	questionID, err := uuid.Parse(p.QuestionID)
	if err != nil {
		return nil, err
	}
	return []any{sessionID, p.UserID, questionID, p.Length, time.Unix(p.Timestamp, 0)}, nil
}

func (w *PasteWorker) bulkInsert(ctx context.Context, batch []*PastePayload) error {
	rows := make([][]any, 0, len(batch))
	for _, p := range batch {
		row, err := pasteRow(p)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"paste_events"},
		[]string{"session_id", "user_id", "question_id", "length", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *PasteWorker) fallbackInsert(ctx context.Context, batch []*PastePayload) {
	var requeue []*PastePayload

	for _, p := range batch {
		row, err := pasteRow(p)
		if err != nil {
			w.log.Error().Str("session_id", p.SessionID).Msg("Dropping paste event with invalid UUID")
			continue
		}

		if _, err := w.pool.Exec(ctx,
			`INSERT INTO paste_events (session_id, user_id, question_id, length, occurred_at)
			 VALUES ($1, $2, $3, $4, $5)`, row...,
		); err != nil {
			w.log.Error().Err(err).Int("user_id", p.UserID).Msg("Insert failed, requeueing")
			requeue = append(requeue, p)
		}
	}

	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

func (w *PasteWorker) requeue(ctx context.Context, items []*PastePayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.PersistPasteEventsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("Failed to requeue paste events, data lost")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed paste events")
	time.Sleep(2 * time.Second)
}

func (w *PasteWorker) shutdown(buffer []*PastePayload) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(ctx, buffer)
	}
}
