package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/algoprep-backend/internal/metrics"
	"github.com/stemsi/algoprep-backend/internal/model"
)

// ResultStore is the durable side of finalize.
type ResultStore interface {
	// UpsertResult writes one record keyed by (session, question).
	UpsertResult(ctx context.Context, res *model.QuestionResult) error
	MarkEnded(ctx context.Context, sessionID uuid.UUID, score float64, endedAt time.Time) error
}

// ScoreFunc aggregates per-question results into the session score.
type ScoreFunc func(results []model.QuestionResult) float64

// DefaultScore awards 100 points per solved question.
func DefaultScore(results []model.QuestionResult) float64 {
	var score float64
	for _, r := range results {
		if r.IsSolved {
			score += 100
		}
	}
	return score
}

type finalizeOutcome struct {
	view View
	err  error
}

// End finalizes the session when confirmed is true and waits for the result.
// Unconfirmed calls only return the current view. On an ended session it
// returns the final view without writing anything. A *PersistenceError
// leaves the session FINALIZING; calling End again retries.
func (c *Controller) End(ctx context.Context, confirmed bool) (View, error) {
	if !confirmed {
		return c.View(ctx)
	}

	var (
		view View
		wait chan finalizeOutcome
	)
	err := c.do(ctx, func() {
		switch c.session.Status {
		case model.SessionStatusEnded:
			view = c.view()
			return
		case model.SessionStatusActive:
			c.beginFinalize("confirmed")
		case model.SessionStatusFinalizing:
			if !c.persisting && c.awaitTimer == nil {
				c.startPersist()
			}
		}
		wait = make(chan finalizeOutcome, 1)
		c.waiters = append(c.waiters, wait)
	})
	if err != nil {
		return View{}, err
	}
	if wait == nil {
		return view, nil
	}

	select {
	case out := <-wait:
		return out.view, out.err
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-c.done:
		select {
		case out := <-wait:
			return out.view, out.err
		default:
			return View{}, ErrSessionClosed
		}
	}
}

// RetryFinalize retries the writes a previous finalize left behind.
func (c *Controller) RetryFinalize(ctx context.Context) (View, error) {
	return c.End(ctx, true)
}

// beginFinalize moves an active session to FINALIZING exactly once. Pending
// evaluations get FinalizeAwait to land; whatever is still out after that is
// abandoned and its question reverts to its pre-submit phase.
func (c *Controller) beginFinalize(reason string) {
	if !c.active() {
		return
	}

	now := c.clock.Now()
	c.flushCurrent(now)
	c.finalizeAt = now
	c.session.Status = model.SessionStatusFinalizing
	c.stopTimers()

	c.log.Info().
		Str("reason", reason).
		Int("pending_evaluations", len(c.pending)).
		Msg("Finalizing session")

	if len(c.pending) > 0 {
		c.awaitTimer = c.clock.AfterFunc(c.opts.FinalizeAwait, func() {
			c.post(c.abandonPending)
		})
	}
	c.hub.publish(Notification{Kind: NotifyFinalizing, Reason: reason, RemainingSeconds: c.remaining})

	if len(c.pending) == 0 {
		c.startPersist()
	}
}

func (c *Controller) abandonPending() {
	if c.session.Status != model.SessionStatusFinalizing || c.awaitTimer == nil {
		return
	}
	c.awaitTimer = nil

	for idx, p := range c.pending {
		p.cancel()
		q := c.questions[idx]
		q.phase = p.prev
		c.log.Warn().
			Str("question_id", q.question.ID.String()).
			Msg("Evaluation abandoned at finalize, submission kept without verdict")
	}
	c.pending = make(map[int]*pendingEvaluation)
	c.startPersist()
}

func (c *Controller) startPersist() {
	if c.persisting {
		return
	}
	c.persisting = true

	results := make([]model.QuestionResult, len(c.questions))
	for i, q := range c.questions {
		results[i] = q.result(c.id, i, 0)
	}
	score := c.opts.Score(results)
	endedAt := c.finalizeAt

	go func() {
		err := c.fin.persist(c.ctx, results, score, endedAt)
		c.post(func() { c.finishPersist(score, err) })
	}()
}

func (c *Controller) finishPersist(score float64, err error) {
	c.persisting = false

	if err != nil {
		metrics.FinalizeFailures.Inc()
		c.log.Error().Err(err).Msg("Finalize left results unpersisted")

		n := Notification{Kind: NotifyFinalizeFailed, Error: err.Error(), Retryable: true}
		var perr *PersistenceError
		if errors.As(err, &perr) {
			for _, id := range perr.QuestionIDs {
				n.Unpersisted = append(n.Unpersisted, id.String())
			}
		}
		c.hub.publish(n)
		c.resolve(err)
		return
	}

	endedAt := c.finalizeAt
	c.session.Status = model.SessionStatusEnded
	c.session.EndedAt = &endedAt
	c.session.FinalScore = &score

	c.log.Info().Float64("score", score).Msg("Interview session ended")
	c.hub.publish(Notification{Kind: NotifyEnded, Score: &score})

	view := c.resolve(nil)
	if c.opts.OnEnded != nil {
		go c.opts.OnEnded(view)
	}
}

func (c *Controller) resolve(err error) View {
	view := c.view()
	for _, w := range c.waiters {
		w <- finalizeOutcome{view: view, err: err}
	}
	c.waiters = nil
	return view
}

// finalizer remembers which records are already durable so a retry only
// writes the rest. A single persist runs at a time.
type finalizer struct {
	sessionID uuid.UUID
	store     ResultStore
	clock     clockwork.Clock
	attempts  int
	delay     time.Duration
	log       zerolog.Logger
	persisted map[uuid.UUID]bool
	ended     bool
}

func (f *finalizer) persist(ctx context.Context, results []model.QuestionResult, score float64, endedAt time.Time) error {
	var (
		failed  []uuid.UUID
		lastErr error
	)

	for i := range results {
		res := &results[i]
		if f.persisted[res.QuestionID] {
			continue
		}
		err := f.retry(ctx, func(ctx context.Context) error {
			return f.store.UpsertResult(ctx, res)
		})
		if err != nil {
			f.log.Warn().Err(err).
				Str("question_id", res.QuestionID.String()).
				Msg("Failed to persist question result")
			failed = append(failed, res.QuestionID)
			lastErr = err
			continue
		}
		f.persisted[res.QuestionID] = true
	}

	if len(failed) > 0 {
		return &PersistenceError{SessionID: f.sessionID, QuestionIDs: failed, Err: lastErr}
	}

	if !f.ended {
		err := f.retry(ctx, func(ctx context.Context) error {
			return f.store.MarkEnded(ctx, f.sessionID, score, endedAt)
		})
		if err != nil {
			return &PersistenceError{SessionID: f.sessionID, Err: err}
		}
		f.ended = true
	}
	return nil
}

// retry runs op up to f.attempts times with a linear backoff.
func (f *finalizer) retry(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt == f.attempts || f.delay <= 0 {
			continue
		}
		select {
		case <-f.clock.After(f.delay * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
