package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stemsi/algoprep-backend/internal/evaluator"
	"github.com/stemsi/algoprep-backend/internal/metrics"
	"github.com/stemsi/algoprep-backend/internal/model"
)

// SubmitRequest is a user submission. Thinking and coding time are derived
// from session state, never taken from the client.
type SubmitRequest struct {
	QuestionID uuid.UUID
	Code       string
	Language   string
}

type pendingEvaluation struct {
	id       uint64
	cancel   context.CancelFunc
	prev     model.QuestionPhase
	code     string
	language string
}

// Submit validates the code and sends it to the evaluator. It returns as soon
// as the question is PendingEvaluation; the verdict arrives as a graded or
// evaluation_failed notification.
func (c *Controller) Submit(ctx context.Context, req SubmitRequest) error {
	return c.call(ctx, func() error { return c.submit(req) })
}

func (c *Controller) submit(req SubmitRequest) error {
	if !c.active() {
		return ErrSessionNotActive
	}
	idx, ok := c.index[req.QuestionID]
	if !ok {
		return ErrUnknownQuestion
	}
	q := c.questions[idx]

	if len(strings.TrimSpace(req.Code)) < c.opts.MinSubmissionLength {
		metrics.SubmissionsRejected.WithLabelValues("too_short").Inc()
		return &ValidationError{
			Field:  "code",
			Reason: fmt.Sprintf("must be at least %d characters", c.opts.MinSubmissionLength),
		}
	}
	switch q.phase {
	case model.PhasePendingEvaluation:
		metrics.SubmissionsRejected.WithLabelValues("pending").Inc()
		return ErrEvaluationPending
	case model.PhaseSolvedCorrect:
		metrics.SubmissionsRejected.WithLabelValues("already_solved").Inc()
		return ErrAlreadySolved
	}

	now := c.clock.Now()
	q.reopen()
	q.switchLanguage(req.Language)
	q.code = req.Code
	code := req.Code
	q.pendingCode = &code
	q.pendingLanguage = q.language

	coding := q.elapsed
	if idx == c.current {
		if live := now.Sub(q.enteredAt); live > 0 {
			coding += live
		}
	}

	evalReq := evaluator.Request{
		Code:          req.Code,
		Language:      q.language,
		QuestionTitle: q.question.Title,
		Difficulty:    q.question.Difficulty,
		PatternName:   q.question.PatternName,
		ThinkingTime:  seconds(q.thinkingTime()),
		CodingTime:    seconds(coding),
		HintsUsed:     q.hintsUsed,
		PasteDetected: q.pasteDetected,
		RunCount:      q.runCount,
	}

	prev := q.phase
	q.phase = model.PhasePendingEvaluation

	c.evalSeq++
	id := c.evalSeq
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.EvaluatorTimeout)
	c.pending[idx] = &pendingEvaluation{id: id, cancel: cancel, prev: prev, code: req.Code, language: q.language}

	c.log.Info().
		Str("question_id", q.question.ID.String()).
		Int("thinking_time", evalReq.ThinkingTime).
		Int("coding_time", evalReq.CodingTime).
		Msg("Submission sent for evaluation")

	go c.evaluate(ctx, idx, id, evalReq)
	return nil
}

func (c *Controller) evaluate(ctx context.Context, idx int, id uint64, req evaluator.Request) {
	res, err := c.opts.Evaluator.Evaluate(ctx, req)
	if err == nil && res == nil {
		err = &evaluator.Error{Reason: "evaluator returned no result", Retryable: true}
	}
	c.post(func() { c.completeEvaluation(idx, id, res, err) })
}

// completeEvaluation merges a verdict. Completions for abandoned or
// superseded calls are ignored.
func (c *Controller) completeEvaluation(idx int, id uint64, res *model.EvaluationResult, err error) {
	p, ok := c.pending[idx]
	if !ok || p.id != id {
		return
	}
	p.cancel()
	delete(c.pending, idx)

	q := c.questions[idx]
	if err != nil {
		q.phase = p.prev
		c.log.Warn().Err(err).
			Str("question_id", q.question.ID.String()).
			Msg("Evaluation failed")
		c.hub.publish(Notification{
			Kind:             NotifyEvaluationFailed,
			QuestionID:       q.question.ID.String(),
			RemainingSeconds: c.remaining,
			Phase:            q.phase,
			Error:            err.Error(),
			Retryable:        evaluator.IsRetryable(err),
		})
	} else {
		q.complete(res, p.code, p.language)
		c.log.Info().
			Str("question_id", q.question.ID.String()).
			Bool("is_correct", res.IsCorrect).
			Msg("Evaluation merged")
		ev := *q.evaluation
		c.hub.publish(Notification{
			Kind:             NotifyGraded,
			QuestionID:       q.question.ID.String(),
			RemainingSeconds: c.remaining,
			Phase:            q.phase,
			Evaluation:       &ev,
		})
	}

	if c.session.Status == model.SessionStatusFinalizing && len(c.pending) == 0 && c.awaitTimer != nil {
		c.awaitTimer.Stop()
		c.awaitTimer = nil
		c.startPersist()
	}
}
