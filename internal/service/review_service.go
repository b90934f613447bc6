package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/algoprep-backend/internal/config"
	"github.com/stemsi/algoprep-backend/internal/event"
	"github.com/stemsi/algoprep-backend/internal/model"
	"github.com/stemsi/algoprep-backend/internal/repository"
	"github.com/stemsi/algoprep-backend/internal/review"
	"github.com/stemsi/algoprep-backend/internal/worker"
)

const maxDueReviews = 50

// QuestionGetter reads one question.
type QuestionGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error)
}

// ProgressStore persists schedules and streaks.
type ProgressStore interface {
	ApplySolve(ctx context.Context, userID int, questionID uuid.UUID, fn repository.SolveFunc) error
	ListDue(ctx context.Context, userID int, now time.Time, limit int) ([]model.ReviewSchedule, error)
	GetProgress(ctx context.Context, userID int) (*model.UserProgress, error)
}

// ReviewService records free-practice solves and schedules their reviews.
type ReviewService struct {
	questions QuestionGetter
	progress  ProgressStore
	queue     Enqueuer
	publisher event.Publisher
	clock     clockwork.Clock
	log       zerolog.Logger
}

// NewReviewService creates a new ReviewService.
func NewReviewService(
	questions QuestionGetter,
	progress ProgressStore,
	queue Enqueuer,
	publisher event.Publisher,
	clock clockwork.Clock,
	log zerolog.Logger,
) *ReviewService {
	return &ReviewService{
		questions: questions,
		progress:  progress,
		queue:     queue,
		publisher: publisher,
		clock:     clock,
		log:       log.With().Str("component", "review_service").Logger(),
	}
}

// MarkSolved schedules the next review of a question, updates the streak and
// queues the XP reward. Calendar days are counted in loc.
func (s *ReviewService) MarkSolved(ctx context.Context, userID int, questionID uuid.UUID, req model.SolveRequest, loc *time.Location) (*model.SolveResult, error) {
	q, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	assist := review.AssistanceFrom(req)

	var out review.Outcome
	err = s.progress.ApplySolve(ctx, userID, questionID,
		func(prev *model.ReviewSchedule, p model.UserProgress) (model.ReviewSchedule, model.UserProgress, error) {
			out = review.Solve(userID, questionID, prev, p, q.BaseXP, assist, now, loc)
			return out.Schedule, out.Progress, nil
		})
	if err != nil {
		return nil, fmt.Errorf("apply solve: %w", err)
	}

	if out.XP > 0 {
		if err := s.queue.Enqueue(ctx, config.WorkerKey.PersistXPQueue, worker.XPPayload{UserID: userID, Amount: out.XP}); err != nil {
			// Schedule and streak are committed; a lost credit is logged, not retried.
			s.log.Error().Err(err).Int("user_id", userID).Int("xp", out.XP).Msg("Failed to queue XP credit")
		}
	}

	ev := event.New(event.TypeReviewScheduled, userID, now, event.ReviewScheduled{
		QuestionID:   questionID,
		NextReviewAt: out.Schedule.NextReviewAt,
		IntervalDays: out.Schedule.IntervalDays,
		EaseFactor:   out.Schedule.EaseFactor,
		Streak:       out.Progress.Streak,
		XPAwarded:    out.XP,
		FirstSolve:   out.FirstSolve,
	})
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Msg("Failed to publish review scheduled event")
	}

	return &model.SolveResult{
		Schedule:   out.Schedule,
		Streak:     out.Progress.Streak,
		XPAwarded:  out.XP,
		Multiplier: out.Multiplier,
		FirstSolve: out.FirstSolve,
	}, nil
}

// DueReviews lists the user's schedules that are due now.
func (s *ReviewService) DueReviews(ctx context.Context, userID int) ([]model.ReviewSchedule, error) {
	due, err := s.progress.ListDue(ctx, userID, s.clock.Now(), maxDueReviews)
	if err != nil {
		return nil, err
	}
	if due == nil {
		due = []model.ReviewSchedule{}
	}
	return due, nil
}

// Progress returns the user's streak and XP.
func (s *ReviewService) Progress(ctx context.Context, userID int) (*model.UserProgress, error) {
	return s.progress.GetProgress(ctx, userID)
}
