package service

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/algoprep-backend/internal/config"
	"github.com/stemsi/algoprep-backend/internal/debounce"
	"github.com/stemsi/algoprep-backend/internal/metrics"
	"github.com/stemsi/algoprep-backend/internal/model"
	"github.com/stemsi/algoprep-backend/internal/worker"
)

// ErrDraftNotFound is returned when a user has no saved draft for a question.
var ErrDraftNotFound = errors.New("draft not found")

// DraftReader reads durable drafts.
type DraftReader interface {
	Get(ctx context.Context, userID int, questionID string) (*model.CodeDraft, error)
}

// PracticeService autosaves free-practice editor buffers.
type PracticeService struct {
	cache     DraftCache
	drafts    DraftReader
	queue     Enqueuer
	debouncer *debounce.Group
	clock     clockwork.Clock
	log       zerolog.Logger
}

// NewPracticeService creates a new PracticeService. Edits are saved once
// they have been quiet for delay.
func NewPracticeService(
	cache DraftCache,
	drafts DraftReader,
	queue Enqueuer,
	clock clockwork.Clock,
	delay time.Duration,
	log zerolog.Logger,
) *PracticeService {
	return &PracticeService{
		cache:     cache,
		drafts:    drafts,
		queue:     queue,
		debouncer: debounce.New(clock, delay),
		clock:     clock,
		log:       log.With().Str("component", "practice_service").Logger(),
	}
}

// Edit schedules a save of the buffer, replacing any save still pending for
// the same question.
func (s *PracticeService) Edit(userID int, questionID, language, code string) {
	d := model.CodeDraft{
		UserID:     userID,
		QuestionID: questionID,
		Language:   language,
		Code:       code,
	}
	s.debouncer.Schedule(config.CacheKey.DraftDebounceKey(userID, questionID), func() {
		s.save(d)
	})
}

// Flush saves the pending edit for a question now. It reports whether
// anything was pending.
func (s *PracticeService) Flush(userID int, questionID string) bool {
	return s.debouncer.Flush(config.CacheKey.DraftDebounceKey(userID, questionID))
}

func (s *PracticeService) save(d model.CodeDraft) {
	d.SavedAt = s.clock.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.cache.Put(ctx, &d); err != nil {
		s.log.Error().Err(err).Int("user_id", d.UserID).Str("question_id", d.QuestionID).Msg("Failed to cache draft")
		return
	}
	if err := s.queue.Enqueue(ctx, config.WorkerKey.PersistDraftsQueue, worker.DraftPayload{
		UserID:     d.UserID,
		QuestionID: d.QuestionID,
		Language:   d.Language,
		Code:       d.Code,
		SavedAt:    d.SavedAt,
	}); err != nil {
		s.log.Error().Err(err).Int("user_id", d.UserID).Msg("Failed to queue draft persistence")
		return
	}
	metrics.DraftsSaved.Inc()
}

// GetDraft returns the latest draft, preferring the live cache.
func (s *PracticeService) GetDraft(ctx context.Context, userID int, questionID string) (*model.CodeDraft, error) {
	d, err := s.cache.Get(ctx, userID, questionID)
	if err != nil {
		s.log.Warn().Err(err).Msg("Draft cache read failed, falling back to database")
	}
	if d != nil {
		return d, nil
	}

	d, err = s.drafts.Get(ctx, userID, questionID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrDraftNotFound
	}
	return d, nil
}

// Close saves every pending edit.
func (s *PracticeService) Close() {
	s.debouncer.Close()
}
