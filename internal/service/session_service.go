package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/algoprep-backend/internal/config"
	"github.com/stemsi/algoprep-backend/internal/evaluator"
	"github.com/stemsi/algoprep-backend/internal/event"
	"github.com/stemsi/algoprep-backend/internal/metrics"
	"github.com/stemsi/algoprep-backend/internal/model"
	"github.com/stemsi/algoprep-backend/internal/repository"
	"github.com/stemsi/algoprep-backend/internal/response"
	"github.com/stemsi/algoprep-backend/internal/session"
)

// Session service errors.
var (
	ErrActiveSessionExists = errors.New("an interview session is already running")
	ErrNoActiveSession     = errors.New("no interview session is running")
	ErrSessionForbidden    = errors.New("interview session belongs to another user")
)

// QuestionLoader reads the metadata a session is started with.
type QuestionLoader interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error)
}

// InterviewStore is the session table plus the finalize result store.
type InterviewStore interface {
	session.ResultStore
	Create(ctx context.Context, s *model.InterviewSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.InterviewSession, error)
	MarkFinalizing(ctx context.Context, id uuid.UUID) error
	ListResults(ctx context.Context, sessionID uuid.UUID) ([]model.QuestionResult, error)
	ListByUser(ctx context.Context, userID, limit, offset int) ([]model.InterviewSession, int, error)
}

// SessionService owns the in-memory controllers, one per user.
type SessionService struct {
	cfg       *config.Config
	questions QuestionLoader
	store     InterviewStore
	marker    ActiveSessionMarker
	eval      evaluator.Evaluator
	publisher event.Publisher
	clock     clockwork.Clock
	log       zerolog.Logger

	// tickInterval is exposed for tests that drive the countdown by hand.
	tickInterval time.Duration

	mu     sync.Mutex
	byUser map[int]*session.Controller
	byID   map[uuid.UUID]*session.Controller
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	cfg *config.Config,
	questions QuestionLoader,
	store InterviewStore,
	marker ActiveSessionMarker,
	eval evaluator.Evaluator,
	publisher event.Publisher,
	clock clockwork.Clock,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		cfg:          cfg,
		questions:    questions,
		store:        store,
		marker:       marker,
		eval:         eval,
		publisher:    publisher,
		clock:        clock,
		log:          log.With().Str("component", "session_service").Logger(),
		tickInterval: time.Second,
		byUser:       make(map[int]*session.Controller),
		byID:         make(map[uuid.UUID]*session.Controller),
	}
}

// Start loads the questions, records the session row and starts its controller.
func (s *SessionService) Start(ctx context.Context, userID int, req model.StartInterviewRequest) (session.View, error) {
	ids := make([]uuid.UUID, 0, len(req.QuestionIDs))
	for _, raw := range req.QuestionIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return session.View{}, &session.ConfigError{Field: "question_ids", Reason: fmt.Sprintf("invalid id %q", raw)}
		}
		ids = append(ids, id)
	}

	s.mu.Lock()
	_, running := s.byUser[userID]
	s.mu.Unlock()
	if running {
		return session.View{}, ErrActiveSessionExists
	}

	questions, err := s.questions.GetByIDs(ctx, ids)
	if err != nil {
		return session.View{}, fmt.Errorf("load questions: %w", err)
	}

	cfg := session.Config{
		SessionID:        uuid.New(),
		UserID:           userID,
		TimeLimitSeconds: req.TimeLimitSeconds,
		Questions:        questions,
		Language:         req.Language,
	}
	if err := cfg.Validate(s.cfg.MaxTimeLimitSeconds); err != nil {
		return session.View{}, err
	}

	ttl := time.Duration(req.TimeLimitSeconds)*time.Second + s.cfg.FinalizeAwaitTimeout + 5*time.Minute
	claimed, err := s.marker.Claim(ctx, userID, cfg.SessionID, ttl)
	if err != nil {
		return session.View{}, fmt.Errorf("claim active session: %w", err)
	}
	if !claimed {
		return session.View{}, ErrActiveSessionExists
	}

	row := &model.InterviewSession{
		ID:               cfg.SessionID,
		UserID:           userID,
		TimeLimitSeconds: req.TimeLimitSeconds,
		QuestionIDs:      ids,
		Status:           model.SessionStatusActive,
		CreatedAt:        s.clock.Now(),
	}
	if err := s.store.Create(ctx, row); err != nil {
		s.release(userID)
		return session.View{}, fmt.Errorf("create session: %w", err)
	}

	ctrl, err := session.Start(cfg, s.options())
	if err != nil {
		s.release(userID)
		return session.View{}, err
	}

	s.mu.Lock()
	s.byUser[userID] = ctrl
	s.byID[ctrl.ID()] = ctrl
	s.mu.Unlock()
	metrics.ActiveSessions.Inc()

	go s.watch(ctrl)

	return ctrl.View(ctx)
}

func (s *SessionService) options() session.Options {
	logger := s.log
	return session.Options{
		Clock:               s.clock,
		TickInterval:        s.tickInterval,
		SnapshotInterval:    s.cfg.SnapshotInterval,
		SnapshotCap:         s.cfg.SnapshotCap,
		MinSubmissionLength: s.cfg.MinSubmissionLength,
		MaxTimeLimitSeconds: s.cfg.MaxTimeLimitSeconds,
		EvaluatorTimeout:    s.cfg.EvaluatorTimeout,
		FinalizeAwait:       s.cfg.FinalizeAwaitTimeout,
		PersistAttempts:     s.cfg.PersistRetryAttempts,
		PersistDelay:        s.cfg.PersistRetryDelay,
		Evaluator:           s.eval,
		Store:               s.store,
		Logger:              &logger,
		OnEnded:             s.handleEnded,
	}
}

// watch mirrors the FINALIZING transition into the session row.
func (s *SessionService) watch(ctrl *session.Controller) {
	ch, cancel := ctrl.Subscribe()
	defer cancel()

	for n := range ch {
		if n.Kind != session.NotifyFinalizing {
			continue
		}
		ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.store.MarkFinalizing(ctx, ctrl.ID()); err != nil {
			s.log.Warn().Err(err).Str("session_id", ctrl.ID().String()).Msg("Failed to mark session finalizing")
		}
		done()
		return
	}
}

// handleEnded publishes the ended event and forgets the controller.
func (s *SessionService) handleEnded(v session.View) {
	id := v.Session.ID
	userID := v.Session.UserID

	s.mu.Lock()
	ctrl := s.byID[id]
	delete(s.byID, id)
	if s.byUser[userID] == ctrl {
		delete(s.byUser, userID)
	}
	s.mu.Unlock()

	s.release(userID)
	if ctrl != nil {
		ctrl.Close()
		metrics.ActiveSessions.Dec()
	}

	solved := 0
	for _, q := range v.Questions {
		if q.IsSolved {
			solved++
		}
	}
	var score float64
	if v.Session.FinalScore != nil {
		score = *v.Session.FinalScore
	}
	endedAt := s.clock.Now()
	if v.Session.EndedAt != nil {
		endedAt = *v.Session.EndedAt
	}

	ev := event.New(event.TypeSessionEnded, userID, endedAt, event.SessionEnded{
		SessionID: id,
		Score:     score,
		Solved:    solved,
		Questions: len(v.Questions),
		EndedAt:   endedAt,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("session_id", id.String()).Msg("Failed to publish session ended event")
	}
}

func (s *SessionService) release(userID int) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.marker.Release(ctx, userID); err != nil {
		s.log.Warn().Err(err).Int("user_id", userID).Msg("Failed to clear active session marker")
	}
}

// Active returns the user's running controller.
func (s *SessionService) Active(userID int) (*session.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctrl, ok := s.byUser[userID]
	if !ok {
		return nil, ErrNoActiveSession
	}
	return ctrl, nil
}

// Controller returns a running session owned by userID.
func (s *SessionService) Controller(userID int, sessionID uuid.UUID) (*session.Controller, error) {
	s.mu.Lock()
	ctrl, ok := s.byID[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	if ctrl.UserID() != userID {
		return nil, ErrSessionForbidden
	}
	return ctrl, nil
}

// End finalizes a running session. For a session already ended and
// released from memory the stored view is returned.
func (s *SessionService) End(ctx context.Context, userID int, sessionID uuid.UUID, confirmed bool) (session.View, error) {
	ctrl, err := s.Controller(userID, sessionID)
	if err == nil {
		return ctrl.End(ctx, confirmed)
	}
	if !errors.Is(err, repository.ErrSessionNotFound) {
		return session.View{}, err
	}

	row, results, err := s.Results(ctx, userID, sessionID)
	if err != nil {
		return session.View{}, err
	}
	if row.Status != model.SessionStatusEnded {
		// Row left behind by a process that died before finalizing.
		return session.View{}, repository.ErrSessionNotFound
	}
	return session.View{Session: *row, Questions: results}, nil
}

// Results returns a session row and its persisted per-question results.
func (s *SessionService) Results(ctx context.Context, userID int, sessionID uuid.UUID) (*model.InterviewSession, []model.QuestionResult, error) {
	row, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if row.UserID != userID {
		return nil, nil, ErrSessionForbidden
	}

	results, err := s.store.ListResults(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("list results: %w", err)
	}
	return row, results, nil
}

// History lists the user's past and running sessions, newest first.
func (s *SessionService) History(ctx context.Context, userID, page, perPage int) ([]model.InterviewSession, *response.Pagination, error) {
	page, perPage = response.NormalizePage(page, perPage)

	sessions, total, err := s.store.ListByUser(ctx, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []model.InterviewSession{}
	}
	return sessions, response.NewPagination(page, perPage, total), nil
}

// Shutdown force-ends every running session, waiting at most until ctx is done.
func (s *SessionService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ctrls := make([]*session.Controller, 0, len(s.byID))
	for _, c := range s.byID {
		ctrls = append(ctrls, c)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range ctrls {
		wg.Add(1)
		go func(c *session.Controller) {
			defer wg.Done()
			view, err := c.End(ctx, true)
			var perr *session.PersistenceError
			if errors.As(err, &perr) && ctx.Err() == nil {
				// One more pass over the records that did not land.
				view, err = c.End(ctx, true)
			}
			if err != nil {
				s.dumpUnfinalized(c, view, err)
			}
			c.Close()
		}(c)
	}
	wg.Wait()

	if len(ctrls) > 0 {
		s.log.Info().Int("count", len(ctrls)).Msg("Interview sessions finalized on shutdown")
	}
}

// dumpUnfinalized writes every record that may not be durable to the log in
// full, so it can be replayed by hand once the process is gone.
func (s *SessionService) dumpUnfinalized(c *session.Controller, view session.View, err error) {
	log := s.log.With().
		Str("session_id", c.ID().String()).
		Int("user_id", c.UserID()).
		Logger()

	if len(view.Questions) == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if v, verr := c.View(ctx); verr == nil {
			view = v
		}
		cancel()
	}

	var (
		perr    *session.PersistenceError
		missing map[uuid.UUID]bool
	)
	if errors.As(err, &perr) {
		missing = make(map[uuid.UUID]bool, len(perr.QuestionIDs))
		for _, id := range perr.QuestionIDs {
			missing[id] = true
		}
	}

	var ids []string
	for _, q := range view.Questions {
		// Without a PersistenceError nothing is known to be durable.
		if missing != nil && !missing[q.QuestionID] {
			continue
		}
		ids = append(ids, q.QuestionID.String())
		log.Error().Interface("result", q).Msg("Unpersisted interview result")
	}

	ev := log.Error().Err(err).Strs("unpersisted", ids)
	if view.Session.FinalScore != nil {
		ev = ev.Float64("score", *view.Session.FinalScore)
	}
	ev.Msg("Session not finalized on shutdown")
}
