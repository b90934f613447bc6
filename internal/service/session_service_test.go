package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/algoprep-backend/internal/config"
	"github.com/stemsi/algoprep-backend/internal/evaluator"
	"github.com/stemsi/algoprep-backend/internal/event"
	"github.com/stemsi/algoprep-backend/internal/model"
	"github.com/stemsi/algoprep-backend/internal/repository"
	"github.com/stemsi/algoprep-backend/internal/response"
	"github.com/stemsi/algoprep-backend/internal/service"
	"github.com/stemsi/algoprep-backend/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	svc       *service.SessionService
	bank      questionBank
	ids       []string
	store     *memInterviews
	marker    *memMarker
	publisher *event.MemoryPublisher
	logs      *lockedBuffer
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	cfg := &config.Config{
		MaxTimeLimitSeconds:  3600,
		SnapshotCap:          10,
		MinSubmissionLength:  10,
		EvaluatorTimeout:     time.Minute,
		FinalizeAwaitTimeout: 15 * time.Second,
		PersistRetryAttempts: 1,
	}
	bank, ids := newQuestionBank(2)
	f := &sessionFixture{
		bank:      bank,
		ids:       ids,
		store:     newMemInterviews(),
		marker:    newMemMarker(),
		publisher: event.NewMemoryPublisher(),
		logs:      &lockedBuffer{},
	}
	eval := evaluatorFunc(func(ctx context.Context, req evaluator.Request) (*model.EvaluationResult, error) {
		return &model.EvaluationResult{IsCorrect: true}, nil
	})
	f.svc = service.NewSessionService(cfg, bank, f.store, f.marker, eval, f.publisher,
		clockwork.NewFakeClockAt(t0), zerolog.New(f.logs))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		f.svc.Shutdown(ctx)
	})
	return f
}

func (f *sessionFixture) start(t *testing.T, userID int) session.View {
	t.Helper()
	v, err := f.svc.Start(context.Background(), userID, model.StartInterviewRequest{
		QuestionIDs:      f.ids,
		TimeLimitSeconds: 600,
	})
	require.NoError(t, err)
	return v
}

func TestSessionService_StartEndLifecycle(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	v := f.start(t, 7)
	id := v.Session.ID
	assert.Equal(t, model.SessionStatusActive, v.Session.Status)
	assert.Len(t, v.Questions, 2)
	assert.Equal(t, 1, f.store.count())
	assert.True(t, f.marker.held(7))

	_, err := f.svc.Start(ctx, 7, model.StartInterviewRequest{QuestionIDs: f.ids, TimeLimitSeconds: 600})
	assert.ErrorIs(t, err, service.ErrActiveSessionExists)

	ended, err := f.svc.End(ctx, 7, id, true)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusEnded, ended.Session.Status)

	require.Eventually(t, func() bool {
		_, err := f.svc.Active(7)
		return errors.Is(err, service.ErrNoActiveSession) && !f.marker.held(7)
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, model.SessionStatusEnded, f.store.status(id))

	require.Eventually(t, func() bool { return len(f.publisher.Events()) == 1 }, 2*time.Second, 10*time.Millisecond)
	events := f.publisher.Events()
	assert.Equal(t, event.TypeSessionEnded, events[0].Type)
	assert.Equal(t, 7, events[0].UserID)

	again, err := f.svc.End(ctx, 7, id, true)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusEnded, again.Session.Status)
	assert.Len(t, again.Questions, 2)

	// A new session may start once the previous one ended.
	f.start(t, 7)
}

func TestSessionService_MarkerHeldElsewhereRejectsStart(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	ok, err := f.marker.Claim(ctx, 7, uuid.New(), time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.Start(ctx, 7, model.StartInterviewRequest{QuestionIDs: f.ids, TimeLimitSeconds: 600})
	assert.ErrorIs(t, err, service.ErrActiveSessionExists)
	assert.Zero(t, f.store.count())
}

func TestSessionService_InvalidStartClaimsNothing(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, 7, model.StartInterviewRequest{QuestionIDs: f.ids, TimeLimitSeconds: 0})
	var cfgErr *session.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "time_limit_seconds", cfgErr.Field)

	_, err = f.svc.Start(ctx, 7, model.StartInterviewRequest{QuestionIDs: f.ids, TimeLimitSeconds: 7200})
	require.ErrorAs(t, err, &cfgErr)

	_, err = f.svc.Start(ctx, 7, model.StartInterviewRequest{QuestionIDs: []string{uuid.NewString()}, TimeLimitSeconds: 600})
	assert.ErrorIs(t, err, repository.ErrQuestionNotFound)

	assert.False(t, f.marker.held(7))
	assert.Zero(t, f.store.count())
}

func TestSessionService_OwnershipIsChecked(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	id := f.start(t, 7).Session.ID

	_, err := f.svc.Controller(8, id)
	assert.ErrorIs(t, err, service.ErrSessionForbidden)

	_, _, err = f.svc.Results(ctx, 8, id)
	assert.ErrorIs(t, err, service.ErrSessionForbidden)

	_, err = f.svc.Controller(7, uuid.New())
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func TestSessionService_ShutdownFinalizesRunningSessions(t *testing.T) {
	f := newSessionFixture(t)

	a := f.start(t, 1).Session.ID
	b := f.start(t, 2).Session.ID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f.svc.Shutdown(ctx)

	assert.Equal(t, model.SessionStatusEnded, f.store.status(a))
	assert.Equal(t, model.SessionStatusEnded, f.store.status(b))

	results, err := f.store.ListResults(ctx, a)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSessionService_ShutdownLogsUnpersistedResults(t *testing.T) {
	f := newSessionFixture(t)
	f.store.breakResults()

	v := f.start(t, 1)
	id := v.Session.ID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f.svc.Shutdown(ctx)

	assert.NotEqual(t, model.SessionStatusEnded, f.store.status(id))

	logs := f.logs.String()
	assert.Contains(t, logs, "Session not finalized on shutdown")
	assert.Equal(t, len(v.Questions), strings.Count(logs, "Unpersisted interview result"))
	for _, q := range v.Questions {
		assert.Contains(t, logs, q.QuestionID.String())
	}
	assert.Contains(t, logs, id.String())
}

func TestSessionService_HistoryPaginatesNewestFirst(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, f.store.Create(ctx, &model.InterviewSession{
			ID:        uuid.New(),
			UserID:    7,
			Status:    model.SessionStatusEnded,
			CreatedAt: t0.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, f.store.Create(ctx, &model.InterviewSession{ID: uuid.New(), UserID: 8, CreatedAt: t0}))

	list, page, err := f.svc.History(ctx, 7, 2, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, t0.Add(2*time.Hour), list[0].CreatedAt)
	assert.Equal(t, t0.Add(time.Hour), list[1].CreatedAt)
	assert.Equal(t, &response.Pagination{Page: 2, PerPage: 2, TotalItems: 5, TotalPages: 3, HasNext: true}, page)

	list, page, err = f.svc.History(ctx, 7, 0, 500)
	require.NoError(t, err)
	assert.Len(t, list, 5)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, response.MaxPerPage, page.PerPage)
	assert.False(t, page.HasNext)

	list, page, err = f.svc.History(ctx, 9, 1, 10)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
	assert.Equal(t, 0, page.TotalPages)
}
