package handler

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/algoprep-backend/internal/config"
	"github.com/stemsi/algoprep-backend/internal/evaluator"
	"github.com/stemsi/algoprep-backend/internal/event"
	"github.com/stemsi/algoprep-backend/internal/middleware"
	"github.com/stemsi/algoprep-backend/internal/model"
	"github.com/stemsi/algoprep-backend/internal/repository"
	"github.com/stemsi/algoprep-backend/internal/service"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type questionBank map[uuid.UUID]model.Question

func (b questionBank) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := b[id]
		if !ok {
			return nil, repository.ErrQuestionNotFound
		}
		out = append(out, q)
	}
	return out, nil
}

type memInterviews struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]model.InterviewSession
	results map[uuid.UUID][]model.QuestionResult
}

func newMemInterviews() *memInterviews {
	return &memInterviews{
		rows:    make(map[uuid.UUID]model.InterviewSession),
		results: make(map[uuid.UUID][]model.QuestionResult),
	}
}

func (m *memInterviews) Create(ctx context.Context, s *model.InterviewSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.ID] = *s
	return nil
}

func (m *memInterviews) GetByID(ctx context.Context, id uuid.UUID) (*model.InterviewSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	return &s, nil
}

func (m *memInterviews) MarkFinalizing(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.rows[id]
	s.Status = model.SessionStatusFinalizing
	m.rows[id] = s
	return nil
}

func (m *memInterviews) MarkEnded(ctx context.Context, id uuid.UUID, score float64, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.rows[id]
	s.Status = model.SessionStatusEnded
	s.FinalScore = &score
	s.EndedAt = &endedAt
	m.rows[id] = s
	return nil
}

func (m *memInterviews) UpsertResult(ctx context.Context, res *model.QuestionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[res.SessionID] = append(m.results[res.SessionID], *res)
	return nil
}

func (m *memInterviews) ListResults(ctx context.Context, sessionID uuid.UUID) ([]model.QuestionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.QuestionResult(nil), m.results[sessionID]...), nil
}

func (m *memInterviews) ListByUser(ctx context.Context, userID, limit, offset int) ([]model.InterviewSession, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var mine []model.InterviewSession
	for _, s := range m.rows {
		if s.UserID == userID {
			mine = append(mine, s)
		}
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })
	if offset >= len(mine) {
		return nil, len(mine), nil
	}
	return mine[offset:min(offset+limit, len(mine))], len(mine), nil
}

type memMarker struct {
	mu     sync.Mutex
	owners map[int]uuid.UUID
}

func (m *memMarker) Claim(ctx context.Context, userID int, sessionID uuid.UUID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owners[userID]; ok {
		return false, nil
	}
	m.owners[userID] = sessionID
	return true, nil
}

func (m *memMarker) Release(ctx context.Context, userID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.owners, userID)
	return nil
}

type job struct {
	queue string
	data  []byte
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []job
}

func (q *recordingQueue) Enqueue(ctx context.Context, queue string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job{queue: queue, data: data})
	return nil
}

func (q *recordingQueue) all() []job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]job(nil), q.jobs...)
}

type correctEvaluator struct{}

func (correctEvaluator) Evaluate(ctx context.Context, req evaluator.Request) (*model.EvaluationResult, error) {
	return &model.EvaluationResult{IsCorrect: true}, nil
}

// apiFixture serves the interview REST and stream routes over in-memory
// stores with the clock frozen at t0.
type apiFixture struct {
	router   *gin.Engine
	auth     *service.AuthService
	sessions *service.SessionService
	store    *memInterviews
	queue    *recordingQueue
	ids      []string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cfg := &config.Config{
		JWTSecret:            "test-secret",
		MaxTimeLimitSeconds:  3600,
		SnapshotCap:          10,
		MinSubmissionLength:  10,
		EvaluatorTimeout:     time.Minute,
		FinalizeAwaitTimeout: 5 * time.Second,
		PersistRetryAttempts: 1,
	}
	bank := questionBank{}
	var ids []string
	for i := 0; i < 2; i++ {
		q := model.Question{
			ID:        uuid.New(),
			Title:     "Valid Parentheses",
			Templates: map[string]string{"python": "def solve(s):\n    pass\n"},
			HintCount: 1,
			BaseXP:    50,
		}
		bank[q.ID] = q
		ids = append(ids, q.ID.String())
	}

	clock := clockwork.NewFakeClockAt(t0)
	f := &apiFixture{
		auth:  service.NewAuthService(cfg),
		store: newMemInterviews(),
		queue: &recordingQueue{},
		ids:   ids,
	}
	f.sessions = service.NewSessionService(cfg, bank, f.store, &memMarker{owners: make(map[int]uuid.UUID)},
		correctEvaluator{}, event.NewMemoryPublisher(), clock, zerolog.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		f.sessions.Shutdown(ctx)
	})

	interviews := NewInterviewHandler(f.sessions)
	wsHandler := NewWSHandler(f.sessions, nil, f.queue, clock, zerolog.Nop(), nil)

	r := gin.New()
	api := r.Group("/api/v1/interviews", middleware.RequireJWT(f.auth))
	api.GET("", interviews.ListInterviews)
	api.POST("", interviews.StartInterview)
	r.GET("/ws/v1/interviews/:id/stream", middleware.RequireWSAuth(f.auth), wsHandler.InterviewStream)
	f.router = r
	return f
}

func (f *apiFixture) token(t *testing.T, userID int) string {
	t.Helper()
	tok, err := f.auth.IssueToken(userID, time.Hour)
	require.NoError(t, err)
	return tok
}
