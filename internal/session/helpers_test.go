package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stemsi/algoprep-backend/internal/evaluator"
	"github.com/stemsi/algoprep-backend/internal/model"
	"github.com/stemsi/algoprep-backend/internal/session"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const (
	pythonTemplate = "def solve(nums):\n    pass\n"
	goTemplate     = "func solve(nums []int) int {\n}\n"
	solution       = "def solve(nums):\n    return sorted(nums)[0]\n"
)

type evaluatorFunc func(ctx context.Context, req evaluator.Request) (*model.EvaluationResult, error)

func (f evaluatorFunc) Evaluate(ctx context.Context, req evaluator.Request) (*model.EvaluationResult, error) {
	return f(ctx, req)
}

func verdict(correct bool) evaluatorFunc {
	return func(ctx context.Context, req evaluator.Request) (*model.EvaluationResult, error) {
		return &model.EvaluationResult{IsCorrect: correct, Feedback: "ok"}, nil
	}
}

// blockingEvaluator holds every call until release is closed or the call's
// context ends.
func blockingEvaluator(release <-chan struct{}, correct bool) evaluatorFunc {
	return func(ctx context.Context, req evaluator.Request) (*model.EvaluationResult, error) {
		select {
		case <-release:
			return &model.EvaluationResult{IsCorrect: correct}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

var errStoreDown = errors.New("store unavailable")

type memStore struct {
	mu       sync.Mutex
	results  map[uuid.UUID]model.QuestionResult
	upserts  map[uuid.UUID]int
	failures map[uuid.UUID]int
	ended    int
	score    float64
}

func newMemStore() *memStore {
	return &memStore{
		results:  make(map[uuid.UUID]model.QuestionResult),
		upserts:  make(map[uuid.UUID]int),
		failures: make(map[uuid.UUID]int),
	}
}

func (s *memStore) failNext(id uuid.UUID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id] = n
}

func (s *memStore) UpsertResult(ctx context.Context, res *model.QuestionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts[res.QuestionID]++
	if s.failures[res.QuestionID] > 0 {
		s.failures[res.QuestionID]--
		return errStoreDown
	}
	s.results[res.QuestionID] = *res
	return nil
}

func (s *memStore) MarkEnded(ctx context.Context, sessionID uuid.UUID, score float64, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended++
	s.score = score
	return nil
}

func (s *memStore) upsertCount(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts[id]
}

func (s *memStore) endedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *memStore) result(id uuid.UUID) (model.QuestionResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[id]
	return r, ok
}

func newQuestions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:          uuid.New(),
			Title:       fmt.Sprintf("Question %d", i+1),
			Difficulty:  "medium",
			PatternName: "two pointers",
			Templates:   map[string]string{"python": pythonTemplate, "go": goTemplate},
			HintCount:   2,
			BaseXP:      50,
		}
	}
	return qs
}

// startSession starts a controller on clock with manual ticking. Fields set
// in opts win over the test defaults.
func startSession(t *testing.T, clock clockwork.Clock, qs []model.Question, limit int, opts session.Options) *session.Controller {
	t.Helper()

	opts.Clock = clock
	if opts.Store == nil {
		opts.Store = newMemStore()
	}
	if opts.Evaluator == nil {
		opts.Evaluator = verdict(true)
	}
	if opts.FinalizeAwait == 0 {
		opts.FinalizeAwait = 5 * time.Second
	}

	c, err := session.Start(session.Config{
		UserID:           7,
		TimeLimitSeconds: limit,
		Questions:        qs,
	}, opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

type advancer interface {
	Advance(d time.Duration)
}

// runSeconds advances the clock and ticks once per second.
func runSeconds(t *testing.T, c *session.Controller, clock advancer, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		clock.Advance(time.Second)
		require.NoError(t, c.Tick(ctx))
	}
}

func mustView(t *testing.T, c *session.Controller) session.View {
	t.Helper()
	v, err := c.View(context.Background())
	require.NoError(t, err)
	return v
}

func waitPhase(t *testing.T, c *session.Controller, idx int, phase model.QuestionPhase) {
	t.Helper()
	require.Eventually(t, func() bool {
		v, err := c.View(context.Background())
		return err == nil && v.Questions[idx].Phase == phase
	}, 2*time.Second, 5*time.Millisecond, "question %d never reached %s", idx, phase)
}

func waitFor(t *testing.T, ch <-chan session.Notification, kind session.NotificationKind) session.Notification {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case n, ok := <-ch:
			require.True(t, ok, "notification stream closed while waiting for %s", kind)
			if n.Kind == kind {
				return n
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s notification", kind)
		}
	}
}

func drain(ch <-chan session.Notification) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
