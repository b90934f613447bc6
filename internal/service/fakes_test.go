package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/algoprep-backend/internal/evaluator"
	"github.com/stemsi/algoprep-backend/internal/model"
	"github.com/stemsi/algoprep-backend/internal/repository"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type evaluatorFunc func(ctx context.Context, req evaluator.Request) (*model.EvaluationResult, error)

func (f evaluatorFunc) Evaluate(ctx context.Context, req evaluator.Request) (*model.EvaluationResult, error) {
	return f(ctx, req)
}

type questionBank map[uuid.UUID]model.Question

func newQuestionBank(n int) (questionBank, []string) {
	bank := make(questionBank, n)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		q := model.Question{
			ID:        uuid.New(),
			Title:     "Two Sum",
			Templates: map[string]string{"python": "def solve(nums):\n    pass\n"},
			HintCount: 2,
			BaseXP:    100,
		}
		bank[q.ID] = q
		ids = append(ids, q.ID.String())
	}
	return bank, ids
}

func (b questionBank) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q, ok := b[id]
	if !ok {
		return nil, repository.ErrQuestionNotFound
	}
	return &q, nil
}

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
	broken  bool
}

var errStoreDown = errors.New("store unavailable")

// breakResults makes every result write fail.
func (m *memInterviews) breakResults() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broken = true
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
	if s.Status == model.SessionStatusActive {
		s.Status = model.SessionStatusFinalizing
		m.rows[id] = s
	}
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
	if m.broken {
		return errStoreDown
	}
	list := m.results[res.SessionID]
	for i := range list {
		if list[i].QuestionID == res.QuestionID {
			list[i] = *res
			return nil
		}
	}
	m.results[res.SessionID] = append(list, *res)
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

func (m *memInterviews) status(id uuid.UUID) model.SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].Status
}

func (m *memInterviews) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memMarker struct {
	mu     sync.Mutex
	owners map[int]uuid.UUID
}

func newMemMarker() *memMarker {
	return &memMarker{owners: make(map[int]uuid.UUID)}
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

func (m *memMarker) held(userID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.owners[userID]
	return ok
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

type memDrafts struct {
	mu     sync.Mutex
	drafts map[string]model.CodeDraft
}

func newMemDrafts() *memDrafts {
	return &memDrafts{drafts: make(map[string]model.CodeDraft)}
}

func draftKey(userID int, questionID string) string {
	return fmt.Sprintf("%d:%s", userID, questionID)
}

func (m *memDrafts) Put(ctx context.Context, d *model.CodeDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[draftKey(d.UserID, d.QuestionID)] = *d
	return nil
}

func (m *memDrafts) Get(ctx context.Context, userID int, questionID string) (*model.CodeDraft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[draftKey(userID, questionID)]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

type memProgress struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]model.ReviewSchedule
	progress  model.UserProgress
}

func newMemProgress(userID int) *memProgress {
	return &memProgress{
		schedules: make(map[uuid.UUID]model.ReviewSchedule),
		progress:  model.UserProgress{UserID: userID},
	}
}

func (m *memProgress) ApplySolve(ctx context.Context, userID int, questionID uuid.UUID, fn repository.SolveFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var prev *model.ReviewSchedule
	if s, ok := m.schedules[questionID]; ok {
		prev = &s
	}
	s, p, err := fn(prev, m.progress)
	if err != nil {
		return err
	}
	m.schedules[questionID] = s
	m.progress = p
	return nil
}

func (m *memProgress) ListDue(ctx context.Context, userID int, now time.Time, limit int) ([]model.ReviewSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []model.ReviewSchedule
	for _, s := range m.schedules {
		if !s.NextReviewAt.After(now) {
			due = append(due, s)
		}
	}
	return due, nil
}

func (m *memProgress) GetProgress(ctx context.Context, userID int) (*model.UserProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.progress
	return &p, nil
}

// lockedBuffer collects log output written from several goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
