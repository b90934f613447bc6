package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/algoprep-backend/internal/model"
)

// ErrQuestionNotFound is returned when a requested question does not exist.
var ErrQuestionNotFound = errors.New("question not found")

// QuestionRepository reads problem metadata.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// GetByID retrieves a single question.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q := &model.Question{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, difficulty, pattern_name, templates, hint_count, base_xp
		 FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.Title, &q.Difficulty, &q.PatternName, &q.Templates, &q.HintCount, &q.BaseXP)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrQuestionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

// GetByIDs retrieves questions in the order of ids. Every id must exist.
func (r *QuestionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, difficulty, pattern_name, templates, hint_count, base_xp
		 FROM questions WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]model.Question, len(ids))
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Title, &q.Difficulty, &q.PatternName, &q.Templates, &q.HintCount, &q.BaseXP); err != nil {
			return nil, err
		}
		byID[q.ID] = q
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	questions := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrQuestionNotFound, id)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// Upsert inserts or replaces a question. Used by the seeding tool.
func (r *QuestionRepository) Upsert(ctx context.Context, q *model.Question) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO questions (id, title, difficulty, pattern_name, templates, hint_count, base_xp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		     title = EXCLUDED.title,
		     difficulty = EXCLUDED.difficulty,
		     pattern_name = EXCLUDED.pattern_name,
		     templates = EXCLUDED.templates,
		     hint_count = EXCLUDED.hint_count,
		     base_xp = EXCLUDED.base_xp`,
		q.ID, q.Title, q.Difficulty, q.PatternName, q.Templates, q.HintCount, q.BaseXP,
	)
	return err
}
