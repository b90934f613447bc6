package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/algoprep-backend/internal/model"
)

// DraftRepository reads practice drafts. Writes go through the autosave worker.
type DraftRepository struct {
	pool *pgxpool.Pool
}

// NewDraftRepository creates a new DraftRepository.
func NewDraftRepository(pool *pgxpool.Pool) *DraftRepository {
	return &DraftRepository{pool: pool}
}

// Get returns the stored draft, or nil when there is none.
func (r *DraftRepository) Get(ctx context.Context, userID int, questionID string) (*model.CodeDraft, error) {
	d := &model.CodeDraft{UserID: userID, QuestionID: questionID}
	err := r.pool.QueryRow(ctx,
		`SELECT language, code, saved_at FROM code_drafts
		 WHERE user_id = $1 AND question_id = $2`, userID, questionID,
	).Scan(&d.Language, &d.Code, &d.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}
