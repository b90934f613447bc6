package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/algoprep-backend/internal/model"
)

// SolveFunc computes the new schedule and progress from the locked rows.
// prev is nil when the question was never solved by the user.
type SolveFunc func(prev *model.ReviewSchedule, progress model.UserProgress) (model.ReviewSchedule, model.UserProgress, error)

// ProgressRepository handles review schedules and per-user streak/XP.
type ProgressRepository struct {
	pool *pgxpool.Pool
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(pool *pgxpool.Pool) *ProgressRepository {
	return &ProgressRepository{pool: pool}
}

// ApplySolve locks the user's progress row and the question's schedule,
// runs fn and writes both results in one transaction.
func (r *ProgressRepository) ApplySolve(ctx context.Context, userID int, questionID uuid.UUID, fn SolveFunc) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO user_progress (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID,
	); err != nil {
		return fmt.Errorf("ensure progress row: %w", err)
	}

	progress := model.UserProgress{UserID: userID}
	if err := tx.QueryRow(ctx,
		`SELECT streak, longest_streak, xp, last_solved_at
		 FROM user_progress WHERE user_id = $1 FOR UPDATE`, userID,
	).Scan(&progress.Streak, &progress.LongestStreak, &progress.XP, &progress.LastSolvedAt); err != nil {
		return fmt.Errorf("lock progress: %w", err)
	}

	var prev *model.ReviewSchedule
	s := model.ReviewSchedule{UserID: userID, QuestionID: questionID}
	err = tx.QueryRow(ctx,
		`SELECT ease_factor, interval_days, review_count, next_review_at, last_reviewed_at
		 FROM review_schedules WHERE user_id = $1 AND question_id = $2 FOR UPDATE`, userID, questionID,
	).Scan(&s.EaseFactor, &s.IntervalDays, &s.ReviewCount, &s.NextReviewAt, &s.LastReviewedAt)
	switch {
	case err == nil:
		prev = &s
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return fmt.Errorf("lock schedule: %w", err)
	}

	schedule, updated, err := fn(prev, progress)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO review_schedules (user_id, question_id, ease_factor, interval_days, review_count, next_review_at, last_reviewed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, question_id) DO UPDATE SET
		     ease_factor = EXCLUDED.ease_factor,
		     interval_days = EXCLUDED.interval_days,
		     review_count = EXCLUDED.review_count,
		     next_review_at = EXCLUDED.next_review_at,
		     last_reviewed_at = EXCLUDED.last_reviewed_at`,
		userID, questionID, schedule.EaseFactor, schedule.IntervalDays, schedule.ReviewCount,
		schedule.NextReviewAt, schedule.LastReviewedAt,
	); err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE user_progress
		 SET streak = $1, longest_streak = $2, last_solved_at = $3, updated_at = NOW()
		 WHERE user_id = $4`,
		updated.Streak, updated.LongestStreak, updated.LastSolvedAt, userID,
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}

	return tx.Commit(ctx)
}

// ListDue returns schedules whose review date has passed, oldest first.
func (r *ProgressRepository) ListDue(ctx context.Context, userID int, now time.Time, limit int) ([]model.ReviewSchedule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, question_id, ease_factor, interval_days, review_count, next_review_at, last_reviewed_at
		 FROM review_schedules
		 WHERE user_id = $1 AND next_review_at <= $2
		 ORDER BY next_review_at
		 LIMIT $3`, userID, now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []model.ReviewSchedule
	for rows.Next() {
		var s model.ReviewSchedule
		if err := rows.Scan(&s.UserID, &s.QuestionID, &s.EaseFactor, &s.IntervalDays, &s.ReviewCount, &s.NextReviewAt, &s.LastReviewedAt); err != nil {
			return nil, err
		}
		due = append(due, s)
	}
	return due, rows.Err()
}

// GetProgress returns the streak/XP record, zero-valued if the user never solved.
func (r *ProgressRepository) GetProgress(ctx context.Context, userID int) (*model.UserProgress, error) {
	p := &model.UserProgress{UserID: userID}
	err := r.pool.QueryRow(ctx,
		`SELECT streak, longest_streak, xp, last_solved_at FROM user_progress WHERE user_id = $1`, userID,
	).Scan(&p.Streak, &p.LongestStreak, &p.XP, &p.LastSolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
