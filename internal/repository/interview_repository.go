package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/algoprep-backend/internal/evaluator"
	"github.com/stemsi/algoprep-backend/internal/model"
)

// ErrSessionNotFound is returned when an interview session does not exist.
var ErrSessionNotFound = errors.New("interview session not found")

// InterviewRepository handles interview session and result data access.
// It is the durable store behind session finalize.
type InterviewRepository struct {
	pool *pgxpool.Pool
}

// NewInterviewRepository creates a new InterviewRepository.
func NewInterviewRepository(pool *pgxpool.Pool) *InterviewRepository {
	return &InterviewRepository{pool: pool}
}

// Create inserts a new session row.
func (r *InterviewRepository) Create(ctx context.Context, s *model.InterviewSession) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO interview_sessions (id, user_id, time_limit_seconds, question_ids, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.UserID, s.TimeLimitSeconds, s.QuestionIDs, s.Status, s.CreatedAt,
	)
	return err
}

// GetByID retrieves a session.
func (r *InterviewRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.InterviewSession, error) {
	s := &model.InterviewSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, time_limit_seconds, question_ids, status, final_score, created_at, ended_at
		 FROM interview_sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.UserID, &s.TimeLimitSeconds, &s.QuestionIDs, &s.Status, &s.FinalScore, &s.CreatedAt, &s.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// MarkFinalizing records that a session stopped accepting input.
func (r *InterviewRepository) MarkFinalizing(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE interview_sessions SET status = $1 WHERE id = $2 AND status = $3`,
		model.SessionStatusFinalizing, id, model.SessionStatusActive,
	)
	return err
}

// MarkEnded closes a session. It is only called once every result is durable.
func (r *InterviewRepository) MarkEnded(ctx context.Context, id uuid.UUID, score float64, endedAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE interview_sessions
		 SET status = $1, final_score = $2, ended_at = $3
		 WHERE id = $4`,
		model.SessionStatusEnded, score, endedAt, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// UpsertResult writes one per-question record keyed by (session_id, question_id).
func (r *InterviewRepository) UpsertResult(ctx context.Context, res *model.QuestionResult) error {
	snapshots, err := json.Marshal(res.Snapshots)
	if err != nil {
		return fmt.Errorf("marshal snapshots: %w", err)
	}
	var evaluation []byte
	if res.Evaluation != nil {
		if evaluation, err = json.Marshal(res.Evaluation); err != nil {
			return fmt.Errorf("marshal evaluation: %w", err)
		}
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO interview_question_results (
		     session_id, question_id, position, phase, elapsed_seconds, is_solved, skipped,
		     flagged, hints_used, code, language, submitted_code, first_keystroke_at,
		     snapshots, evaluation, paste_detected, run_count, pending_code, pending_language, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NULLIF($19, ''), NOW())
		 ON CONFLICT (session_id, question_id) DO UPDATE SET
		     position = EXCLUDED.position,
		     phase = EXCLUDED.phase,
		     elapsed_seconds = EXCLUDED.elapsed_seconds,
		     is_solved = interview_question_results.is_solved OR EXCLUDED.is_solved,
		     skipped = EXCLUDED.skipped,
		     flagged = EXCLUDED.flagged,
		     hints_used = EXCLUDED.hints_used,
		     code = EXCLUDED.code,
		     language = EXCLUDED.language,
		     submitted_code = EXCLUDED.submitted_code,
		     first_keystroke_at = EXCLUDED.first_keystroke_at,
		     snapshots = EXCLUDED.snapshots,
		     evaluation = EXCLUDED.evaluation,
		     paste_detected = EXCLUDED.paste_detected,
		     run_count = EXCLUDED.run_count,
		     pending_code = EXCLUDED.pending_code,
		     pending_language = EXCLUDED.pending_language,
		     updated_at = NOW()`,
		res.SessionID, res.QuestionID, res.Position, res.Phase, res.ElapsedSeconds, res.IsSolved, res.Skipped,
		res.Flagged, res.HintsUsed, res.Code, res.Language, res.SubmittedCode, res.FirstKeystrokeAt,
		snapshots, evaluation, res.PasteDetected, res.RunCount, res.PendingCode, res.PendingLanguage,
	)
	return err
}

// ListResults returns the persisted records of a session in question order.
// Stored evaluations in the legacy shape are converted on read.
func (r *InterviewRepository) ListResults(ctx context.Context, sessionID uuid.UUID) ([]model.QuestionResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.session_id, r.question_id, r.position, COALESCE(q.title, ''), r.phase,
		        r.elapsed_seconds, r.is_solved, r.skipped, r.flagged, r.hints_used, r.code,
		        r.language, r.submitted_code, r.first_keystroke_at, r.snapshots, r.evaluation,
		        r.paste_detected, r.run_count, r.pending_code, COALESCE(r.pending_language, '')
		 FROM interview_question_results r
		 LEFT JOIN questions q ON q.id = r.question_id
		 WHERE r.session_id = $1
		 ORDER BY r.position`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.QuestionResult
	for rows.Next() {
		var (
			res        model.QuestionResult
			snapshots  []byte
			evaluation []byte
		)
		if err := rows.Scan(
			&res.SessionID, &res.QuestionID, &res.Position, &res.Title, &res.Phase,
			&res.ElapsedSeconds, &res.IsSolved, &res.Skipped, &res.Flagged, &res.HintsUsed, &res.Code,
			&res.Language, &res.SubmittedCode, &res.FirstKeystrokeAt, &snapshots, &evaluation,
			&res.PasteDetected, &res.RunCount, &res.PendingCode, &res.PendingLanguage,
		); err != nil {
			return nil, err
		}

		if len(snapshots) > 0 {
			if err := json.Unmarshal(snapshots, &res.Snapshots); err != nil {
				return nil, fmt.Errorf("decode snapshots of %s: %w", res.QuestionID, err)
			}
		}
		if len(evaluation) > 0 {
			ev, err := evaluator.DecodeResult(evaluation)
			if err != nil {
				return nil, fmt.Errorf("decode evaluation of %s: %w", res.QuestionID, err)
			}
			res.Evaluation = ev
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// ListByUser returns one page of a user's sessions, newest first, and the
// total number of sessions the user has.
func (r *InterviewRepository) ListByUser(ctx context.Context, userID, limit, offset int) ([]model.InterviewSession, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM interview_sessions WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, time_limit_seconds, question_ids, status, final_score, created_at, ended_at
		 FROM interview_sessions
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2 OFFSET $3`, userID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sessions []model.InterviewSession
	for rows.Next() {
		var s model.InterviewSession
		if err := rows.Scan(&s.ID, &s.UserID, &s.TimeLimitSeconds, &s.QuestionIDs, &s.Status, &s.FinalScore, &s.CreatedAt, &s.EndedAt); err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, s)
	}
	return sessions, total, rows.Err()
}
