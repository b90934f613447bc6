package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates interview session states. Transitions are one-way:
// ACTIVE → FINALIZING → ENDED.
type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "ACTIVE"
	SessionStatusFinalizing SessionStatus = "FINALIZING"
	SessionStatusEnded      SessionStatus = "ENDED"
)

// QuestionPhase is the progress state of one question inside a session.
// Flagged is kept separately because it can overlay any phase.
type QuestionPhase string

const (
	PhaseNotStarted        QuestionPhase = "NOT_STARTED"
	PhaseInProgress        QuestionPhase = "IN_PROGRESS"
	PhasePendingEvaluation QuestionPhase = "PENDING_EVALUATION"
	PhaseSolvedCorrect     QuestionPhase = "SOLVED_CORRECT"
	PhaseSolvedIncorrect   QuestionPhase = "SOLVED_INCORRECT_REVIEWABLE"
	PhaseSkipped           QuestionPhase = "SKIPPED"
)

// IsSolved reports whether the phase counts as a correct solve.
func (p QuestionPhase) IsSolved() bool { return p == PhaseSolvedCorrect }

// IsSkipped reports whether the question was skipped.
func (p QuestionPhase) IsSkipped() bool { return p == PhaseSkipped }

// InterviewSession is one timed, multi-question assessment attempt.
type InterviewSession struct {
	ID               uuid.UUID     `json:"id"`
	UserID           int           `json:"user_id"`
	TimeLimitSeconds int           `json:"time_limit_seconds"`
	QuestionIDs      []uuid.UUID   `json:"question_ids"`
	Status           SessionStatus `json:"status"`
	FinalScore       *float64      `json:"final_score,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	EndedAt          *time.Time    `json:"ended_at,omitempty"`
}

// Snapshot is a periodic capture of in-progress code.
type Snapshot struct {
	CapturedAt time.Time `json:"captured_at"`
	Code       string    `json:"code"`
}

// QuestionResult is the per-question record produced by finalization,
// keyed by (SessionID, QuestionID). It is also the read model for live views.
type QuestionResult struct {
	SessionID        uuid.UUID         `json:"session_id"`
	QuestionID       uuid.UUID         `json:"question_id"`
	Position         int               `json:"position"`
	Title            string            `json:"title,omitempty"`
	Phase            QuestionPhase     `json:"phase"`
	ElapsedSeconds   int               `json:"elapsed_seconds"`
	IsSolved         bool              `json:"is_solved"`
	Skipped          bool              `json:"skipped"`
	Flagged          bool              `json:"flagged"`
	HintsUsed        int               `json:"hints_used"`
	Code             string            `json:"code"`
	Language         string            `json:"language"`
	SubmittedCode    *string           `json:"submitted_code,omitempty"`
	// PendingCode is the latest submission that has no verdict, because the
	// evaluator failed or the session ended first.
	PendingCode      *string           `json:"pending_code,omitempty"`
	PendingLanguage  string            `json:"pending_language,omitempty"`
	FirstKeystrokeAt *time.Time        `json:"first_keystroke_at,omitempty"`
	Snapshots        []Snapshot        `json:"snapshots"`
	Evaluation       *EvaluationResult `json:"evaluation,omitempty"`
	PasteDetected    bool              `json:"paste_detected"`
	RunCount         int               `json:"run_count"`
}

// StartInterviewRequest is the payload for starting a timed session.
type StartInterviewRequest struct {
	QuestionIDs      []string `json:"question_ids" binding:"required,min=1,max=10,dive,uuid"`
	TimeLimitSeconds int      `json:"time_limit_seconds" binding:"required"`
	Language         string   `json:"language" binding:"omitempty,language"`
}

// EndInterviewRequest confirms an explicit end of the session.
type EndInterviewRequest struct {
	Confirmed bool `json:"confirmed"`
}
