package model

import (
	"time"

	"github.com/google/uuid"
)

// ReviewSchedule decides when a solved question resurfaces for review.
type ReviewSchedule struct {
	UserID         int       `json:"user_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	EaseFactor     float64   `json:"ease_factor"`
	IntervalDays   int       `json:"interval_days"`
	ReviewCount    int       `json:"review_count"`
	NextReviewAt   time.Time `json:"next_review_at"`
	LastReviewedAt time.Time `json:"last_reviewed_at"`
}

// UserProgress is the per-user streak and XP record.
type UserProgress struct {
	UserID        int        `json:"user_id"`
	Streak        int        `json:"streak"`
	LongestStreak int        `json:"longest_streak"`
	XP            int        `json:"xp"`
	LastSolvedAt  *time.Time `json:"last_solved_at,omitempty"`
}

// SolveRequest reports a free-practice solve and the assistance used for it.
type SolveRequest struct {
	HintsUsed        int  `json:"hints_used" binding:"min=0"`
	ViewedApproach   bool `json:"viewed_approach"`
	ViewedBruteForce bool `json:"viewed_brute_force"`
	ViewedOptimal    bool `json:"viewed_optimal"`
}

// SolveResult is returned after a solve has been scheduled for review.
type SolveResult struct {
	Schedule   ReviewSchedule `json:"schedule"`
	Streak     int            `json:"streak"`
	XPAwarded  int            `json:"xp_awarded"`
	Multiplier float64        `json:"multiplier"`
	FirstSolve bool           `json:"first_solve"`
}

// CodeDraft is an autosaved free-practice editor buffer.
type CodeDraft struct {
	UserID     int       `json:"user_id"`
	QuestionID string    `json:"question_id"`
	Language   string    `json:"language"`
	Code       string    `json:"code"`
	SavedAt    time.Time `json:"saved_at"`
}
