// Package event publishes domain events to the platform's topic exchange.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type is the routing key of an event.
type Type string

const (
	TypeSessionEnded    Type = "interview.session.ended"
	TypeReviewScheduled Type = "practice.review.scheduled"
)

// Event is the envelope published on the exchange.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       Type      `json:"type"`
	UserID     int       `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// New wraps data in an envelope with a fresh id.
func New(t Type, userID int, occurredAt time.Time, data any) *Event {
	return &Event{
		ID:         uuid.New(),
		Type:       t,
		UserID:     userID,
		OccurredAt: occurredAt,
		Data:       data,
	}
}

type SessionEnded struct {
	SessionID uuid.UUID `json:"session_id"`
	Score     float64   `json:"score"`
	Solved    int       `json:"solved"`
	Questions int       `json:"questions"`
	EndedAt   time.Time `json:"ended_at"`
}

type ReviewScheduled struct {
	QuestionID   uuid.UUID `json:"question_id"`
	NextReviewAt time.Time `json:"next_review_at"`
	IntervalDays int       `json:"interval_days"`
	EaseFactor   float64   `json:"ease_factor"`
	Streak       int       `json:"streak"`
	XPAwarded    int       `json:"xp_awarded"`
	FirstSolve   bool      `json:"first_solve"`
}
