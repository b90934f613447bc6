package session

import (
	"sync"

	"github.com/stemsi/algoprep-backend/internal/model"
)

// NotificationKind names an event pushed to subscribers.
type NotificationKind string

const (
	NotifyTick             NotificationKind = "tick"
	NotifySnapshot         NotificationKind = "snapshot"
	NotifyGraded           NotificationKind = "graded"
	NotifyEvaluationFailed NotificationKind = "evaluation_failed"
	NotifyFinalizing       NotificationKind = "finalizing"
	NotifyEnded            NotificationKind = "ended"
	NotifyFinalizeFailed   NotificationKind = "finalize_failed"
)

// Notification is a state change the client should hear about.
type Notification struct {
	Kind             NotificationKind        `json:"kind"`
	QuestionID       string                  `json:"question_id,omitempty"`
	RemainingSeconds int                     `json:"remaining_seconds"`
	Phase            model.QuestionPhase     `json:"phase,omitempty"`
	Evaluation       *model.EvaluationResult `json:"evaluation,omitempty"`
	Snapshot         *model.Snapshot         `json:"snapshot,omitempty"`
	Reason           string                  `json:"reason,omitempty"`
	Error            string                  `json:"error,omitempty"`
	Retryable        bool                    `json:"retryable,omitempty"`
	Unpersisted      []string                `json:"unpersisted,omitempty"`
	Score            *float64                `json:"score,omitempty"`
}

const subscriberBuffer = 32

// hub fans notifications out to subscribers. Slow subscribers lose
// notifications instead of stalling the controller.
type hub struct {
	mu     sync.Mutex
	subs   map[int]chan Notification
	nextID int
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan Notification)}
}

func (h *hub) subscribe() (<-chan Notification, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Notification, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
}

func (h *hub) publish(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
