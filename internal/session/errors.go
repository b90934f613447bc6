package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrSessionClosed     = errors.New("session controller is closed")
	ErrSessionNotActive  = errors.New("session is no longer active")
	ErrUnknownQuestion   = errors.New("question is not part of this session")
	ErrUnknownEvent      = errors.New("unknown event kind")
	ErrEvaluationPending = errors.New("an evaluation for this question is still pending")
	ErrAlreadySolved     = errors.New("question is already solved")
)

// ConfigError is returned by Start when the session configuration is unusable.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid session config: %s: %s", e.Field, e.Reason)
}

// ValidationError rejects a submission before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid submission: %s: %s", e.Field, e.Reason)
}

// PersistenceError means finalize could not make every record durable. The
// session stays in FINALIZING and a later End(true) retries only QuestionIDs.
type PersistenceError struct {
	SessionID   uuid.UUID
	QuestionIDs []uuid.UUID
	Err         error
}

func (e *PersistenceError) Error() string {
	if len(e.QuestionIDs) == 0 {
		return fmt.Sprintf("finalize session %s: mark ended: %v", e.SessionID, e.Err)
	}
	ids := make([]string, len(e.QuestionIDs))
	for i, id := range e.QuestionIDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf("finalize session %s: %d result(s) not persisted [%s]: %v",
		e.SessionID, len(ids), strings.Join(ids, ", "), e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
