// Package evaluator is the client side of the external AI code evaluator.
package evaluator

import (
	"context"
	"errors"
	"fmt"

	"github.com/stemsi/algoprep-backend/internal/model"
)

// Evaluator grades a submission. Implementations may take arbitrarily long;
// callers bound them with the context.
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (*model.EvaluationResult, error)
}

// Request is the payload sent for grading. Times are in seconds.
type Request struct {
	Code          string `json:"code"`
	Language      string `json:"language"`
	QuestionTitle string `json:"question_title"`
	Difficulty    string `json:"difficulty"`
	PatternName   string `json:"pattern_name"`
	ThinkingTime  int    `json:"thinking_time"`
	CodingTime    int    `json:"coding_time"`
	HintsUsed     int    `json:"hints_used"`
	PasteDetected bool   `json:"paste_detected"`
	RunCount      int    `json:"run_count"`
}

// Error is returned when an evaluation could not be obtained. It never means
// "the code is wrong"; that is a successful result with IsCorrect=false.
type Error struct {
	Reason     string
	StatusCode int
	Retryable  bool
	Wrapped    error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("evaluation failed: %s: %v", e.Reason, e.Wrapped)
	}
	return fmt.Sprintf("evaluation failed: %s", e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// IsRetryable reports whether err is a transient evaluator failure. Context
// deadline and unknown errors are treated as retryable.
func IsRetryable(err error) bool {
	var evalErr *Error
	if errors.As(err, &evalErr) {
		return evalErr.Retryable
	}
	return err != nil
}
