package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation      ErrCode = "VALIDATION_ERROR"
	ErrInvalidID       ErrCode = "INVALID_ID"
	ErrInvalidPayload  ErrCode = "INVALID_PAYLOAD"
	ErrInvalidTimezone ErrCode = "INVALID_TIMEZONE"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound      ErrCode = "NOT_FOUND"
	ErrConflict      ErrCode = "CONFLICT"
	ErrDraftNotFound ErrCode = "DRAFT_NOT_FOUND"

	// ─── Interview-specific ────────────────────────────────────────────
	ErrSessionNotFound     ErrCode = "SESSION_NOT_FOUND"
	ErrActiveSessionExists ErrCode = "ACTIVE_SESSION_EXISTS"
	ErrNoActiveSession     ErrCode = "NO_ACTIVE_SESSION"
	ErrSessionNotActive    ErrCode = "SESSION_NOT_ACTIVE"
	ErrUnknownQuestion     ErrCode = "UNKNOWN_QUESTION"
	ErrSubmissionTooShort  ErrCode = "SUBMISSION_TOO_SHORT"
	ErrEvaluationPending   ErrCode = "EVALUATION_PENDING"
	ErrAlreadySolved       ErrCode = "ALREADY_SOLVED"
	ErrFinalizePending     ErrCode = "FINALIZE_PENDING"
	ErrQuestionNotFound    ErrCode = "QUESTION_NOT_FOUND"
	ErrUnknownAction       ErrCode = "UNKNOWN_ACTION"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid or expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have access to this resource."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrInvalidTimezone:
		return "Unknown timezone."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrDraftNotFound:
		return "No draft saved for this question."

	// ─── Interview-specific ────────────────────────────────────────────
	case ErrSessionNotFound:
		return "Interview session not found."
	case ErrActiveSessionExists:
		return "You already have an interview in progress."
	case ErrNoActiveSession:
		return "You have no interview in progress."
	case ErrSessionNotActive:
		return "This interview no longer accepts input."
	case ErrUnknownQuestion:
		return "Question is not part of this interview."
	case ErrSubmissionTooShort:
		return "Submission is too short to evaluate."
	case ErrEvaluationPending:
		return "The previous submission is still being evaluated."
	case ErrAlreadySolved:
		return "This question is already solved."
	case ErrFinalizePending:
		return "Interview results could not be saved yet. Please retry."
	case ErrQuestionNotFound:
		return "Question not found."
	case ErrUnknownAction:
		return "Unknown action."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
