package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrInvalidAccessCode  ErrCode = "INVALID_ACCESS_CODE"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrConflict        ErrCode = "CONFLICT"
	ErrActionForbidden ErrCode = "ACTION_FORBIDDEN"

	// ─── Exam & session ────────────────────────────────────────────────
	ErrExamNotPublished  ErrCode = "EXAM_NOT_PUBLISHED"
	ErrExamNotDraft      ErrCode = "EXAM_NOT_DRAFT"
	ErrNoQuestions       ErrCode = "NO_QUESTIONS"
	ErrAttemptActive     ErrCode = "ATTEMPT_ALREADY_ACTIVE"
	ErrSessionNotRunning ErrCode = "SESSION_NOT_RUNNING"
	ErrSessionScored     ErrCode = "SESSION_ALREADY_SCORED"
	ErrUnknownQuestion   ErrCode = "UNKNOWN_QUESTION"
	ErrUnknownOption     ErrCode = "UNKNOWN_OPTION"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Invalid candidate id or password."
	case ErrInvalidAccessCode:
		return "The exam access code is incorrect."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is not valid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "The id format is not valid."
	case ErrInvalidPayload:
		return "The request payload is not valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "The resource was not found."
	case ErrConflict:
		return "The resource already exists."
	case ErrActionForbidden:
		return "This action is not allowed."

	// ─── Exam & session ────────────────────────────────────────────────
	case ErrExamNotPublished:
		return "This exam has not been published."
	case ErrExamNotDraft:
		return "This exam is not in DRAFT status."
	case ErrNoQuestions:
		return "This exam has no questions."
	case ErrAttemptActive:
		return "You already have an active attempt for this exam."
	case ErrSessionNotRunning:
		return "The exam session is not running."
	case ErrSessionScored:
		return "The exam session has already been submitted."
	case ErrUnknownQuestion:
		return "The question does not belong to this exam."
	case ErrUnknownOption:
		return "The option does not belong to this question."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
