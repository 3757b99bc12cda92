package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unexpected internal failure.
	CodeUnknown Code = "UNKNOWN"

	// Task errors
	CodeTaskTitleRequired      Code = "TASK_TITLE_REQUIRED"
	CodeTaskBudgetInvalid      Code = "TASK_BUDGET_INVALID"
	CodeTaskStatusInvalid      Code = "TASK_STATUS_INVALID"
	CodeTaskSelfAccept         Code = "TASK_SELF_ACCEPT"
	CodeTaskUnavailable        Code = "TASK_UNAVAILABLE"
	CodeTaskInvalidTransition  Code = "TASK_INVALID_TRANSITION"
	CodeTaskActorNotAllowed    Code = "TASK_ACTOR_NOT_ALLOWED"
	CodeTaskNotFound           Code = "TASK_NOT_FOUND"
	CodeTaskFeedbackIncomplete Code = "TASK_FEEDBACK_INCOMPLETE"

	// Chat errors
	CodeChatParticipantsEmpty Code = "CHAT_PARTICIPANTS_EMPTY"
	CodeChatNotFound          Code = "CHAT_NOT_FOUND"
	CodeChatSenderNotMember   Code = "CHAT_SENDER_NOT_MEMBER"
	CodeMessageEmpty          Code = "MESSAGE_EMPTY"
	CodeMessageTooLong        Code = "MESSAGE_TOO_LONG"

	// Notification errors
	CodeNotificationNotFound Code = "NOTIFICATION_NOT_FOUND"

	// Request/auth errors
	CodeRequestMalformed Code = "REQUEST_MALFORMED"
	CodeTokenInvalid     Code = "TOKEN_INVALID"

	// Storage errors
	CodeStorageFailure Code = "STORAGE_FAILURE"
)

// HTTPStatus maps domain codes to HTTP status codes.
//
// Conflicts surface as 400 rather than 409: a lost accept race and a stale
// transition precondition are both client-visible as "task unavailable".
func (c Code) HTTPStatus() int {
	switch c {
	case CodeTaskTitleRequired,
		CodeTaskBudgetInvalid,
		CodeTaskStatusInvalid,
		CodeTaskSelfAccept,
		CodeTaskUnavailable,
		CodeTaskInvalidTransition,
		CodeTaskFeedbackIncomplete,
		CodeChatParticipantsEmpty,
		CodeMessageEmpty,
		CodeMessageTooLong,
		CodeRequestMalformed:
		return http.StatusBadRequest
	case CodeTaskActorNotAllowed,
		CodeChatSenderNotMember,
		CodeTokenInvalid:
		return http.StatusForbidden
	case CodeTaskNotFound,
		CodeChatNotFound,
		CodeNotificationNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
