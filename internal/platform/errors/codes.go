// Package errors provides coded domain errors.
package errors

// Code is a machine-readable error code.
type Code string

// Class groups codes by how a caller should react to them.
type Class string

const (
	ClassInvalidArgument    Class = "invalid_argument"
	ClassFailedPrecondition Class = "failed_precondition"
	ClassNotFound           Class = "not_found"
	ClassUnavailable        Class = "unavailable"
	ClassInternal           Class = "internal"
)

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Chat input errors
	CodeChatIDRequired     Code = "CHAT_ID_REQUIRED"
	CodeChatInvalidRole    Code = "CHAT_INVALID_ROLE"
	CodeChatMessageIDEmpty Code = "CHAT_MESSAGE_ID_EMPTY"
	CodeChatChapterIDEmpty Code = "CHAT_CHAPTER_ID_EMPTY"
	CodeChatChapterTitle   Code = "CHAT_CHAPTER_TITLE_EMPTY"
	CodeChatCivitJobEmpty  Code = "CHAT_CIVIT_JOB_ID_EMPTY"

	// Chat state errors
	CodeChatNothingToCompact Code = "CHAT_NOTHING_TO_COMPACT"
	CodeChatNothingToDelete  Code = "CHAT_NOTHING_TO_DELETE"

	// Lookup errors
	CodeNotFound Code = "NOT_FOUND"

	// Storage errors
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
)

// Class maps a code to its handling class.
func (c Code) Class() Class {
	switch c {
	case CodeChatIDRequired,
		CodeChatInvalidRole,
		CodeChatMessageIDEmpty,
		CodeChatChapterIDEmpty,
		CodeChatChapterTitle,
		CodeChatCivitJobEmpty:
		return ClassInvalidArgument

	case CodeChatNothingToCompact,
		CodeChatNothingToDelete:
		return ClassFailedPrecondition

	case CodeNotFound:
		return ClassNotFound

	case CodeStoreUnavailable:
		return ClassUnavailable

	default:
		return ClassInternal
	}
}
