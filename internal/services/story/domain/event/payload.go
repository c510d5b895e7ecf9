package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType is returned when decoding an event type this build does not
// know. Replay treats it as skippable so newer logs never crash older code.
var ErrUnknownType = errors.New("unknown event type")

// Role is the speaker of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Payload is implemented by every event payload in this package.
type Payload interface {
	EventType() Type
}

// MessageCreated records a new chat message.
type MessageCreated struct {
	MessageID string `json:"message_id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
}

// MessageEdited replaces the content of an existing message.
type MessageEdited struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// MessageDeleted soft-deletes one message.
type MessageDeleted struct {
	MessageID string `json:"message_id"`
}

// MessagesDeleted soft-deletes a batch of messages.
type MessagesDeleted struct {
	MessageIDs []string `json:"message_ids"`
}

// ChapterCreated compacts the covered messages behind a summary.
// CoveredMessageIDs is fixed for the life of the chapter.
type ChapterCreated struct {
	ChapterID         string   `json:"chapter_id"`
	Title             string   `json:"title"`
	Summary           string   `json:"summary"`
	NextDirection     string   `json:"next_direction,omitempty"`
	CoveredMessageIDs []string `json:"covered_message_ids"`
}

// ChapterEdited updates the fields that are present; nil fields are kept.
type ChapterEdited struct {
	ChapterID     string  `json:"chapter_id"`
	Title         *string `json:"title,omitempty"`
	Summary       *string `json:"summary,omitempty"`
	NextDirection *string `json:"next_direction,omitempty"`
}

// ChapterDeleted removes a chapter from output and restores its coverage.
type ChapterDeleted struct {
	ChapterID string `json:"chapter_id"`
}

// StoryCreated sets the chat's pinned story preamble.
type StoryCreated struct {
	StoryID string `json:"story_id"`
	Content string `json:"content"`
}

// StoryEdited replaces the story preamble content.
type StoryEdited struct {
	StoryID string `json:"story_id"`
	Content string `json:"content"`
}

// CivitJobCreated ties an image generation job to the chat. It is stored and
// surfaced as-is.
type CivitJobCreated struct {
	JobID  string `json:"job_id"`
	Prompt string `json:"prompt"`
}

func (MessageCreated) EventType() Type  { return TypeMessageCreated }
func (MessageEdited) EventType() Type   { return TypeMessageEdited }
func (MessageDeleted) EventType() Type  { return TypeMessageDeleted }
func (MessagesDeleted) EventType() Type { return TypeMessagesDeleted }
func (ChapterCreated) EventType() Type  { return TypeChapterCreated }
func (ChapterEdited) EventType() Type   { return TypeChapterEdited }
func (ChapterDeleted) EventType() Type  { return TypeChapterDeleted }
func (StoryCreated) EventType() Type    { return TypeStoryCreated }
func (StoryEdited) EventType() Type     { return TypeStoryEdited }
func (CivitJobCreated) EventType() Type { return TypeCivitJobCreated }

// DecodePayload decodes evt.PayloadJSON into the payload type for evt.Type.
func DecodePayload(evt Event) (Payload, error) {
	switch evt.Type {
	case TypeMessageCreated:
		return decodeAs[MessageCreated](evt)
	case TypeMessageEdited:
		return decodeAs[MessageEdited](evt)
	case TypeMessageDeleted:
		return decodeAs[MessageDeleted](evt)
	case TypeMessagesDeleted:
		return decodeAs[MessagesDeleted](evt)
	case TypeChapterCreated:
		return decodeAs[ChapterCreated](evt)
	case TypeChapterEdited:
		return decodeAs[ChapterEdited](evt)
	case TypeChapterDeleted:
		return decodeAs[ChapterDeleted](evt)
	case TypeStoryCreated:
		return decodeAs[StoryCreated](evt)
	case TypeStoryEdited:
		return decodeAs[StoryEdited](evt)
	case TypeCivitJobCreated:
		return decodeAs[CivitJobCreated](evt)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, evt.Type)
	}
}

func decodeAs[P Payload](evt Event) (Payload, error) {
	var payload P
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	return payload, nil
}
