package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/louisbranch/storyloom/internal/platform/id"
)

// ErrRequiredField indicates a constructor was called without a required value.
var ErrRequiredField = errors.New("required field is missing")

// Entity id kinds. Message ids use the role as their kind.
const (
	idKindChapter = "chapter"
	idKindStory   = "story"
)

// NewMessageID returns a fresh message id embedding the role.
func NewMessageID(role Role, now time.Time) (string, error) {
	return id.NewEntityID(string(role), now)
}

// NewChapterID returns a fresh chapter id.
func NewChapterID(now time.Time) (string, error) {
	return id.NewEntityID(idKindChapter, now)
}

// NewStoryID returns a fresh story id.
func NewStoryID(now time.Time) (string, error) {
	return id.NewEntityID(idKindStory, now)
}

// NewMessageCreated builds a MessageCreated event with a generated message id.
func NewMessageCreated(chatID string, role Role, content string, now time.Time) (Event, error) {
	messageID, err := NewMessageID(role, now)
	if err != nil {
		return Event{}, err
	}
	return BuildMessageCreated(chatID, messageID, role, content, now)
}

// BuildMessageCreated builds a MessageCreated event for a known message id.
func BuildMessageCreated(chatID, messageID string, role Role, content string, now time.Time) (Event, error) {
	if !role.Valid() {
		return Event{}, fmt.Errorf("%w: role %q", ErrRequiredField, role)
	}
	return build(chatID, EntityMessage, messageID, MessageCreated{
		MessageID: messageID,
		Role:      role,
		Content:   normalizeText(content),
	}, now)
}

// BuildMessageEdited builds a MessageEdited event.
func BuildMessageEdited(chatID, messageID, content string, now time.Time) (Event, error) {
	return build(chatID, EntityMessage, messageID, MessageEdited{
		MessageID: messageID,
		Content:   normalizeText(content),
	}, now)
}

// BuildMessageDeleted builds a MessageDeleted event.
func BuildMessageDeleted(chatID, messageID string, now time.Time) (Event, error) {
	return build(chatID, EntityMessage, messageID, MessageDeleted{MessageID: messageID}, now)
}

// BuildMessagesDeleted builds a MessagesDeleted event for a non-empty batch.
func BuildMessagesDeleted(chatID string, messageIDs []string, now time.Time) (Event, error) {
	if len(messageIDs) == 0 {
		return Event{}, fmt.Errorf("%w: message ids", ErrRequiredField)
	}
	return build(chatID, EntityChat, chatID, MessagesDeleted{
		MessageIDs: append([]string(nil), messageIDs...),
	}, now)
}

// ChapterInput carries the caller-supplied chapter fields.
type ChapterInput struct {
	Title         string
	Summary       string
	NextDirection string
}

// NewChapterCreated builds a ChapterCreated event with a generated chapter id.
func NewChapterCreated(chatID string, input ChapterInput, covered []string, now time.Time) (Event, error) {
	chapterID, err := NewChapterID(now)
	if err != nil {
		return Event{}, err
	}
	return BuildChapterCreated(chatID, chapterID, input, covered, now)
}

// BuildChapterCreated builds a ChapterCreated event for a known chapter id.
// The covered ids are copied so later changes by the caller cannot leak in.
func BuildChapterCreated(chatID, chapterID string, input ChapterInput, covered []string, now time.Time) (Event, error) {
	if strings.TrimSpace(input.Title) == "" {
		return Event{}, fmt.Errorf("%w: chapter title", ErrRequiredField)
	}
	return build(chatID, EntityChapter, chapterID, ChapterCreated{
		ChapterID:         chapterID,
		Title:             normalizeText(input.Title),
		Summary:           normalizeText(input.Summary),
		NextDirection:     normalizeText(input.NextDirection),
		CoveredMessageIDs: append([]string{}, covered...),
	}, now)
}

// ChapterPatch lists chapter fields to change; nil fields are left alone.
type ChapterPatch struct {
	Title         *string
	Summary       *string
	NextDirection *string
}

// BuildChapterEdited builds a ChapterEdited event.
func BuildChapterEdited(chatID, chapterID string, patch ChapterPatch, now time.Time) (Event, error) {
	return build(chatID, EntityChapter, chapterID, ChapterEdited{
		ChapterID:     chapterID,
		Title:         normalizeOptional(patch.Title),
		Summary:       normalizeOptional(patch.Summary),
		NextDirection: normalizeOptional(patch.NextDirection),
	}, now)
}

// BuildChapterDeleted builds a ChapterDeleted event.
func BuildChapterDeleted(chatID, chapterID string, now time.Time) (Event, error) {
	return build(chatID, EntityChapter, chapterID, ChapterDeleted{ChapterID: chapterID}, now)
}

// NewStoryCreated builds a StoryCreated event with a generated story id.
func NewStoryCreated(chatID, content string, now time.Time) (Event, error) {
	storyID, err := NewStoryID(now)
	if err != nil {
		return Event{}, err
	}
	return BuildStoryCreated(chatID, storyID, content, now)
}

// BuildStoryCreated builds a StoryCreated event for a known story id.
func BuildStoryCreated(chatID, storyID, content string, now time.Time) (Event, error) {
	return build(chatID, EntityStory, storyID, StoryCreated{
		StoryID: storyID,
		Content: normalizeText(content),
	}, now)
}

// BuildStoryEdited builds a StoryEdited event.
func BuildStoryEdited(chatID, storyID, content string, now time.Time) (Event, error) {
	return build(chatID, EntityStory, storyID, StoryEdited{
		StoryID: storyID,
		Content: normalizeText(content),
	}, now)
}

// BuildCivitJobCreated builds a CivitJobCreated event.
func BuildCivitJobCreated(chatID, jobID, prompt string, now time.Time) (Event, error) {
	return build(chatID, EntityCivitJob, jobID, CivitJobCreated{
		JobID:  jobID,
		Prompt: prompt,
	}, now)
}

func build(chatID, entityType, entityID string, payload Payload, now time.Time) (Event, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return Event{}, ErrChatIDRequired
	}
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return Event{}, fmt.Errorf("%w: %s id", ErrRequiredField, entityType)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", payload.EventType(), err)
	}
	eventID, err := id.NewID()
	if err != nil {
		return Event{}, err
	}
	return Event{
		ChatID:      chatID,
		ID:          eventID,
		Type:        payload.EventType(),
		Timestamp:   truncateTimestamp(now),
		EntityType:  entityType,
		EntityID:    entityID,
		PayloadJSON: payloadJSON,
	}, nil
}

// normalizeText returns value in Unicode normalization form C.
func normalizeText(value string) string {
	return norm.NFC.String(value)
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	normalized := normalizeText(*value)
	return &normalized
}
