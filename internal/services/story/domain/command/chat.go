package command

import (
	"errors"
	"strings"
	"time"

	apperrors "github.com/louisbranch/storyloom/internal/platform/errors"
	"github.com/louisbranch/storyloom/internal/services/story/domain/event"
	"github.com/louisbranch/storyloom/internal/services/story/projection"
)

// HistoryReader is the read side the deciders consult. It must reflect every
// event applied before the call.
type HistoryReader interface {
	Messages() []projection.Entry
	Story() (projection.Entry, bool)
}

// AddMessage emits MessageCreated with a fresh id.
func AddMessage(chatID string, role event.Role, content string, now time.Time) Decision {
	if !role.Valid() {
		return Reject(Rejection{Code: apperrors.CodeChatInvalidRole, Message: "role must be user, assistant, or system"})
	}
	return decide(event.NewMessageCreated(chatID, role, content, now))
}

// EditMessage emits MessageEdited.
func EditMessage(chatID, messageID, content string, now time.Time) Decision {
	if strings.TrimSpace(messageID) == "" {
		return rejectMessageID()
	}
	return decide(event.BuildMessageEdited(chatID, messageID, content, now))
}

// DeleteMessage emits MessageDeleted.
func DeleteMessage(chatID, messageID string, now time.Time) Decision {
	if strings.TrimSpace(messageID) == "" {
		return rejectMessageID()
	}
	return decide(event.BuildMessageDeleted(chatID, messageID, now))
}

// DeleteFrom soft-deletes messageID and every visible entry after it.
// Chapters and the story are never part of the batch, so a later chapter
// stays visible. When messageID is not visible only the last deletable entry
// is removed; chapters and the story are skipped when looking for it.
func DeleteFrom(history HistoryReader, chatID, messageID string, now time.Time) Decision {
	if strings.TrimSpace(messageID) == "" {
		return rejectMessageID()
	}
	var ids []string
	start := -1
	for _, entry := range history.Messages() {
		if entry.ID == messageID && start < 0 {
			start = len(ids)
		}
		if entry.Kind == projection.KindChapter || entry.Kind == projection.KindStory {
			continue
		}
		ids = append(ids, entry.ID)
	}
	if start < 0 {
		start = max(len(ids)-1, 0)
	}
	if start >= len(ids) {
		return Reject(Rejection{Code: apperrors.CodeChatNothingToDelete, Message: "no visible messages to delete"})
	}
	return decide(event.BuildMessagesDeleted(chatID, ids[start:], now))
}

// Compact emits ChapterCreated covering every visible message, in order.
func Compact(history HistoryReader, chatID string, input event.ChapterInput, now time.Time) Decision {
	if strings.TrimSpace(input.Title) == "" {
		return Reject(Rejection{Code: apperrors.CodeChatChapterTitle, Message: "chapter title is required"})
	}
	var covered []string
	for _, entry := range history.Messages() {
		if entry.Kind != projection.KindMessage || entry.Deleted {
			continue
		}
		covered = append(covered, entry.ID)
	}
	if len(covered) == 0 {
		return Reject(Rejection{Code: apperrors.CodeChatNothingToCompact, Message: "no visible messages to compact"})
	}
	return decide(event.NewChapterCreated(chatID, input, covered, now))
}

// EditChapter emits ChapterEdited.
func EditChapter(chatID, chapterID string, patch event.ChapterPatch, now time.Time) Decision {
	if strings.TrimSpace(chapterID) == "" {
		return rejectChapterID()
	}
	return decide(event.BuildChapterEdited(chatID, chapterID, patch, now))
}

// DeleteChapter emits ChapterDeleted.
func DeleteChapter(chatID, chapterID string, now time.Time) Decision {
	if strings.TrimSpace(chapterID) == "" {
		return rejectChapterID()
	}
	return decide(event.BuildChapterDeleted(chatID, chapterID, now))
}

// InitializeStory emits StoryCreated for a chat without a story and
// StoryEdited otherwise.
func InitializeStory(history HistoryReader, chatID, content string, now time.Time) Decision {
	if story, ok := history.Story(); ok {
		return decide(event.BuildStoryEdited(chatID, story.ID, content, now))
	}
	return decide(event.NewStoryCreated(chatID, content, now))
}

// RecordCivitJob emits CivitJobCreated.
func RecordCivitJob(chatID, jobID, prompt string, now time.Time) Decision {
	if strings.TrimSpace(jobID) == "" {
		return Reject(Rejection{Code: apperrors.CodeChatCivitJobEmpty, Message: "civit job id is required"})
	}
	return decide(event.BuildCivitJobCreated(chatID, jobID, prompt, now))
}

func decide(evt event.Event, err error) Decision {
	if err == nil {
		return Accept(evt)
	}
	if errors.Is(err, event.ErrChatIDRequired) {
		return Reject(Rejection{Code: apperrors.CodeChatIDRequired, Message: err.Error()})
	}
	return Reject(Rejection{Code: apperrors.CodeUnknown, Message: err.Error()})
}

func rejectMessageID() Decision {
	return Reject(Rejection{Code: apperrors.CodeChatMessageIDEmpty, Message: "message id is required"})
}

func rejectChapterID() Decision {
	return Reject(Rejection{Code: apperrors.CodeChatChapterIDEmpty, Message: "chapter id is required"})
}
