package domain

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	apperrors "github.com/louisbranch/storyloom/internal/platform/errors"
	"github.com/louisbranch/storyloom/internal/services/story/app"
	"github.com/louisbranch/storyloom/internal/services/story/domain/event"
	"github.com/louisbranch/storyloom/internal/services/story/projection"
)

// ChatService is the story surface the tools drive.
type ChatService interface {
	AddMessage(ctx context.Context, chatID string, role event.Role, content string) (string, error)
	EditMessage(ctx context.Context, chatID, messageID, content string) error
	DeleteMessage(ctx context.Context, chatID, messageID string) error
	DeleteFrom(ctx context.Context, chatID, messageID string) ([]string, error)
	Compact(ctx context.Context, chatID string, input event.ChapterInput) (string, error)
	EditChapter(ctx context.Context, chatID, chapterID string, patch event.ChapterPatch) error
	DeleteChapter(ctx context.Context, chatID, chapterID string) error
	SetStory(ctx context.Context, chatID, content string) (string, error)
	RecordCivitJob(ctx context.Context, chatID, jobID, prompt string) error
	History(ctx context.Context, chatID string) ([]projection.Entry, error)
	ChapterMessages(ctx context.Context, chatID, chapterID string) ([]projection.Entry, error)
	Context(ctx context.Context, chatID string) (app.ContextView, error)
}

// ResourceUpdateNotifier announces that the resource at uri changed.
type ResourceUpdateNotifier func(ctx context.Context, uri string)

// NotifyChatUpdated announces both readable views of chatID.
func NotifyChatUpdated(ctx context.Context, notify ResourceUpdateNotifier, chatID string) {
	if notify == nil {
		return
	}
	notify(ctx, HistoryResourceURI(chatID))
	notify(ctx, ContextResourceURI(chatID))
}

func (notify ResourceUpdateNotifier) historyOnly(ctx context.Context, chatID string) {
	if notify != nil {
		notify(ctx, HistoryResourceURI(chatID))
	}
}

// HistoryEntry is the wire form of one full-history entry.
type HistoryEntry struct {
	ID        string   `json:"id" jsonschema:"entry identifier"`
	Kind      string   `json:"kind" jsonschema:"entry kind (message, chapter, story, civit-job)"`
	Type      string   `json:"type" jsonschema:"display type"`
	Role      string   `json:"role,omitempty" jsonschema:"speaker role for messages"`
	Content   string   `json:"content" jsonschema:"entry text"`
	Deleted   bool     `json:"deleted" jsonschema:"true when soft-deleted"`
	HiddenBy  string   `json:"hidden_by,omitempty" jsonschema:"chapter hiding this entry"`
	Covered   []string `json:"covered_message_ids,omitempty" jsonschema:"message ids a chapter covers"`
	Title     string   `json:"title,omitempty" jsonschema:"chapter title"`
	Summary   string   `json:"summary,omitempty" jsonschema:"chapter summary"`
	Direction string   `json:"next_direction,omitempty" jsonschema:"chapter direction for continuing the story"`
	Prompt    string   `json:"prompt,omitempty" jsonschema:"image prompt for civit jobs"`
	Seq       uint64   `json:"seq" jsonschema:"sequence of the creating event"`
	CreatedAt string   `json:"created_at" jsonschema:"RFC3339 timestamp of the creating event"`
}

func historyEntries(entries []projection.Entry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		item := HistoryEntry{
			ID:        entry.ID,
			Kind:      string(entry.Kind),
			Type:      string(entry.Type),
			Role:      string(entry.Role),
			Content:   entry.Content,
			Deleted:   entry.Deleted,
			HiddenBy:  entry.HiddenBy,
			Seq:       entry.Seq,
			CreatedAt: formatTimestamp(entry.CreatedAt),
		}
		if entry.Chapter != nil {
			item.Covered = entry.Chapter.CoveredMessageIDs
			item.Title = entry.Chapter.Title
			item.Summary = entry.Chapter.Summary
			item.Direction = entry.Chapter.NextDirection
		}
		if entry.CivitJob != nil {
			item.Prompt = entry.CivitJob.Prompt
		}
		out = append(out, item)
	}
	return out
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func requireChatID(chatID string) (string, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return "", fmt.Errorf("chat_id is required")
	}
	return chatID, nil
}

func requireService(service ChatService) error {
	if service == nil {
		log.Printf("mcp: chat service is not configured")
		return fmt.Errorf("chat service is not configured")
	}
	return nil
}

// toolError prefixes err with the failed action and, for coded errors, the
// code and its class so clients can tell bad input from server trouble.
func toolError(action string, err error) error {
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeUnknown {
		return fmt.Errorf("%s failed: %w", action, err)
	}
	return fmt.Errorf("%s failed [%s %s]: %w", action, code, code.Class(), err)
}
