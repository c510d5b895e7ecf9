package app

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/storyloom/internal/platform/errors"
	"github.com/louisbranch/storyloom/internal/services/story/domain/command"
	"github.com/louisbranch/storyloom/internal/services/story/domain/event"
	"github.com/louisbranch/storyloom/internal/services/story/eventlog"
	"github.com/louisbranch/storyloom/internal/services/story/projection"
	"github.com/louisbranch/storyloom/internal/services/story/storage"
)

// Service runs chat intents and reads against per-chat coordinators.
type Service struct {
	registry *eventlog.Registry
	now      func() time.Time
}

// NewService builds a service over store.
func NewService(store storage.EventStore, options eventlog.Options) (*Service, error) {
	registry, err := eventlog.NewRegistry(store, options)
	if err != nil {
		return nil, err
	}
	return &Service{registry: registry, now: time.Now}, nil
}

// SetClock overrides the time source used to stamp new events.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ContextView is the LLM-facing view of a chat.
type ContextView struct {
	Messages        []projection.Message `json:"messages"`
	ActiveChapterID string               `json:"active_chapter_id,omitempty"`
	EstimatedTokens int                  `json:"estimated_tokens"`
}

// AddMessage appends a message and returns its id.
func (s *Service) AddMessage(ctx context.Context, chatID string, role event.Role, content string) (string, error) {
	events, err := s.run(ctx, chatID, func(*eventlog.Coordinator) command.Decision {
		return command.AddMessage(chatID, role, content, s.now())
	})
	if err != nil {
		return "", err
	}
	return events[0].EntityID, nil
}

// EditMessage replaces a message's content. Unknown ids are accepted and
// ignored by the projections.
func (s *Service) EditMessage(ctx context.Context, chatID, messageID, content string) error {
	_, err := s.run(ctx, chatID, func(*eventlog.Coordinator) command.Decision {
		return command.EditMessage(chatID, messageID, content, s.now())
	})
	return err
}

// DeleteMessage soft-deletes one message.
func (s *Service) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	_, err := s.run(ctx, chatID, func(*eventlog.Coordinator) command.Decision {
		return command.DeleteMessage(chatID, messageID, s.now())
	})
	return err
}

// DeleteFrom soft-deletes messageID and every visible message after it and
// returns the deleted ids.
func (s *Service) DeleteFrom(ctx context.Context, chatID, messageID string) ([]string, error) {
	events, err := s.run(ctx, chatID, func(c *eventlog.Coordinator) command.Decision {
		return command.DeleteFrom(c.History(), chatID, messageID, s.now())
	})
	if err != nil {
		return nil, err
	}
	payload, err := event.DecodePayload(events[0])
	if err != nil {
		return nil, err
	}
	deleted, ok := payload.(event.MessagesDeleted)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T", payload)
	}
	return deleted.MessageIDs, nil
}

// Compact folds every visible message into a new chapter and returns the
// chapter id.
func (s *Service) Compact(ctx context.Context, chatID string, input event.ChapterInput) (string, error) {
	events, err := s.run(ctx, chatID, func(c *eventlog.Coordinator) command.Decision {
		return command.Compact(c.History(), chatID, input, s.now())
	})
	if err != nil {
		return "", err
	}
	return events[0].EntityID, nil
}

// EditChapter patches a chapter's title, summary, or direction.
func (s *Service) EditChapter(ctx context.Context, chatID, chapterID string, patch event.ChapterPatch) error {
	_, err := s.run(ctx, chatID, func(*eventlog.Coordinator) command.Decision {
		return command.EditChapter(chatID, chapterID, patch, s.now())
	})
	return err
}

// DeleteChapter removes a chapter and restores the messages it covered.
func (s *Service) DeleteChapter(ctx context.Context, chatID, chapterID string) error {
	_, err := s.run(ctx, chatID, func(*eventlog.Coordinator) command.Decision {
		return command.DeleteChapter(chatID, chapterID, s.now())
	})
	return err
}

// SetStory creates the chat's story or replaces its text, returning the
// story id.
func (s *Service) SetStory(ctx context.Context, chatID, content string) (string, error) {
	events, err := s.run(ctx, chatID, func(c *eventlog.Coordinator) command.Decision {
		return command.InitializeStory(c.History(), chatID, content, s.now())
	})
	if err != nil {
		return "", err
	}
	return events[0].EntityID, nil
}

// RecordCivitJob stores an image generation job reference.
func (s *Service) RecordCivitJob(ctx context.Context, chatID, jobID, prompt string) error {
	_, err := s.run(ctx, chatID, func(*eventlog.Coordinator) command.Decision {
		return command.RecordCivitJob(chatID, jobID, prompt, s.now())
	})
	return err
}

// History returns the visible full-history entries.
func (s *Service) History(ctx context.Context, chatID string) ([]projection.Entry, error) {
	c, err := s.coordinator(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return c.History().Messages(), nil
}

// Message returns one full-history entry, deleted or not.
func (s *Service) Message(ctx context.Context, chatID, id string) (projection.Entry, error) {
	c, err := s.coordinator(ctx, chatID)
	if err != nil {
		return projection.Entry{}, err
	}
	entry, ok := c.History().Message(id)
	if !ok {
		return projection.Entry{}, notFound("entry", id)
	}
	return entry, nil
}

// ChapterMessages returns the entries a chapter covers.
func (s *Service) ChapterMessages(ctx context.Context, chatID, chapterID string) ([]projection.Entry, error) {
	c, err := s.coordinator(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return c.History().ChapterMessages(chapterID), nil
}

// Context returns the LLM-facing message list.
func (s *Service) Context(ctx context.Context, chatID string) (ContextView, error) {
	c, err := s.coordinator(ctx, chatID)
	if err != nil {
		return ContextView{}, err
	}
	messages := c.Context().Messages()
	view := ContextView{Messages: messages, EstimatedTokens: projection.EstimateTokens(messages)}
	if id, ok := c.Context().ActiveChapterID(); ok {
		view.ActiveChapterID = id
	}
	return view, nil
}

// ContextMessage returns one LLM-facing message. Deleted entries are not
// found.
func (s *Service) ContextMessage(ctx context.Context, chatID, id string) (projection.Message, error) {
	c, err := s.coordinator(ctx, chatID)
	if err != nil {
		return projection.Message{}, err
	}
	msg, ok := c.Context().Message(id)
	if !ok {
		return projection.Message{}, notFound("message", id)
	}
	return msg, nil
}

// Subscribe registers fn to run after any event is applied to chatID's
// full history. fn may read the chat but must not write to it; hand writes
// off to another goroutine.
func (s *Service) Subscribe(ctx context.Context, chatID string, fn func()) (func(), error) {
	c, err := s.coordinator(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return c.History().Subscribe(fn), nil
}

// Release drops the in-memory state of chatID; the next call replays it.
func (s *Service) Release(chatID string) bool {
	return s.registry.Drop(chatID)
}

func (s *Service) coordinator(ctx context.Context, chatID string) (*eventlog.Coordinator, error) {
	c, err := s.registry.Get(chatID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeChatIDRequired, "chat id is required", err)
	}
	if err := c.Initialize(ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStoreUnavailable, fmt.Sprintf("load chat %s", c.ChatID()), err)
	}
	return c, nil
}

// run decides against the current history and appends the accepted events.
func (s *Service) run(ctx context.Context, chatID string, decide func(*eventlog.Coordinator) command.Decision) ([]event.Event, error) {
	c, err := s.coordinator(ctx, chatID)
	if err != nil {
		return nil, err
	}
	decision := decide(c)
	if decision.Rejected() {
		return nil, decision.Err()
	}
	return c.AddChatEvents(ctx, decision.Events...)
}

func notFound(kind, id string) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound, kind+" not found", map[string]string{"id": id})
}
