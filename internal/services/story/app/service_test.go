package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "github.com/louisbranch/storyloom/internal/platform/errors"
	"github.com/louisbranch/storyloom/internal/services/story/domain/event"
	"github.com/louisbranch/storyloom/internal/services/story/eventlog"
	"github.com/louisbranch/storyloom/internal/services/story/projection"
	"github.com/louisbranch/storyloom/internal/services/story/storage/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(memory.New(), eventlog.Options{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	tick := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	})
	return svc
}

func addMessages(t *testing.T, svc *Service, chatID string, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		role := event.RoleUser
		if i%2 == 0 {
			role = event.RoleAssistant
		}
		id, err := svc.AddMessage(context.Background(), chatID, role, fmt.Sprintf("line %d", i))
		if err != nil {
			t.Fatalf("add message %d: %v", i, err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestNewServiceRequiresStore(t *testing.T) {
	if _, err := NewService(nil, eventlog.Options{}); !errors.Is(err, eventlog.ErrStoreRequired) {
		t.Fatalf("err = %v, want ErrStoreRequired", err)
	}
}

func TestAddMessageShowsInBothViews(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ids := addMessages(t, svc, "chat-1", 3)

	history, err := svc.History(ctx, "chat-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 || history[0].ID != ids[0] {
		t.Fatalf("history = %+v", history)
	}
	view, err := svc.Context(ctx, "chat-1")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	want := []projection.Message{
		{Role: "user", Content: "line 1"},
		{Role: "assistant", Content: "line 2"},
		{Role: "user", Content: "line 3"},
	}
	if len(view.Messages) != len(want) {
		t.Fatalf("context = %+v", view.Messages)
	}
	for i := range want {
		if view.Messages[i] != want[i] {
			t.Fatalf("context[%d] = %+v, want %+v", i, view.Messages[i], want[i])
		}
	}
	if view.EstimatedTokens != projection.EstimateTokens(want) {
		t.Fatalf("tokens = %d", view.EstimatedTokens)
	}
}

func TestAddMessageRejectsInvalidRole(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.AddMessage(context.Background(), "chat-1", "narrator", "hi")
	if apperrors.CodeOf(err) != apperrors.CodeChatInvalidRole {
		t.Fatalf("code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeChatInvalidRole)
	}
}

func TestCompactBuffersLastWindow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ids := addMessages(t, svc, "chat-1", 10)

	chapterID, err := svc.Compact(ctx, "chat-1", event.ChapterInput{Title: "Arrival", Summary: "They arrived.", NextDirection: "Explore"})
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	view, err := svc.Context(ctx, "chat-1")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if len(view.Messages) != projection.Window+1 {
		t.Fatalf("context length = %d, want %d", len(view.Messages), projection.Window+1)
	}
	if view.Messages[0].Content != "line 5" {
		t.Fatalf("first buffered = %q, want line 5", view.Messages[0].Content)
	}
	if view.ActiveChapterID != chapterID {
		t.Fatalf("active chapter = %q, want %q", view.ActiveChapterID, chapterID)
	}

	covered, err := svc.ChapterMessages(ctx, "chat-1", chapterID)
	if err != nil {
		t.Fatalf("chapter messages: %v", err)
	}
	if len(covered) != len(ids) {
		t.Fatalf("covered = %d, want %d", len(covered), len(ids))
	}

	history, err := svc.History(ctx, "chat-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != chapterID {
		t.Fatalf("history = %+v", history)
	}

	if _, err := svc.Compact(ctx, "chat-1", event.ChapterInput{Title: "Again"}); apperrors.CodeOf(err) != apperrors.CodeChatNothingToCompact {
		t.Fatalf("code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeChatNothingToCompact)
	}

	if err := svc.DeleteChapter(ctx, "chat-1", chapterID); err != nil {
		t.Fatalf("delete chapter: %v", err)
	}
	history, err = svc.History(ctx, "chat-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != len(ids) {
		t.Fatalf("history after delete = %d, want %d", len(history), len(ids))
	}
}

func TestEditChapterUpdatesRendering(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	addMessages(t, svc, "chat-1", 2)
	chapterID, err := svc.Compact(ctx, "chat-1", event.ChapterInput{Title: "One", Summary: "first"})
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	title := "Renamed"
	if err := svc.EditChapter(ctx, "chat-1", chapterID, event.ChapterPatch{Title: &title}); err != nil {
		t.Fatalf("edit chapter: %v", err)
	}
	entry, err := svc.Message(ctx, "chat-1", chapterID)
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if entry.Chapter == nil || entry.Chapter.Title != "Renamed" {
		t.Fatalf("chapter = %+v", entry.Chapter)
	}
}

func TestDeleteFromReturnsDeletedIDs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ids := addMessages(t, svc, "chat-1", 5)

	deleted, err := svc.DeleteFrom(ctx, "chat-1", ids[2])
	if err != nil {
		t.Fatalf("delete from: %v", err)
	}
	if len(deleted) != 3 || deleted[0] != ids[2] || deleted[2] != ids[4] {
		t.Fatalf("deleted = %v", deleted)
	}
	history, err := svc.History(ctx, "chat-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d, want 2", len(history))
	}
}

func TestDeleteFromKeepsLaterChapter(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ids := addMessages(t, svc, "chat-1", 3)
	first, err := svc.Compact(ctx, "chat-1", event.ChapterInput{Title: "One"})
	if err != nil {
		t.Fatalf("compact first: %v", err)
	}
	addMessages(t, svc, "chat-1", 1)
	second, err := svc.Compact(ctx, "chat-1", event.ChapterInput{Title: "Two"})
	if err != nil {
		t.Fatalf("compact second: %v", err)
	}
	if err := svc.DeleteChapter(ctx, "chat-1", first); err != nil {
		t.Fatalf("delete chapter: %v", err)
	}

	deleted, err := svc.DeleteFrom(ctx, "chat-1", ids[1])
	if err != nil {
		t.Fatalf("delete from: %v", err)
	}
	if len(deleted) != 2 || deleted[0] != ids[1] || deleted[1] != ids[2] {
		t.Fatalf("deleted = %v, want [%s %s]", deleted, ids[1], ids[2])
	}
	history, err := svc.History(ctx, "chat-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].ID != ids[0] || history[1].ID != second {
		t.Fatalf("history = %+v, want [%s %s]", history, ids[0], second)
	}
}

func TestDeleteFromFallbackRejectsWhenOnlyChapterVisible(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	addMessages(t, svc, "chat-1", 2)
	chapterID, err := svc.Compact(ctx, "chat-1", event.ChapterInput{Title: "One"})
	if err != nil {
		t.Fatalf("compact: %v", err)
	}

	if _, err := svc.DeleteFrom(ctx, "chat-1", "gone"); apperrors.CodeOf(err) != apperrors.CodeChatNothingToDelete {
		t.Fatalf("code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeChatNothingToDelete)
	}
	history, err := svc.History(ctx, "chat-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != chapterID {
		t.Fatalf("history = %+v", history)
	}
}

func TestDeleteKeepsAuditTrail(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ids := addMessages(t, svc, "chat-1", 2)

	if err := svc.DeleteMessage(ctx, "chat-1", ids[0]); err != nil {
		t.Fatalf("delete: %v", err)
	}
	entry, err := svc.Message(ctx, "chat-1", ids[0])
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if !entry.Deleted {
		t.Fatal("expected deleted entry in full history")
	}
	if _, err := svc.ContextMessage(ctx, "chat-1", ids[0]); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeNotFound)
	}
	msg, err := svc.ContextMessage(ctx, "chat-1", ids[1])
	if err != nil {
		t.Fatalf("context message: %v", err)
	}
	if msg.Content != "line 2" {
		t.Fatalf("content = %q", msg.Content)
	}
}

func TestEditMessageUnknownIDIsTolerated(t *testing.T) {
	svc := newTestService(t)
	if err := svc.EditMessage(context.Background(), "chat-1", "missing", "text"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if _, err := svc.Message(context.Background(), "chat-1", "missing"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeNotFound)
	}
}

func TestSetStoryCreatesThenEdits(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	first, err := svc.SetStory(ctx, "chat-1", "Once upon a time")
	if err != nil {
		t.Fatalf("set story: %v", err)
	}
	addMessages(t, svc, "chat-1", 1)
	second, err := svc.SetStory(ctx, "chat-1", "Long ago")
	if err != nil {
		t.Fatalf("edit story: %v", err)
	}
	if first != second {
		t.Fatalf("story id changed: %q -> %q", first, second)
	}
	view, err := svc.Context(ctx, "chat-1")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if len(view.Messages) != 2 || view.Messages[0].Content != "Long ago" {
		t.Fatalf("context = %+v", view.Messages)
	}
}

func TestRecordCivitJobStaysOutOfContext(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if err := svc.RecordCivitJob(ctx, "chat-1", "job-1", "a castle"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := svc.RecordCivitJob(ctx, "chat-1", "", "x"); apperrors.CodeOf(err) != apperrors.CodeChatCivitJobEmpty {
		t.Fatalf("code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeChatCivitJobEmpty)
	}
	history, err := svc.History(ctx, "chat-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].CivitJob == nil || history[0].CivitJob.JobID != "job-1" {
		t.Fatalf("history = %+v", history)
	}
	view, err := svc.Context(ctx, "chat-1")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if len(view.Messages) != 0 {
		t.Fatalf("context = %+v", view.Messages)
	}
}

func TestChatIDRequired(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.History(context.Background(), " "); apperrors.CodeOf(err) != apperrors.CodeChatIDRequired {
		t.Fatalf("code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeChatIDRequired)
	}
}

type downStore struct{ *memory.Store }

func (downStore) ListEvents(context.Context, string, uint64, int) ([]event.Event, error) {
	return nil, errors.New("connection refused")
}

func TestLoadFailureIsUnavailable(t *testing.T) {
	svc, err := NewService(downStore{memory.New()}, eventlog.Options{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.History(context.Background(), "chat-1"); apperrors.CodeOf(err) != apperrors.CodeStoreUnavailable {
		t.Fatalf("code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeStoreUnavailable)
	}
}

func TestReleaseReplaysFromStore(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	addMessages(t, svc, "chat-1", 2)

	calls := 0
	unsubscribe, err := svc.Subscribe(ctx, "chat-1", func() { calls++ })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	if !svc.Release("chat-1") {
		t.Fatal("expected release to drop a coordinator")
	}
	history, err := svc.History(ctx, "chat-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d, want 2", len(history))
	}
	if calls != 0 {
		t.Fatalf("released subscription fired %d times", calls)
	}
}
