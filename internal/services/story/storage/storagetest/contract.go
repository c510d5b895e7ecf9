// Package storagetest holds behavior checks shared by every event store
// backend.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/storyloom/internal/services/story/domain/event"
	"github.com/louisbranch/storyloom/internal/services/story/storage"
)

// Opener returns a fresh, empty store. Run closes it when the subtest ends.
type Opener func(t *testing.T) storage.Store

// Run exercises the storage.Store contract against stores from open.
func Run(t *testing.T, open Opener) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(*testing.T, storage.Store)
	}{
		{"AssignsContiguousSeqPerChat", testAssignsContiguousSeq},
		{"RoundTripsEnvelope", testRoundTripsEnvelope},
		{"PagesAfterSeq", testPagesAfterSeq},
		{"DuplicateEventIDReturnsStored", testDuplicateEventID},
		{"RejectsInvalidEnvelope", testRejectsInvalidEnvelope},
		{"ListsChats", testListsChats},
		{"ConcurrentAppendsStayContiguous", testConcurrentAppends},
		{"HonorsCanceledContext", testCanceledContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := open(t)
			t.Cleanup(func() {
				if err := store.Close(); err != nil {
					t.Errorf("close store: %v", err)
				}
			})
			tt.fn(t, store)
		})
	}
}

// NewEvent builds a valid MessageCreated event for chatID.
func NewEvent(t *testing.T, chatID, messageID string) event.Event {
	t.Helper()
	evt, err := event.BuildMessageCreated(chatID, messageID, event.RoleUser, "content "+messageID, time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	return evt
}

func mustAppend(t *testing.T, store storage.Store, evt event.Event) event.Event {
	t.Helper()
	stored, err := store.AppendEvent(context.Background(), evt)
	if err != nil {
		t.Fatalf("append %s: %v", evt.ID, err)
	}
	return stored
}

func testAssignsContiguousSeq(t *testing.T, store storage.Store) {
	for i := 1; i <= 3; i++ {
		stored := mustAppend(t, store, NewEvent(t, "chat-a", fmt.Sprintf("m%d", i)))
		if stored.Seq != uint64(i) {
			t.Fatalf("chat-a seq = %d, want %d", stored.Seq, i)
		}
	}
	if stored := mustAppend(t, store, NewEvent(t, "chat-b", "m1")); stored.Seq != 1 {
		t.Fatalf("chat-b seq = %d, want 1", stored.Seq)
	}
}

func testRoundTripsEnvelope(t *testing.T, store storage.Store) {
	evt := NewEvent(t, "chat-a", "m1")
	evt.Timestamp = time.Date(2026, 4, 1, 10, 0, 0, 987654321, time.FixedZone("X", 7200))
	mustAppend(t, store, evt)

	events, err := store.ListEvents(context.Background(), "chat-a", 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	got := events[0]
	if got.ID != evt.ID || got.Type != evt.Type || got.EntityType != evt.EntityType || got.EntityID != evt.EntityID {
		t.Fatalf("envelope mismatch: %+v vs %+v", got, evt)
	}
	if string(got.PayloadJSON) != string(evt.PayloadJSON) {
		t.Fatalf("payload = %s, want %s", got.PayloadJSON, evt.PayloadJSON)
	}
	want := evt.Timestamp.UTC().Truncate(time.Millisecond)
	if !got.Timestamp.Equal(want) || got.Timestamp.Location() != time.UTC {
		t.Fatalf("timestamp = %v, want %v", got.Timestamp, want)
	}
}

func testPagesAfterSeq(t *testing.T, store storage.Store) {
	for i := 1; i <= 5; i++ {
		mustAppend(t, store, NewEvent(t, "chat-a", fmt.Sprintf("m%d", i)))
	}
	page, err := store.ListEvents(context.Background(), "chat-a", 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].Seq != 3 || page[1].Seq != 4 {
		t.Fatalf("page = %+v", page)
	}
	rest, err := store.ListEvents(context.Background(), "chat-a", 4, 0)
	if err != nil {
		t.Fatalf("list rest: %v", err)
	}
	if len(rest) != 1 || rest[0].Seq != 5 {
		t.Fatalf("rest = %+v", rest)
	}
	empty, err := store.ListEvents(context.Background(), "unknown", 0, 10)
	if err != nil {
		t.Fatalf("list unknown: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("unknown chat returned %d events", len(empty))
	}
}

func testDuplicateEventID(t *testing.T, store storage.Store) {
	evt := NewEvent(t, "chat-a", "m1")
	first := mustAppend(t, store, evt)
	second := mustAppend(t, store, evt)
	if first.Seq != second.Seq {
		t.Fatalf("duplicate append seq = %d, want %d", second.Seq, first.Seq)
	}
	events, err := store.ListEvents(context.Background(), "chat-a", 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
}

func testRejectsInvalidEnvelope(t *testing.T, store storage.Store) {
	missingChat := NewEvent(t, "chat-a", "m1")
	missingChat.ChatID = ""
	if _, err := store.AppendEvent(context.Background(), missingChat); !errors.Is(err, event.ErrChatIDRequired) {
		t.Fatalf("expected ErrChatIDRequired, got %v", err)
	}
	missingID := NewEvent(t, "chat-a", "m1")
	missingID.ID = ""
	if _, err := store.AppendEvent(context.Background(), missingID); !errors.Is(err, event.ErrIDRequired) {
		t.Fatalf("expected ErrIDRequired, got %v", err)
	}
}

func testListsChats(t *testing.T, store storage.Store) {
	mustAppend(t, store, NewEvent(t, "chat-b", "m1"))
	mustAppend(t, store, NewEvent(t, "chat-a", "m1"))
	mustAppend(t, store, NewEvent(t, "chat-a", "m2"))

	ids, err := store.ListChatIDs(context.Background())
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if len(ids) != 2 || ids[0] != "chat-a" || ids[1] != "chat-b" {
		t.Fatalf("chat ids = %v", ids)
	}
}

func testConcurrentAppends(t *testing.T, store storage.Store) {
	const writers = 8
	events := make([]event.Event, writers)
	for i := range events {
		events[i] = NewEvent(t, "chat-a", fmt.Sprintf("m%d", i))
	}
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for _, evt := range events {
		wg.Add(1)
		go func(evt event.Event) {
			defer wg.Done()
			if _, err := store.AppendEvent(context.Background(), evt); err != nil {
				errs <- err
			}
		}(evt)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent append: %v", err)
	}

	stored, err := store.ListEvents(context.Background(), "chat-a", 0, 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != writers {
		t.Fatalf("events = %d, want %d", len(stored), writers)
	}
	for i, evt := range stored {
		if evt.Seq != uint64(i+1) {
			t.Fatalf("event %d seq = %d", i, evt.Seq)
		}
	}
}

func testCanceledContext(t *testing.T, store storage.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.AppendEvent(ctx, NewEvent(t, "chat-a", "m1")); !errors.Is(err, context.Canceled) {
		t.Fatalf("append with canceled context = %v", err)
	}
	if _, err := store.ListEvents(ctx, "chat-a", 0, 10); !errors.Is(err, context.Canceled) {
		t.Fatalf("list with canceled context = %v", err)
	}
}
