// Package storage defines the durable event store contract for chat logs.
//
// Stores persist envelopes and payload bytes as given; payload validation and
// sealing happen before an event reaches a store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/storyloom/internal/platform/errors"
	"github.com/louisbranch/storyloom/internal/services/story/domain/event"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrClosed indicates the store was used after Close.
var ErrClosed = errors.New("store is closed")

// EventStore persists chat event logs.
type EventStore interface {
	// AppendEvent stores evt and returns it with Seq assigned. Appending an
	// event whose ID is already stored for the chat returns the stored copy.
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
	// ListEvents returns up to limit events with Seq greater than afterSeq,
	// in Seq order.
	ListEvents(ctx context.Context, chatID string, afterSeq uint64, limit int) ([]event.Event, error)
}

// ChatLister enumerates chats that have at least one event.
type ChatLister interface {
	ListChatIDs(ctx context.Context) ([]string, error)
}

// Store is a closable event store that can enumerate its chats.
type Store interface {
	EventStore
	ChatLister
	Close() error
}

// ValidateEnvelope checks the envelope fields every store relies on and
// returns evt with a UTC millisecond timestamp.
func ValidateEnvelope(evt event.Event) (event.Event, error) {
	evt.ChatID = strings.TrimSpace(evt.ChatID)
	if evt.ChatID == "" {
		return event.Event{}, event.ErrChatIDRequired
	}
	if strings.ContainsRune(evt.ChatID, 0) {
		return event.Event{}, fmt.Errorf("chat id must not contain NUL")
	}
	if strings.TrimSpace(evt.ID) == "" {
		return event.Event{}, event.ErrIDRequired
	}
	if strings.TrimSpace(string(evt.Type)) == "" {
		return event.Event{}, event.ErrTypeRequired
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)
	return evt, nil
}

// NormalizeLimit clamps a page size to a usable value.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	return limit
}

// DefaultPageSize is used when callers pass a non-positive limit.
const DefaultPageSize = 200
