// Package memory provides an in-process event store for tests and ephemeral
// chats.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/louisbranch/storyloom/internal/services/story/domain/event"
	"github.com/louisbranch/storyloom/internal/services/story/storage"
)

// Store keeps chat logs in memory.
type Store struct {
	mu     sync.RWMutex
	chats  map[string][]event.Event
	closed bool
}

// New returns an empty store.
func New() *Store {
	return &Store{chats: make(map[string][]event.Event)}
}

// AppendEvent stores evt with the next sequence for its chat.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	evt, err := storage.ValidateEnvelope(evt)
	if err != nil {
		return event.Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return event.Event{}, storage.ErrClosed
	}
	log := s.chats[evt.ChatID]
	for _, stored := range log {
		if stored.ID == evt.ID {
			return clone(stored), nil
		}
	}
	evt.Seq = uint64(len(log)) + 1
	evt.PayloadJSON = slices.Clone(evt.PayloadJSON)
	s.chats[evt.ChatID] = append(log, evt)
	return clone(evt), nil
}

// ListEvents returns a page of events after afterSeq.
func (s *Store) ListEvents(ctx context.Context, chatID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = storage.NormalizeLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	log := s.chats[chatID]
	if afterSeq >= uint64(len(log)) {
		return nil, nil
	}
	page := log[afterSeq:]
	if len(page) > limit {
		page = page[:limit]
	}
	out := make([]event.Event, 0, len(page))
	for _, evt := range page {
		out = append(out, clone(evt))
	}
	return out, nil
}

// ListChatIDs returns chat ids in lexical order.
func (s *Store) ListChatIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.chats))
	for id := range s.chats {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Close marks the store closed. It is safe to call more than once.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func clone(evt event.Event) event.Event {
	evt.PayloadJSON = slices.Clone(evt.PayloadJSON)
	return evt
}
