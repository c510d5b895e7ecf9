package eventlog

import (
	"slices"
	"strings"
	"sync"

	"github.com/louisbranch/storyloom/internal/services/story/domain/event"
	"github.com/louisbranch/storyloom/internal/services/story/storage"
)

// Registry owns one Coordinator per chat id. Coordinators are created on
// first use and live until dropped.
type Registry struct {
	store   storage.EventStore
	options Options

	mu           sync.Mutex
	coordinators map[string]*Coordinator
}

// NewRegistry builds a registry whose coordinators share store and options.
func NewRegistry(store storage.EventStore, options Options) (*Registry, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	return &Registry{
		store:        store,
		options:      options.withDefaults(),
		coordinators: make(map[string]*Coordinator),
	}, nil
}

// Get returns the coordinator for chatID, creating it if needed. The
// coordinator may not be initialized yet.
func (r *Registry) Get(chatID string) (*Coordinator, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, event.ErrChatIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.coordinators[chatID]; ok {
		return c, nil
	}
	c, err := NewCoordinator(r.store, chatID, r.options)
	if err != nil {
		return nil, err
	}
	r.coordinators[chatID] = c
	return c, nil
}

// Drop forgets the coordinator for chatID. The next Get replays from the
// store. It reports whether a coordinator was held.
func (r *Registry) Drop(chatID string) bool {
	chatID = strings.TrimSpace(chatID)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.coordinators[chatID]
	delete(r.coordinators, chatID)
	return ok
}

// Open lists the chat ids that currently hold a coordinator.
func (r *Registry) Open() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.coordinators))
	for id := range r.coordinators {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
