package event

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrChatIDRequired indicates a missing chat id.
	ErrChatIDRequired = errors.New("chat id is required")
	// ErrIDRequired indicates a missing event id.
	ErrIDRequired = errors.New("event id is required")
	// ErrTypeRequired indicates a missing event type.
	ErrTypeRequired = errors.New("event type is required")
	// ErrTypeUnregistered indicates a type the registry does not know.
	ErrTypeUnregistered = errors.New("event type is not registered")
	// ErrEntityTypeMismatch indicates the envelope addresses the wrong entity kind.
	ErrEntityTypeMismatch = errors.New("entity type does not match event definition")
	// ErrEntityIDRequired indicates a missing entity id.
	ErrEntityIDRequired = errors.New("entity id is required")
	// ErrTimestampRequired indicates a zero timestamp.
	ErrTimestampRequired = errors.New("timestamp is required")
	// ErrPayloadInvalid indicates a payload that does not decode.
	ErrPayloadInvalid = errors.New("payload json must be valid")
)

// Definition registers metadata for an event type.
type Definition struct {
	Type       Type
	EntityType string
}

// Registry stores event definitions and validates events before append.
type Registry struct {
	definitions map[Type]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[Type]Definition)}
}

// NewChatRegistry returns a registry holding every chat event type.
func NewChatRegistry() *Registry {
	registry := NewRegistry()
	for _, def := range []Definition{
		{Type: TypeMessageCreated, EntityType: EntityMessage},
		{Type: TypeMessageEdited, EntityType: EntityMessage},
		{Type: TypeMessageDeleted, EntityType: EntityMessage},
		{Type: TypeMessagesDeleted, EntityType: EntityChat},
		{Type: TypeChapterCreated, EntityType: EntityChapter},
		{Type: TypeChapterEdited, EntityType: EntityChapter},
		{Type: TypeChapterDeleted, EntityType: EntityChapter},
		{Type: TypeStoryCreated, EntityType: EntityStory},
		{Type: TypeStoryEdited, EntityType: EntityStory},
		{Type: TypeCivitJobCreated, EntityType: EntityCivitJob},
	} {
		if err := registry.Register(def); err != nil {
			panic(err)
		}
	}
	return registry
}

// Register adds a definition. Types may only be registered once.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return errors.New("registry is required")
	}
	def.Type = Type(strings.TrimSpace(string(def.Type)))
	if def.Type == "" {
		return ErrTypeRequired
	}
	if strings.TrimSpace(def.EntityType) == "" {
		return fmt.Errorf("entity type is required for %s", def.Type)
	}
	if r.definitions == nil {
		r.definitions = make(map[Type]Definition)
	}
	if _, exists := r.definitions[def.Type]; exists {
		return fmt.Errorf("event type already registered: %s", def.Type)
	}
	r.definitions[def.Type] = def
	return nil
}

// Definition returns the definition for t.
func (r *Registry) Definition(t Type) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	def, ok := r.definitions[t]
	return def, ok
}

// ListDefinitions returns all definitions sorted by type.
func (r *Registry) ListDefinitions() []Definition {
	if r == nil {
		return nil
	}
	defs := make([]Definition, 0, len(r.definitions))
	for _, def := range r.definitions {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Type < defs[j].Type })
	return defs
}

// ValidateForAppend checks the envelope and payload of an event about to be
// stored. It returns the event with trimmed identifiers and a UTC timestamp.
func (r *Registry) ValidateForAppend(evt Event) (Event, error) {
	if r == nil {
		return Event{}, errors.New("registry is required")
	}
	evt.ChatID = strings.TrimSpace(evt.ChatID)
	if evt.ChatID == "" {
		return Event{}, ErrChatIDRequired
	}
	evt.ID = strings.TrimSpace(evt.ID)
	if evt.ID == "" {
		return Event{}, ErrIDRequired
	}
	evt.Type = Type(strings.TrimSpace(string(evt.Type)))
	if evt.Type == "" {
		return Event{}, ErrTypeRequired
	}
	def, ok := r.definitions[evt.Type]
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrTypeUnregistered, evt.Type)
	}
	if evt.EntityType != def.EntityType {
		return Event{}, fmt.Errorf("%w: %s wants %s, got %q", ErrEntityTypeMismatch, evt.Type, def.EntityType, evt.EntityType)
	}
	evt.EntityID = strings.TrimSpace(evt.EntityID)
	if evt.EntityID == "" {
		return Event{}, ErrEntityIDRequired
	}
	if evt.Timestamp.IsZero() {
		return Event{}, ErrTimestampRequired
	}
	evt.Timestamp = evt.Timestamp.UTC()
	if _, err := DecodePayload(evt); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	return evt, nil
}

// truncateTimestamp matches the millisecond precision stores keep.
func truncateTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
