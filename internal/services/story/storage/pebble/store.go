// Package pebble implements the chat event store on a Pebble LSM database.
//
// Key layout:
//
//	s\x00<chat>                 -> last assigned seq (8 bytes, big endian)
//	e\x00<chat>\x00<seq>        -> CBOR event record
//	i\x00<chat>\x00<event id>   -> seq of that event
package pebble

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/louisbranch/storyloom/internal/services/story/domain/encoding"
	"github.com/louisbranch/storyloom/internal/services/story/domain/event"
	"github.com/louisbranch/storyloom/internal/services/story/storage"
)

const (
	prefixSeq   = 's'
	prefixEvent = 'e'
	prefixID    = 'i'
	sep         = 0x00
)

type record struct {
	ID         string `cbor:"id"`
	Type       string `cbor:"type"`
	Timestamp  int64  `cbor:"ts"`
	EntityType string `cbor:"entity_type"`
	EntityID   string `cbor:"entity_id"`
	Payload    []byte `cbor:"payload"`
}

// Store is a Pebble-backed chat event store.
type Store struct {
	db *pebble.DB
	// appendMu serializes seq allocation; Pebble batches are atomic but not
	// read-modify-write transactions.
	appendMu sync.Mutex
}

// Open opens (creating if needed) the store in dir.
func Open(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database. It is nil-safe.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendEvent stores evt under the next seq of its chat in one batch.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.db == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}
	evt, err := storage.ValidateEnvelope(evt)
	if err != nil {
		return event.Event{}, err
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	if seq, ok, err := s.getUint64(idKey(evt.ChatID, evt.ID)); err != nil {
		return event.Event{}, fmt.Errorf("lookup event id: %w", err)
	} else if ok {
		return s.getEvent(evt.ChatID, seq)
	}

	last, _, err := s.getUint64(seqKey(evt.ChatID))
	if err != nil {
		return event.Event{}, fmt.Errorf("get event seq: %w", err)
	}
	evt.Seq = last + 1

	value, err := encoding.Canonical(record{
		ID:         evt.ID,
		Type:       string(evt.Type),
		Timestamp:  evt.Timestamp.UnixMilli(),
		EntityType: evt.EntityType,
		EntityID:   evt.EntityID,
		Payload:    evt.PayloadJSON,
	})
	if err != nil {
		return event.Event{}, fmt.Errorf("encode event: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(eventKey(evt.ChatID, evt.Seq), value, nil); err != nil {
		return event.Event{}, fmt.Errorf("stage event: %w", err)
	}
	if err := batch.Set(idKey(evt.ChatID, evt.ID), be64(evt.Seq), nil); err != nil {
		return event.Event{}, fmt.Errorf("stage event id: %w", err)
	}
	if err := batch.Set(seqKey(evt.ChatID), be64(evt.Seq), nil); err != nil {
		return event.Event{}, fmt.Errorf("stage event seq: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return event.Event{}, fmt.Errorf("commit: %w", err)
	}
	return evt, nil
}

// ListEvents returns a page of events after afterSeq in sequence order.
func (s *Store) ListEvents(ctx context.Context, chatID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	limit = storage.NormalizeLimit(limit)

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: eventKey(chatID, afterSeq+1),
		UpperBound: eventUpperBound(chatID),
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer iter.Close()

	var events []event.Event
	for ok := iter.First(); ok && len(events) < limit; ok = iter.Next() {
		key := iter.Key()
		seq := binary.BigEndian.Uint64(key[len(key)-8:])
		evt, err := decodeEvent(chatID, seq, iter.Value())
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// ListChatIDs returns every chat with at least one event, in lexical order.
func (s *Store) ListChatIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefixSeq, sep},
		UpperBound: []byte{prefixSeq, sep + 1},
	})
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer iter.Close()

	var ids []string
	for ok := iter.First(); ok; ok = iter.Next() {
		ids = append(ids, string(iter.Key()[2:]))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return ids, nil
}

func (s *Store) getEvent(chatID string, seq uint64) (event.Event, error) {
	value, closer, err := s.db.Get(eventKey(chatID, seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return event.Event{}, storage.ErrNotFound
	}
	if err != nil {
		return event.Event{}, fmt.Errorf("get event: %w", err)
	}
	defer closer.Close()
	return decodeEvent(chatID, seq, value)
}

func (s *Store) getUint64(key []byte) (uint64, bool, error) {
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	defer closer.Close()
	if len(value) != 8 {
		return 0, false, fmt.Errorf("corrupt counter at %q", key)
	}
	return binary.BigEndian.Uint64(value), true, nil
}

// decodeEvent copies everything out of value, which Pebble may reuse.
func decodeEvent(chatID string, seq uint64, value []byte) (event.Event, error) {
	var rec record
	if err := encoding.Decode(bytes.Clone(value), &rec); err != nil {
		return event.Event{}, fmt.Errorf("decode event %s/%d: %w", chatID, seq, err)
	}
	return event.Event{
		ChatID:      chatID,
		Seq:         seq,
		ID:          rec.ID,
		Type:        event.Type(rec.Type),
		Timestamp:   time.UnixMilli(rec.Timestamp).UTC(),
		EntityType:  rec.EntityType,
		EntityID:    rec.EntityID,
		PayloadJSON: rec.Payload,
	}, nil
}

func seqKey(chatID string) []byte {
	return append([]byte{prefixSeq, sep}, chatID...)
}

func chatPrefix(prefix byte, chatID string) []byte {
	key := make([]byte, 0, len(chatID)+3+8)
	key = append(key, prefix, sep)
	key = append(key, chatID...)
	return append(key, sep)
}

func eventKey(chatID string, seq uint64) []byte {
	return append(chatPrefix(prefixEvent, chatID), be64(seq)...)
}

func eventUpperBound(chatID string) []byte {
	key := chatPrefix(prefixEvent, chatID)
	key[len(key)-1] = sep + 1
	return key
}

func idKey(chatID, eventID string) []byte {
	return append(chatPrefix(prefixID, chatID), eventID...)
}

func be64(v uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return out
}
