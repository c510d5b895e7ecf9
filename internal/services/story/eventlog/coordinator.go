package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/louisbranch/storyloom/internal/services/story/domain/event"
	"github.com/louisbranch/storyloom/internal/services/story/projection"
	"github.com/louisbranch/storyloom/internal/services/story/storage"
)

const defaultPageSize = 200

var (
	// ErrStoreRequired indicates a missing event store.
	ErrStoreRequired = errors.New("event store is required")
	// ErrChatMismatch indicates an event addressed to another chat.
	ErrChatMismatch = errors.New("event belongs to another chat")
)

// Sealer protects payload bytes at rest. Open must pass through payloads that
// were never sealed.
type Sealer interface {
	Seal(chatID, eventID string, payload []byte) ([]byte, error)
	Open(chatID, eventID string, payload []byte) ([]byte, error)
}

// Options configures coordinators.
type Options struct {
	// Registry validates events before append. Defaults to the chat registry.
	Registry *event.Registry
	// Sealer, when set, seals payloads before they reach the store.
	Sealer Sealer
	// PageSize bounds each replay read. Defaults to 200.
	PageSize int
}

func (o Options) withDefaults() Options {
	if o.Registry == nil {
		o.Registry = event.NewChatRegistry()
	}
	if o.PageSize <= 0 {
		o.PageSize = defaultPageSize
	}
	return o
}

// Coordinator owns the projections of one chat and keeps them in step with
// the durable log.
type Coordinator struct {
	chatID  string
	store   storage.EventStore
	options Options
	tel     instruments

	history *projection.History
	context *projection.Context

	load        singleflight.Group
	initialized atomic.Bool

	// mu serializes applies so projections see events in Seq order.
	// Projection subscribers run while it is held.
	mu      sync.Mutex
	lastSeq atomic.Uint64
}

// NewCoordinator builds an uninitialized coordinator for chatID.
func NewCoordinator(store storage.EventStore, chatID string, options Options) (*Coordinator, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, event.ErrChatIDRequired
	}
	return &Coordinator{
		chatID:  chatID,
		store:   store,
		options: options.withDefaults(),
		tel:     newInstruments(),
		history: projection.NewHistory(),
		context: projection.NewContext(),
	}, nil
}

// ChatID returns the chat this coordinator serves.
func (c *Coordinator) ChatID() string { return c.chatID }

// History returns the Full-History projection.
func (c *Coordinator) History() *projection.History { return c.history }

// Context returns the LLM-Context projection.
func (c *Coordinator) Context() *projection.Context { return c.context }

// Initialized reports whether the stored log has been replayed.
func (c *Coordinator) Initialized() bool { return c.initialized.Load() }

// LastSeq returns the highest Seq handed to the projections. It does not take
// the append lock, so projection subscribers may call it and see the Seq of
// the event they are notified for.
func (c *Coordinator) LastSeq() uint64 { return c.lastSeq.Load() }

// Initialize replays the stored log into both projections. It is idempotent;
// concurrent callers share one in-flight load, which ignores the cancellation
// of whichever caller started it. If reading the store fails, nothing is
// applied and a later call retries.
func (c *Coordinator) Initialize(ctx context.Context) error {
	if c.initialized.Load() {
		return nil
	}
	_, err, _ := c.load.Do("load", func() (any, error) {
		if c.initialized.Load() {
			return nil, nil
		}
		return nil, c.replay(context.WithoutCancel(ctx))
	})
	return err
}

func (c *Coordinator) replay(ctx context.Context) (err error) {
	ctx, span := c.tel.tracer.Start(ctx, "eventlog.Initialize",
		trace.WithAttributes(attribute.String("chat.id", c.chatID)))
	defer func() { endSpan(span, err) }()

	var events []event.Event
	afterSeq := uint64(0)
	for {
		page, err := c.store.ListEvents(ctx, c.chatID, afterSeq, c.options.PageSize)
		if err != nil {
			return fmt.Errorf("load chat %s events: %w", c.chatID, err)
		}
		if len(page) == 0 {
			break
		}
		for _, evt := range page {
			if evt.Seq != afterSeq+1 {
				return fmt.Errorf("load chat %s events: sequence gap: expected %d got %d", c.chatID, afterSeq+1, evt.Seq)
			}
			afterSeq = evt.Seq
		}
		events = append(events, page...)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, evt := range events {
		c.lastSeq.Store(evt.Seq)
		c.applyStored(ctx, evt)
	}
	c.initialized.Store(true)
	span.SetAttributes(attribute.Int("events.count", len(events)))
	return nil
}

// applyStored opens and decodes one stored event and applies it. Events that
// cannot be opened or decoded are logged and skipped.
func (c *Coordinator) applyStored(ctx context.Context, evt event.Event) {
	attrs := metric.WithAttributes(attribute.String("event.type", string(evt.Type)))
	if c.options.Sealer != nil {
		plain, err := c.options.Sealer.Open(evt.ChatID, evt.ID, evt.PayloadJSON)
		if err != nil {
			log.Printf("eventlog: skip chat=%s seq=%d type=%s: open payload: %v", evt.ChatID, evt.Seq, evt.Type, err)
			c.tel.skipped.Add(ctx, 1, attrs)
			return
		}
		evt.PayloadJSON = plain
	}
	payload, err := event.DecodePayload(evt)
	if err != nil {
		log.Printf("eventlog: skip chat=%s seq=%d type=%s: %v", evt.ChatID, evt.Seq, evt.Type, err)
		c.tel.skipped.Add(ctx, 1, attrs)
		return
	}
	c.history.Apply(evt, payload)
	c.context.Apply(evt, payload)
	c.tel.applied.Add(ctx, 1, attrs)
}

// AddChatEvent persists evt and then applies the stored copy to both
// projections, initializing first if needed. A failed write leaves the
// projections untouched. Projection subscribers must not call it for the same
// chat; they run under the append lock. The returned event carries its assigned Seq and the
// unsealed payload.
func (c *Coordinator) AddChatEvent(ctx context.Context, evt event.Event) (stored event.Event, err error) {
	ctx, span := c.tel.tracer.Start(ctx, "eventlog.AddChatEvent", trace.WithAttributes(
		attribute.String("chat.id", c.chatID),
		attribute.String("event.type", string(evt.Type)),
	))
	defer func() { endSpan(span, err) }()
	failed := func(err error) (event.Event, error) {
		c.tel.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", string(evt.Type))))
		return event.Event{}, err
	}

	if err := c.Initialize(ctx); err != nil {
		return failed(err)
	}
	if strings.TrimSpace(evt.ChatID) != c.chatID {
		return failed(fmt.Errorf("%w: %q", ErrChatMismatch, evt.ChatID))
	}
	validated, err := c.options.Registry.ValidateForAppend(evt)
	if err != nil {
		return failed(err)
	}
	plain := validated.PayloadJSON
	if c.options.Sealer != nil {
		sealed, err := c.options.Sealer.Seal(validated.ChatID, validated.ID, plain)
		if err != nil {
			return failed(fmt.Errorf("seal payload: %w", err))
		}
		validated.PayloadJSON = sealed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	stored, err = c.store.AppendEvent(ctx, validated)
	if err != nil {
		return failed(fmt.Errorf("append event: %w", err))
	}
	span.SetAttributes(attribute.Int64("event.seq", int64(stored.Seq)))
	// A duplicate event id comes back with its original Seq; it was applied
	// when first stored.
	if stored.Seq > c.lastSeq.Load() {
		c.lastSeq.Store(stored.Seq)
		c.applyStored(ctx, stored)
	}
	stored.PayloadJSON = plain
	return stored, nil
}

// AddChatEvents appends events in order and stops at the first failure.
func (c *Coordinator) AddChatEvents(ctx context.Context, events ...event.Event) ([]event.Event, error) {
	stored := make([]event.Event, 0, len(events))
	for _, evt := range events {
		s, err := c.AddChatEvent(ctx, evt)
		if err != nil {
			return stored, err
		}
		stored = append(stored, s)
	}
	return stored, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
