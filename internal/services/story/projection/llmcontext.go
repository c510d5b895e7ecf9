package projection

import (
	"log"
	"slices"
	"sync"

	"github.com/louisbranch/storyloom/internal/services/story/domain/event"
)

// Window is how many covered messages the active chapter keeps visible, and
// how many fresh messages after it retire that buffer.
const Window = 6

// Message is one model-ready context message.
type Message struct {
	Role    event.Role `json:"role"`
	Content string     `json:"content"`
}

type contextEntry struct {
	id       string
	role     event.Role
	content  string
	deleted  bool
	hiddenBy string

	chapter   bool
	title     string
	summary   string
	direction string
	covered   []string
	// index is the position in creation order.
	index int
}

// Context is the language-model projection of a chat. It ignores image
// jobs, pins the story first, and collapses compacted messages behind
// chapter summaries.
type Context struct {
	mu      sync.RWMutex
	entries []*contextEntry
	byID    map[string]*contextEntry
	story   *contextEntry

	subscribers notifier
}

// NewContext returns an empty context projection.
func NewContext() *Context {
	return &Context{byID: make(map[string]*contextEntry)}
}

// Process decodes evt and applies it. Undecodable or unknown events are
// logged and leave the projection unchanged.
func (c *Context) Process(evt event.Event) {
	payload, err := event.DecodePayload(evt)
	if err != nil {
		log.Printf("context: skip chat=%s seq=%d type=%s: %v", evt.ChatID, evt.Seq, evt.Type, err)
		return
	}
	c.Apply(evt, payload)
}

// Apply applies an already decoded event, then notifies subscribers.
func (c *Context) Apply(evt event.Event, payload event.Payload) {
	c.mu.Lock()
	handled := c.apply(payload)
	c.mu.Unlock()
	if !handled {
		log.Printf("context: unhandled payload %T for %s", payload, evt.Type)
		return
	}
	c.subscribers.notify()
}

// Subscribe registers fn to run after every applied event. The returned
// function removes the subscription. fn runs while the owning coordinator
// holds its append lock and must not append to the same chat.
func (c *Context) Subscribe(fn func()) (unsubscribe func()) {
	return c.subscribers.subscribe(fn)
}

func (c *Context) apply(payload event.Payload) bool {
	switch p := payload.(type) {
	case event.MessageCreated:
		c.add(&contextEntry{id: p.MessageID, role: p.Role, content: p.Content})
	case event.MessageEdited:
		if entry := c.byID[p.MessageID]; entry != nil && !entry.chapter && entry != c.story && !entry.deleted {
			entry.content = p.Content
		}
	case event.MessageDeleted:
		c.markDeleted(p.MessageID)
	case event.MessagesDeleted:
		for _, id := range p.MessageIDs {
			c.markDeleted(id)
		}
	case event.ChapterCreated:
		if _, exists := c.byID[p.ChapterID]; exists {
			return true
		}
		for _, id := range p.CoveredMessageIDs {
			if entry := c.byID[id]; entry != nil {
				entry.hiddenBy = p.ChapterID
			}
		}
		c.add(&contextEntry{
			id:        p.ChapterID,
			role:      event.RoleSystem,
			chapter:   true,
			title:     p.Title,
			summary:   p.Summary,
			direction: p.NextDirection,
			covered:   slices.Clone(p.CoveredMessageIDs),
		})
	case event.ChapterEdited:
		entry := c.byID[p.ChapterID]
		if entry == nil || !entry.chapter || entry.deleted {
			return true
		}
		if p.Title != nil {
			entry.title = *p.Title
		}
		if p.Summary != nil {
			entry.summary = *p.Summary
		}
		if p.NextDirection != nil {
			entry.direction = *p.NextDirection
		}
	case event.ChapterDeleted:
		entry := c.byID[p.ChapterID]
		if entry == nil || !entry.chapter || entry.deleted {
			return true
		}
		for _, id := range entry.covered {
			if covered := c.byID[id]; covered != nil && covered.hiddenBy == p.ChapterID {
				covered.hiddenBy = ""
			}
		}
		entry.deleted = true
	case event.StoryCreated:
		if c.story != nil || p.StoryID == "" {
			return true
		}
		if _, exists := c.byID[p.StoryID]; exists {
			return true
		}
		c.story = &contextEntry{id: p.StoryID, role: event.RoleSystem, content: p.Content, index: -1}
		c.byID[p.StoryID] = c.story
	case event.StoryEdited:
		if c.story != nil && c.story.id == p.StoryID {
			c.story.content = p.Content
		}
	case event.CivitJobCreated:
		// Image jobs never reach the model.
	default:
		return false
	}
	return true
}

func (c *Context) add(entry *contextEntry) {
	if entry.id == "" {
		return
	}
	if _, exists := c.byID[entry.id]; exists {
		return
	}
	entry.index = len(c.entries)
	c.entries = append(c.entries, entry)
	c.byID[entry.id] = entry
}

func (c *Context) markDeleted(id string) {
	if entry := c.byID[id]; entry != nil && !entry.chapter && entry != c.story {
		entry.deleted = true
	}
}

func (e *contextEntry) visible() bool {
	return !e.deleted && e.hiddenBy == ""
}

// frame is the compaction state derived from the current entries.
type frame struct {
	visible []*contextEntry
	active  *contextEntry
	// expanded is true while the active chapter still shows its buffer and
	// direction.
	expanded bool
}

func (c *Context) frame() frame {
	var f frame
	for _, entry := range c.entries {
		if entry.visible() {
			f.visible = append(f.visible, entry)
		}
	}
	for i := len(c.entries) - 1; i >= 0; i-- {
		if entry := c.entries[i]; entry.chapter && !entry.deleted {
			f.active = entry
			break
		}
	}
	if f.active == nil || !f.active.visible() {
		return f
	}
	since := 0
	for _, entry := range f.visible {
		if entry.index > f.active.index {
			since++
		}
	}
	f.expanded = since < Window
	return f
}

// buffer resolves the last Window covered ids of chapter to their current
// content. Deleted, unknown, and already visible entries are dropped.
func (c *Context) buffer(chapter *contextEntry) []Message {
	ids := chapter.covered
	if len(ids) > Window {
		ids = ids[len(ids)-Window:]
	}
	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		entry := c.byID[id]
		if entry == nil || entry.deleted || entry.visible() || entry.chapter {
			continue
		}
		out = append(out, Message{Role: entry.role, Content: entry.content})
	}
	return out
}

// Messages returns the model-ready sequence: the story first, then visible
// entries in creation order. While the active chapter has fewer than Window
// visible entries after it, its last covered messages are spliced in right
// before it and it renders with its direction. Every other chapter renders
// as a plain summary.
func (c *Context) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f := c.frame()
	out := make([]Message, 0, len(f.visible)+Window+1)
	if c.story != nil && c.story.content != "" {
		out = append(out, Message{Role: event.RoleSystem, Content: c.story.content})
	}
	for _, entry := range f.visible {
		if !entry.chapter {
			out = append(out, Message{Role: entry.role, Content: entry.content})
			continue
		}
		if f.expanded && entry == f.active {
			out = append(out, c.buffer(entry)...)
			out = append(out, Message{Role: event.RoleSystem, Content: renderChapterFull(entry)})
			continue
		}
		out = append(out, Message{Role: event.RoleSystem, Content: renderChapterSimplified(entry)})
	}
	return out
}

// Message returns a single entry as a model message. Deleted entries are not
// exposed. Chapters render the same way Messages renders them.
func (c *Context) Message(id string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry := c.byID[id]
	if entry == nil || entry.deleted {
		return Message{}, false
	}
	if !entry.chapter {
		return Message{Role: entry.role, Content: entry.content}, true
	}
	f := c.frame()
	if f.expanded && entry == f.active {
		return Message{Role: event.RoleSystem, Content: renderChapterFull(entry)}, true
	}
	return Message{Role: event.RoleSystem, Content: renderChapterSimplified(entry)}, true
}

// ActiveChapterID returns the id of the most recent non-deleted chapter.
func (c *Context) ActiveChapterID() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f := c.frame()
	if f.active == nil {
		return "", false
	}
	return f.active.id, true
}
