package projection

import (
	"log"
	"slices"
	"sync"
	"time"

	"github.com/louisbranch/storyloom/internal/services/story/domain/event"
)

// EntryKind tags what produced a history entry.
type EntryKind string

const (
	KindMessage  EntryKind = "message"
	KindChapter  EntryKind = "chapter"
	KindStory    EntryKind = "story"
	KindCivitJob EntryKind = "civit-job"
)

// EntryType is the display type of a history entry.
type EntryType string

const (
	TypeUserMessage   EntryType = "user-message"
	TypeAssistant     EntryType = "assistant"
	TypeSystemMessage EntryType = "system-message"
	TypeChapter       EntryType = "chapter"
	TypeStory         EntryType = "story"
	TypeCivitJob      EntryType = "civit-job"
)

// ChapterData is the chapter-specific part of an entry.
type ChapterData struct {
	Title             string   `json:"title"`
	Summary           string   `json:"summary"`
	NextDirection     string   `json:"next_direction,omitempty"`
	CoveredMessageIDs []string `json:"covered_message_ids"`
}

// CivitJobData is the opaque image job reference of an entry.
type CivitJobData struct {
	JobID  string `json:"job_id"`
	Prompt string `json:"prompt"`
}

// Entry is one item of the full chat history.
type Entry struct {
	ID       string        `json:"id"`
	Kind     EntryKind     `json:"kind"`
	Type     EntryType     `json:"type"`
	Role     event.Role    `json:"role"`
	Content  string        `json:"content"`
	Deleted  bool          `json:"deleted"`
	HiddenBy string        `json:"hidden_by,omitempty"`
	Chapter  *ChapterData  `json:"chapter,omitempty"`
	CivitJob *CivitJobData `json:"civit_job,omitempty"`
	// Seq and CreatedAt come from the creating event.
	Seq       uint64    `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// Visible reports whether the entry shows up in the visible list.
func (e Entry) Visible() bool {
	return !e.Deleted && e.HiddenBy == ""
}

func (e Entry) clone() Entry {
	if e.Chapter != nil {
		chapter := *e.Chapter
		chapter.CoveredMessageIDs = slices.Clone(e.Chapter.CoveredMessageIDs)
		e.Chapter = &chapter
	}
	if e.CivitJob != nil {
		job := *e.CivitJob
		e.CivitJob = &job
	}
	return e
}

// History is the full-fidelity projection of a chat.
type History struct {
	mu      sync.RWMutex
	entries []*Entry
	byID    map[string]*Entry
	story   *Entry

	subscribers notifier
}

// NewHistory returns an empty history projection.
func NewHistory() *History {
	return &History{byID: make(map[string]*Entry)}
}

// Process decodes evt and applies it. Undecodable or unknown events are
// logged and leave the projection unchanged.
func (h *History) Process(evt event.Event) {
	payload, err := event.DecodePayload(evt)
	if err != nil {
		log.Printf("history: skip chat=%s seq=%d type=%s: %v", evt.ChatID, evt.Seq, evt.Type, err)
		return
	}
	h.Apply(evt, payload)
}

// Apply applies an already decoded event, then notifies subscribers.
func (h *History) Apply(evt event.Event, payload event.Payload) {
	h.mu.Lock()
	handled := h.apply(evt, payload)
	h.mu.Unlock()
	if !handled {
		log.Printf("history: unhandled payload %T for %s", payload, evt.Type)
		return
	}
	h.subscribers.notify()
}

// Subscribe registers fn to run after every applied event. The returned
// function removes the subscription. fn runs while the owning coordinator
// holds its append lock and must not append to the same chat.
func (h *History) Subscribe(fn func()) (unsubscribe func()) {
	return h.subscribers.subscribe(fn)
}

func (h *History) apply(evt event.Event, payload event.Payload) bool {
	switch p := payload.(type) {
	case event.MessageCreated:
		h.add(&Entry{
			ID:      p.MessageID,
			Kind:    KindMessage,
			Type:    messageType(p.Role),
			Role:    p.Role,
			Content: p.Content,
		}, evt)
	case event.MessageEdited:
		if entry := h.byID[p.MessageID]; entry != nil && entry.Kind == KindMessage && !entry.Deleted {
			entry.Content = p.Content
		}
	case event.MessageDeleted:
		h.markDeleted(p.MessageID)
	case event.MessagesDeleted:
		for _, id := range p.MessageIDs {
			h.markDeleted(id)
		}
	case event.ChapterCreated:
		if _, exists := h.byID[p.ChapterID]; exists {
			return true
		}
		for _, id := range p.CoveredMessageIDs {
			if entry := h.byID[id]; entry != nil {
				entry.HiddenBy = p.ChapterID
			}
		}
		h.add(&Entry{
			ID:      p.ChapterID,
			Kind:    KindChapter,
			Type:    TypeChapter,
			Role:    event.RoleSystem,
			Content: p.Summary,
			Chapter: &ChapterData{
				Title:             p.Title,
				Summary:           p.Summary,
				NextDirection:     p.NextDirection,
				CoveredMessageIDs: slices.Clone(p.CoveredMessageIDs),
			},
		}, evt)
	case event.ChapterEdited:
		entry := h.byID[p.ChapterID]
		if entry == nil || entry.Deleted || entry.Chapter == nil {
			return true
		}
		if p.Title != nil {
			entry.Chapter.Title = *p.Title
		}
		if p.Summary != nil {
			entry.Chapter.Summary = *p.Summary
			entry.Content = *p.Summary
		}
		if p.NextDirection != nil {
			entry.Chapter.NextDirection = *p.NextDirection
		}
	case event.ChapterDeleted:
		entry := h.byID[p.ChapterID]
		if entry == nil || entry.Deleted || entry.Chapter == nil {
			return true
		}
		for _, id := range entry.Chapter.CoveredMessageIDs {
			if covered := h.byID[id]; covered != nil && covered.HiddenBy == p.ChapterID {
				covered.HiddenBy = ""
			}
		}
		entry.Deleted = true
	case event.StoryCreated:
		if h.story != nil {
			return true
		}
		story := &Entry{
			ID:      p.StoryID,
			Kind:    KindStory,
			Type:    TypeStory,
			Role:    event.RoleSystem,
			Content: p.Content,
		}
		if h.add(story, evt) {
			h.story = story
		}
	case event.StoryEdited:
		if h.story != nil && h.story.ID == p.StoryID {
			h.story.Content = p.Content
		}
	case event.CivitJobCreated:
		h.add(&Entry{
			ID:       p.JobID,
			Kind:     KindCivitJob,
			Type:     TypeCivitJob,
			Role:     event.RoleSystem,
			Content:  p.Prompt,
			CivitJob: &CivitJobData{JobID: p.JobID, Prompt: p.Prompt},
		}, evt)
	default:
		return false
	}
	return true
}

// add appends entry unless its id is taken; the first creation wins.
func (h *History) add(entry *Entry, evt event.Event) bool {
	if entry.ID == "" {
		return false
	}
	if _, exists := h.byID[entry.ID]; exists {
		return false
	}
	entry.Seq = evt.Seq
	entry.CreatedAt = evt.Timestamp
	h.entries = append(h.entries, entry)
	h.byID[entry.ID] = entry
	return true
}

// markDeleted soft-deletes messages and image jobs. Chapters only go away
// through ChapterDeleted so their coverage is restored.
func (h *History) markDeleted(id string) {
	if entry := h.byID[id]; entry != nil && (entry.Kind == KindMessage || entry.Kind == KindCivitJob) {
		entry.Deleted = true
	}
}

// Messages returns visible entries in creation order.
func (h *History) Messages() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Entry, 0, len(h.entries))
	for _, entry := range h.entries {
		if entry.Visible() {
			out = append(out, entry.clone())
		}
	}
	return out
}

// Message returns the entry with id whatever its deleted or hidden state.
func (h *History) Message(id string) (Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entry := h.byID[id]
	if entry == nil {
		return Entry{}, false
	}
	return entry.clone(), true
}

// ChapterMessages returns the entries a chapter covers in stored order,
// including ones deleted since. Unknown ids are skipped.
func (h *History) ChapterMessages(chapterID string) []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	chapter := h.byID[chapterID]
	if chapter == nil || chapter.Chapter == nil {
		return nil
	}
	out := make([]Entry, 0, len(chapter.Chapter.CoveredMessageIDs))
	for _, id := range chapter.Chapter.CoveredMessageIDs {
		if entry := h.byID[id]; entry != nil {
			out = append(out, entry.clone())
		}
	}
	return out
}

// Story returns the story entry if one was created.
func (h *History) Story() (Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.story == nil {
		return Entry{}, false
	}
	return h.story.clone(), true
}

// Len returns the number of entries ever created.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

func messageType(role event.Role) EntryType {
	switch role {
	case event.RoleAssistant:
		return TypeAssistant
	case event.RoleSystem:
		return TypeSystemMessage
	default:
		return TypeUserMessage
	}
}
