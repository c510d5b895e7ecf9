package projection

import (
	"fmt"
	"testing"
	"time"

	"github.com/louisbranch/storyloom/internal/services/story/domain/event"
)

// chatLog builds a deterministic event sequence for one chat.
type chatLog struct {
	t      *testing.T
	chatID string
	seq    uint64
	events []event.Event
}

func newChatLog(t *testing.T) *chatLog {
	t.Helper()
	return &chatLog{t: t, chatID: "chat-1"}
}

func (l *chatLog) now() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(l.seq) * time.Second)
}

func (l *chatLog) push(evt event.Event, err error) event.Event {
	l.t.Helper()
	if err != nil {
		l.t.Fatalf("build event: %v", err)
	}
	l.seq++
	evt.Seq = l.seq
	l.events = append(l.events, evt)
	return evt
}

func (l *chatLog) message(id string, role event.Role, content string) {
	l.t.Helper()
	l.push(event.BuildMessageCreated(l.chatID, id, role, content, l.now()))
}

// messages adds n alternating user/assistant messages named prefix1..prefixN.
func (l *chatLog) messages(prefix string, n int) []string {
	l.t.Helper()
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		role := event.RoleUser
		if i%2 == 0 {
			role = event.RoleAssistant
		}
		id := fmt.Sprintf("%s%d", prefix, i)
		l.message(id, role, "content "+id)
		ids = append(ids, id)
	}
	return ids
}

func (l *chatLog) edit(id, content string) {
	l.t.Helper()
	l.push(event.BuildMessageEdited(l.chatID, id, content, l.now()))
}

func (l *chatLog) delete(id string) {
	l.t.Helper()
	l.push(event.BuildMessageDeleted(l.chatID, id, l.now()))
}

func (l *chatLog) deleteMany(ids ...string) {
	l.t.Helper()
	l.push(event.BuildMessagesDeleted(l.chatID, ids, l.now()))
}

func (l *chatLog) chapter(id, title, summary, direction string, covered ...string) {
	l.t.Helper()
	l.push(event.BuildChapterCreated(l.chatID, id, event.ChapterInput{
		Title:         title,
		Summary:       summary,
		NextDirection: direction,
	}, covered, l.now()))
}

func (l *chatLog) editChapter(id string, patch event.ChapterPatch) {
	l.t.Helper()
	l.push(event.BuildChapterEdited(l.chatID, id, patch, l.now()))
}

func (l *chatLog) deleteChapter(id string) {
	l.t.Helper()
	l.push(event.BuildChapterDeleted(l.chatID, id, l.now()))
}

func (l *chatLog) story(id, content string) {
	l.t.Helper()
	l.push(event.BuildStoryCreated(l.chatID, id, content, l.now()))
}

func (l *chatLog) editStory(id, content string) {
	l.t.Helper()
	l.push(event.BuildStoryEdited(l.chatID, id, content, l.now()))
}

func (l *chatLog) civitJob(jobID, prompt string) {
	l.t.Helper()
	l.push(event.BuildCivitJobCreated(l.chatID, jobID, prompt, l.now()))
}

func (l *chatLog) history() *History {
	h := NewHistory()
	for _, evt := range l.events {
		h.Process(evt)
	}
	return h
}

func (l *chatLog) context() *Context {
	c := NewContext()
	for _, evt := range l.events {
		c.Process(evt)
	}
	return c
}

func entryIDs(entries []Entry) []string {
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID)
	}
	return ids
}

func contents(messages []Message) []string {
	out := make([]string, 0, len(messages))
	for _, msg := range messages {
		out = append(out, msg.Content)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
