package event

import "time"

// Type identifies an event variant.
type Type string

const (
	TypeMessageCreated  Type = "message.created"
	TypeMessageEdited   Type = "message.edited"
	TypeMessageDeleted  Type = "message.deleted"
	TypeMessagesDeleted Type = "messages.deleted"
	TypeChapterCreated  Type = "chapter.created"
	TypeChapterEdited   Type = "chapter.edited"
	TypeChapterDeleted  Type = "chapter.deleted"
	TypeStoryCreated    Type = "story.created"
	TypeStoryEdited     Type = "story.edited"
	TypeCivitJobCreated Type = "civit_job.created"
)

// Entity types used for event addressing.
const (
	EntityMessage  = "message"
	EntityChat     = "chat"
	EntityChapter  = "chapter"
	EntityStory    = "story"
	EntityCivitJob = "civit_job"
)

// Event is one entry in a chat's append-only log.
type Event struct {
	ChatID string
	// Seq is assigned by the store and is contiguous per chat, starting at 1.
	Seq         uint64
	ID          string
	Type        Type
	Timestamp   time.Time
	EntityType  string
	EntityID    string
	PayloadJSON []byte
}
