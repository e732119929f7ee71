package realtime

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventMessageCreated    EventType = "message.created"
	EventMessageDeleted    EventType = "message.deleted"
	EventMessagesTruncated EventType = "messages.truncated"
	EventThreadUpdated     EventType = "thread.updated"
	EventThreadDeleted     EventType = "thread.deleted"
)

// Event is what subscribers of a thread receive. Data is whatever the
// write produced (a message, a thread, a count); after a trip through
// redis it arrives as decoded JSON.
type Event struct {
	Type     EventType `json:"type"`
	ThreadID uuid.UUID `json:"thread_id"`
	Data     any       `json:"data,omitempty"`
	At       time.Time `json:"at"`
}

func NewEvent(typ EventType, threadID uuid.UUID, data any) Event {
	return Event{Type: typ, ThreadID: threadID, Data: data, At: time.Now().UTC()}
}
