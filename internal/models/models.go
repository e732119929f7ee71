package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User is owned by the auth layer. The chat store only reads it for
// preferences and identity when assembling prompt context.
type User struct {
	ID           uuid.UUID        `json:"id"`
	Name         string           `json:"name"`
	Email        string           `json:"email"`
	PasswordHash string           `json:"-"`
	Preferences  *UserPreferences `json:"preferences,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// UserPreferences is stored as jsonb on the users row. The JSON keys are
// camelCase because the same document is read by the web client.
type UserPreferences struct {
	DisplayName          string `json:"displayName,omitempty"`
	BotName              string `json:"botName,omitempty"`
	Profession           string `json:"profession,omitempty"`
	ResponseStyleExample string `json:"responseStyleExample,omitempty"`
}

// ProjectInstructions is the project-level system prompt, stored as jsonb.
type ProjectInstructions struct {
	SystemPrompt string `json:"systemPrompt"`
}

// Project groups threads that share custom instructions.
type Project struct {
	ID           uuid.UUID           `json:"id"`
	Name         string              `json:"name"`
	UserID       uuid.UUID           `json:"user_id"`
	Instructions ProjectInstructions `json:"instructions"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// NewProject carries the caller-supplied fields of a project.
type NewProject struct {
	Name         string
	UserID       uuid.UUID
	Instructions ProjectInstructions
}

// ProjectUpdate is a partial update. Nil fields are left untouched.
type ProjectUpdate struct {
	Name         *string
	Instructions *ProjectInstructions
}

// ProjectWithThreads is a project plus every thread that references it.
type ProjectWithThreads struct {
	Project
	Threads []ChatThread `json:"threads"`
}

// ProjectSummary is the list view of a project. Instructions are left out
// since they can be large and list views never show them.
type ProjectSummary struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	UserID       uuid.UUID `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastThreadAt time.Time `json:"last_thread_at"`
}

// ChatThread is a single conversation. ProjectID is nil for threads that
// don't belong to a project, which is the common case.
type ChatThread struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	UserID    uuid.UUID  `json:"user_id"`
	ProjectID *uuid.UUID `json:"project_id"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewThread is a thread before the database has assigned CreatedAt.
type NewThread struct {
	ID        uuid.UUID
	Title     string
	UserID    uuid.UUID
	ProjectID *uuid.UUID
}

// ThreadUpdate only reaches the mutable fields of a thread.
// DetachProject wins over ProjectID.
type ThreadUpdate struct {
	Title         *string
	ProjectID     *uuid.UUID
	DetachProject bool
}

// ThreadSummary is a thread annotated with the time of its newest message,
// in milliseconds since the epoch. Zero means the thread has no messages.
type ThreadSummary struct {
	ChatThread
	LastMessageAt int64 `json:"last_message_at"`
}

// ThreadDetails is a thread joined with its project instructions, its
// owner's preferences and its full message history in replay order.
type ThreadDetails struct {
	ChatThread
	Instructions    *ProjectInstructions `json:"instructions"`
	UserPreferences *UserPreferences     `json:"user_preferences,omitempty"`
	Messages        []ChatMessage        `json:"messages"`
}

// ThreadInstructions is the prompt context that applies to a thread, or to
// a thread that is about to be created inside a project.
type ThreadInstructions struct {
	Instructions    *ProjectInstructions `json:"instructions"`
	UserPreferences *UserPreferences     `json:"user_preferences,omitempty"`
	ThreadID        *uuid.UUID           `json:"thread_id,omitempty"`
	ProjectID       *uuid.UUID           `json:"project_id,omitempty"`
}

// Role is who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleData      Role = "data"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleData:
		return true
	}
	return false
}

// ChatMessage is one turn in a thread. Parts and Attachments are kept as raw
// JSON: their shape belongs to the client SDK, and the store only inspects
// parts that carry a mention.
type ChatMessage struct {
	ID          uuid.UUID         `json:"id"`
	ThreadID    uuid.UUID         `json:"thread_id"`
	Role        Role              `json:"role"`
	Parts       []json.RawMessage `json:"parts"`
	Annotations []Annotation      `json:"annotations,omitempty"`
	Attachments []json.RawMessage `json:"attachments,omitempty"`
	Model       *string           `json:"model"`
	CreatedAt   time.Time         `json:"created_at"`
}
