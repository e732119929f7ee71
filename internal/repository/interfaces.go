package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/lalith-99/threadline/internal/models"
)

// Every method takes ctx first: the HTTP request's context flows down to
// the query, so a disconnected client cancels its in-flight SQL.
//
// Single-entity lookups return nil, nil when the row doesn't exist.
// Absence is routine (a brand new conversation has no thread yet), so it is
// a value, not an error.

var (
	// ErrUserNotFound is returned where a user is a hard precondition:
	// prompt context can't be assembled without the user's preferences.
	ErrUserNotFound = errors.New("user not found")

	// ErrConflict wraps unique violations, e.g. inserting a duplicate id.
	ErrConflict = errors.New("conflict")

	// ErrReferenceMissing wraps foreign key violations, e.g. a thread
	// pointing at a project that doesn't exist.
	ErrReferenceMissing = errors.New("referenced row does not exist")
)

// ThreadRepository defines the contract for chat thread operations.
type ThreadRepository interface {
	// Create inserts a thread and returns it with CreatedAt populated.
	// A duplicate id fails with ErrConflict.
	Create(ctx context.Context, thread models.NewThread) (*models.ChatThread, error)

	// Upsert inserts the thread, or on id conflict updates only its title.
	// It returns nil, nil when the existing row belongs to another user.
	Upsert(ctx context.Context, thread models.NewThread) (*models.ChatThread, error)

	GetByID(ctx context.Context, id uuid.UUID) (*models.ChatThread, error)

	// GetDetails joins the thread with its project instructions, its
	// owner's preferences and its messages. Missing project or user
	// degrade to nil fields rather than an error.
	GetDetails(ctx context.Context, id uuid.UUID) (*models.ThreadDetails, error)

	// GetInstructions resolves prompt context through an optional thread.
	// Fails with ErrUserNotFound if userID doesn't resolve.
	GetInstructions(ctx context.Context, userID uuid.UUID, threadID *uuid.UUID) (*models.ThreadInstructions, error)

	// GetInstructionsByProject resolves prompt context for a thread that is
	// about to be created in a project. Fails with ErrUserNotFound.
	GetInstructionsByProject(ctx context.Context, userID uuid.UUID, projectID *uuid.UUID) (*models.ThreadInstructions, error)

	// ListByUser returns the user's threads, most recently active first.
	// Threads without messages sort last.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.ThreadSummary, error)

	// Update changes title and/or project association. Returns nil, nil
	// if the thread doesn't exist.
	Update(ctx context.Context, id uuid.UUID, update models.ThreadUpdate) (*models.ChatThread, error)

	// Delete removes the thread and its messages.
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteNonProject removes every thread of the user that has no project.
	DeleteNonProject(ctx context.Context, userID uuid.UUID) (int64, error)

	// DeleteAll removes every thread of the user.
	DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error)
}

// MessageRepository handles chat message persistence.
type MessageRepository interface {
	// Create inserts a message. CreatedAt is assigned by the database
	// unless the caller set it.
	Create(ctx context.Context, msg models.ChatMessage) (*models.ChatMessage, error)

	// Upsert inserts the message, or on id conflict overwrites parts,
	// annotations, attachments and model. Thread and role never change.
	Upsert(ctx context.Context, msg models.ChatMessage) (*models.ChatMessage, error)

	// CreateBatch inserts several messages atomically, in order.
	CreateBatch(ctx context.Context, msgs []models.ChatMessage) ([]models.ChatMessage, error)

	// ListByThread returns the thread's messages in replay order.
	// Returns empty slice (not nil) so JSON serializes to [] not null.
	ListByThread(ctx context.Context, threadID uuid.UUID) ([]models.ChatMessage, error)

	GetByID(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error)

	// Delete removes exactly one message. No-op if it doesn't exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteAtAndAfter removes the message and every message of the same
	// thread whose timestamp is >= its timestamp. No-op if it doesn't exist.
	DeleteAtAndAfter(ctx context.Context, messageID uuid.UUID) (int64, error)
}

// ProjectRepository handles projects and their cascades.
type ProjectRepository interface {
	Create(ctx context.Context, project models.NewProject) (*models.Project, error)

	// GetByID returns the project with all its threads. Returns nil, nil
	// if not found.
	GetByID(ctx context.Context, id uuid.UUID) (*models.ProjectWithThreads, error)

	// ListByUser returns the user's projects without instructions, most
	// recent thread activity first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.ProjectSummary, error)

	// Update changes name and/or instructions. Returns nil, nil if the
	// project doesn't exist.
	Update(ctx context.Context, id uuid.UUID, update models.ProjectUpdate) (*models.Project, error)

	// Delete removes the project, its threads and their messages.
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserRepository handles user data.
type UserRepository interface {
	Create(ctx context.Context, name, email, passwordHash string) (*models.User, error)

	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail is used for login. Returns nil, nil if not registered.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	UpdatePreferences(ctx context.Context, id uuid.UUID, prefs models.UserPreferences) (*models.User, error)
}
