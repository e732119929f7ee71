package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/threadline/internal/middleware"
	"github.com/lalith-99/threadline/internal/models"
	"github.com/lalith-99/threadline/internal/repository"
	"go.uber.org/zap"
)

// Rows owned by someone else are reported exactly like missing rows, so
// ids can't be probed across accounts.

// ownedThread loads the thread and answers 404 unless the caller owns it.
func ownedThread(c *gin.Context, threads repository.ThreadRepository, logger *zap.Logger, id uuid.UUID) (*models.ChatThread, bool) {
	th, err := threads.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, logger, "get thread", err)
		return nil, false
	}
	if th == nil || th.UserID != middleware.GetUserID(c) {
		notFound(c, "thread")
		return nil, false
	}
	return th, true
}

// ownedProject loads the project with its threads and answers 404 unless
// the caller owns it.
func ownedProject(c *gin.Context, projects repository.ProjectRepository, logger *zap.Logger, id uuid.UUID) (*models.ProjectWithThreads, bool) {
	p, err := projects.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, logger, "get project", err)
		return nil, false
	}
	if p == nil || p.UserID != middleware.GetUserID(c) {
		notFound(c, "project")
		return nil, false
	}
	return p, true
}

// ownedMessage resolves a message and the thread it belongs to.
func ownedMessage(c *gin.Context, messages repository.MessageRepository, threads repository.ThreadRepository, logger *zap.Logger, id uuid.UUID) (*models.ChatMessage, bool) {
	msg, err := messages.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, logger, "get message", err)
		return nil, false
	}
	if msg == nil {
		notFound(c, "message")
		return nil, false
	}
	th, err := threads.GetByID(c.Request.Context(), msg.ThreadID)
	if err != nil {
		respondError(c, logger, "get thread", err)
		return nil, false
	}
	if th == nil || th.UserID != middleware.GetUserID(c) {
		notFound(c, "message")
		return nil, false
	}
	return msg, true
}
