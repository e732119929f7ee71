package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/threadline/internal/models"
	"github.com/lalith-99/threadline/internal/repository"
	"go.uber.org/zap"
)

// respondError maps repository and validation errors onto status codes.
// Anything unrecognised is logged and reported as a 500 without details.
func respondError(c *gin.Context, logger *zap.Logger, action string, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidMention),
		errors.Is(err, models.ErrInvalidMessage),
		errors.Is(err, models.ErrInvalidAnnotation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, repository.ErrReferenceMissing):
		c.JSON(http.StatusBadRequest, gin.H{"error": "referenced resource does not exist"})
	case errors.Is(err, repository.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	default:
		logger.Error("failed to "+action, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + action})
	}
}

// parseID reads a uuid path parameter, answering 400 if it isn't one.
func parseID(c *gin.Context, param, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " id"})
		return uuid.Nil, false
	}
	return id, true
}

// parseOptionalID reads an optional uuid query parameter.
func parseOptionalID(c *gin.Context, key string) (*uuid.UUID, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return nil, false
	}
	return &id, true
}

func notFound(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
}
