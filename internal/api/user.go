package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/threadline/internal/middleware"
	"github.com/lalith-99/threadline/internal/models"
	"github.com/lalith-99/threadline/internal/repository"
	"go.uber.org/zap"
)

type UserHandler struct {
	repo   repository.UserRepository
	logger *zap.Logger
}

func NewUserHandler(repo repository.UserRepository, logger *zap.Logger) *UserHandler {
	return &UserHandler{repo: repo, logger: logger}
}

// GetMe handles GET /v1/users/me
func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.repo.GetByID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "get user", err)
		return
	}
	// A valid token for a deleted account.
	if user == nil {
		notFound(c, "user")
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdatePreferences handles PUT /v1/users/me/preferences. The body
// replaces the stored preferences as a whole.
func (h *UserHandler) UpdatePreferences(c *gin.Context) {
	var prefs models.UserPreferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.repo.UpdatePreferences(c.Request.Context(), middleware.GetUserID(c), prefs)
	if err != nil {
		respondError(c, h.logger, "update preferences", err)
		return
	}
	if user == nil {
		notFound(c, "user")
		return
	}
	c.JSON(http.StatusOK, user)
}
