package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/threadline/internal/middleware"
	"github.com/lalith-99/threadline/internal/models"
	"github.com/lalith-99/threadline/internal/realtime"
	"github.com/lalith-99/threadline/internal/repository"
	"go.uber.org/zap"
)

type ProjectHandler struct {
	projects repository.ProjectRepository
	events   realtime.Publisher
	logger   *zap.Logger
}

func NewProjectHandler(projects repository.ProjectRepository, events realtime.Publisher, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, events: events, logger: logger}
}

type createProjectRequest struct {
	Name         string                     `json:"name" binding:"required"`
	Instructions models.ProjectInstructions `json:"instructions"`
}

type updateProjectRequest struct {
	Name         *string                     `json:"name" binding:"omitempty,min=1"`
	Instructions *models.ProjectInstructions `json:"instructions"`
}

// List handles GET /v1/projects
func (h *ProjectHandler) List(c *gin.Context) {
	projects, err := h.projects.ListByUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "list projects", err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

// Create handles POST /v1/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.projects.Create(c.Request.Context(), models.NewProject{
		Name:         req.Name,
		UserID:       middleware.GetUserID(c),
		Instructions: req.Instructions,
	})
	if err != nil {
		respondError(c, h.logger, "create project", err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// Get handles GET /v1/projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id", "project")
	if !ok {
		return
	}
	p, ok := ownedProject(c, h.projects, h.logger, id)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, p)
}

// Update handles PATCH /v1/projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id", "project")
	if !ok {
		return
	}
	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := ownedProject(c, h.projects, h.logger, id); !ok {
		return
	}

	p, err := h.projects.Update(c.Request.Context(), id, models.ProjectUpdate{
		Name:         req.Name,
		Instructions: req.Instructions,
	})
	if err != nil {
		respondError(c, h.logger, "update project", err)
		return
	}
	if p == nil {
		notFound(c, "project")
		return
	}
	c.JSON(http.StatusOK, p)
}

// Delete handles DELETE /v1/projects/:id. The project's threads and their
// messages go with it.
func (h *ProjectHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id", "project")
	if !ok {
		return
	}
	p, ok := ownedProject(c, h.projects, h.logger, id)
	if !ok {
		return
	}

	if err := h.projects.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, "delete project", err)
		return
	}

	for _, th := range p.Threads {
		publish(c, h.events, h.logger, realtime.NewEvent(realtime.EventThreadDeleted, th.ID, nil))
	}
	c.Status(http.StatusNoContent)
}
