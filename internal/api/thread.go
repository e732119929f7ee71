package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/threadline/internal/middleware"
	"github.com/lalith-99/threadline/internal/models"
	"github.com/lalith-99/threadline/internal/realtime"
	"github.com/lalith-99/threadline/internal/repository"
	"go.uber.org/zap"
)

type ThreadHandler struct {
	threads  repository.ThreadRepository
	projects repository.ProjectRepository
	events   realtime.Publisher
	logger   *zap.Logger
}

func NewThreadHandler(
	threads repository.ThreadRepository,
	projects repository.ProjectRepository,
	events realtime.Publisher,
	logger *zap.Logger,
) *ThreadHandler {
	return &ThreadHandler{
		threads:  threads,
		projects: projects,
		events:   events,
		logger:   logger,
	}
}

// createThreadRequest lets the client pick the id: conversations are
// started client-side and persisted on the first message.
type createThreadRequest struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	ProjectID *uuid.UUID `json:"project_id"`
}

// optionalUUID tells an absent field apart from an explicit null.
type optionalUUID struct {
	Set   bool
	Value *uuid.UUID
}

func (o *optionalUUID) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var id uuid.UUID
	if err := json.Unmarshal(b, &id); err != nil {
		return err
	}
	o.Value = &id
	return nil
}

// updateThreadRequest: "project_id": null detaches the thread from its
// project, leaving the key out keeps the current one.
type updateThreadRequest struct {
	Title     *string      `json:"title"`
	ProjectID optionalUUID `json:"project_id"`
}

// List handles GET /v1/threads
func (h *ThreadHandler) List(c *gin.Context) {
	threads, err := h.threads.ListByUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "list threads", err)
		return
	}
	c.JSON(http.StatusOK, threads)
}

// Create handles POST /v1/threads
func (h *ThreadHandler) Create(c *gin.Context) {
	var req createThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if !h.checkProject(c, req.ProjectID) {
		return
	}

	th, err := h.threads.Create(c.Request.Context(), models.NewThread{
		ID:        req.ID,
		Title:     req.Title,
		UserID:    middleware.GetUserID(c),
		ProjectID: req.ProjectID,
	})
	if err != nil {
		respondError(c, h.logger, "create thread", err)
		return
	}
	c.JSON(http.StatusCreated, th)
}

// Get handles GET /v1/threads/:id and returns the thread with its
// messages and prompt context.
func (h *ThreadHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id", "thread")
	if !ok {
		return
	}

	details, err := h.threads.GetDetails(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "get thread", err)
		return
	}
	if details == nil || details.UserID != middleware.GetUserID(c) {
		notFound(c, "thread")
		return
	}
	c.JSON(http.StatusOK, details)
}

// Upsert handles PUT /v1/threads/:id. An existing thread only gets its
// title replaced.
func (h *ThreadHandler) Upsert(c *gin.Context) {
	id, ok := parseID(c, "id", "thread")
	if !ok {
		return
	}
	var req createThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	existing, err := h.threads.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "get thread", err)
		return
	}
	if existing != nil && existing.UserID != middleware.GetUserID(c) {
		notFound(c, "thread")
		return
	}
	if existing == nil && !h.checkProject(c, req.ProjectID) {
		return
	}

	th, err := h.threads.Upsert(c.Request.Context(), models.NewThread{
		ID:        id,
		Title:     req.Title,
		UserID:    middleware.GetUserID(c),
		ProjectID: req.ProjectID,
	})
	if err != nil {
		respondError(c, h.logger, "upsert thread", err)
		return
	}
	if th == nil {
		notFound(c, "thread")
		return
	}
	if existing != nil {
		publish(c, h.events, h.logger, realtime.NewEvent(realtime.EventThreadUpdated, id, th))
	}
	c.JSON(http.StatusOK, th)
}

// Update handles PATCH /v1/threads/:id
func (h *ThreadHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id", "thread")
	if !ok {
		return
	}
	var req updateThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := ownedThread(c, h.threads, h.logger, id); !ok {
		return
	}

	update := models.ThreadUpdate{Title: req.Title}
	if req.ProjectID.Set {
		if req.ProjectID.Value == nil {
			update.DetachProject = true
		} else {
			if !h.checkProject(c, req.ProjectID.Value) {
				return
			}
			update.ProjectID = req.ProjectID.Value
		}
	}

	th, err := h.threads.Update(c.Request.Context(), id, update)
	if err != nil {
		respondError(c, h.logger, "update thread", err)
		return
	}
	if th == nil {
		notFound(c, "thread")
		return
	}

	publish(c, h.events, h.logger, realtime.NewEvent(realtime.EventThreadUpdated, id, th))
	c.JSON(http.StatusOK, th)
}

// Delete handles DELETE /v1/threads/:id
func (h *ThreadHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id", "thread")
	if !ok {
		return
	}
	if _, ok := ownedThread(c, h.threads, h.logger, id); !ok {
		return
	}

	if err := h.threads.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, "delete thread", err)
		return
	}

	publish(c, h.events, h.logger, realtime.NewEvent(realtime.EventThreadDeleted, id, nil))
	c.Status(http.StatusNoContent)
}

// DeleteMany handles DELETE /v1/threads?scope=non-project|all. Without a
// scope nothing is deleted.
func (h *ThreadHandler) DeleteMany(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var (
		n   int64
		err error
	)
	switch c.Query("scope") {
	case "non-project":
		n, err = h.threads.DeleteNonProject(c.Request.Context(), userID)
	case "all":
		n, err = h.threads.DeleteAll(c.Request.Context(), userID)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope must be one of: non-project, all"})
		return
	}
	if err != nil {
		respondError(c, h.logger, "delete threads", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// Instructions handles GET /v1/instructions?thread_id=&project_id=
//
// With a thread id the context comes from that thread's project. With only
// a project id it is the context a new thread in that project would get.
func (h *ThreadHandler) Instructions(c *gin.Context) {
	threadID, ok := parseOptionalID(c, "thread_id")
	if !ok {
		return
	}
	projectID, ok := parseOptionalID(c, "project_id")
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)

	if threadID != nil {
		th, err := h.threads.GetByID(c.Request.Context(), *threadID)
		if err != nil {
			respondError(c, h.logger, "get thread", err)
			return
		}
		// A thread id nobody has persisted yet is fine; someone else's is not.
		if th != nil && th.UserID != userID {
			notFound(c, "thread")
			return
		}
		out, err := h.threads.GetInstructions(c.Request.Context(), userID, threadID)
		if err != nil {
			respondError(c, h.logger, "get instructions", err)
			return
		}
		c.JSON(http.StatusOK, out)
		return
	}

	if !h.checkProject(c, projectID) {
		return
	}
	out, err := h.threads.GetInstructionsByProject(c.Request.Context(), userID, projectID)
	if err != nil {
		respondError(c, h.logger, "get instructions", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// checkProject answers 404 unless projectID is nil or one of the caller's
// projects.
func (h *ThreadHandler) checkProject(c *gin.Context, projectID *uuid.UUID) bool {
	if projectID == nil {
		return true
	}
	_, ok := ownedProject(c, h.projects, h.logger, *projectID)
	return ok
}
