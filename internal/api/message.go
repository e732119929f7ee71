package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/threadline/internal/models"
	"github.com/lalith-99/threadline/internal/realtime"
	"github.com/lalith-99/threadline/internal/repository"
	"go.uber.org/zap"
)

type MessageHandler struct {
	threads  repository.ThreadRepository
	messages repository.MessageRepository
	events   realtime.Publisher
	logger   *zap.Logger
}

func NewMessageHandler(
	threads repository.ThreadRepository,
	messages repository.MessageRepository,
	events realtime.Publisher,
	logger *zap.Logger,
) *MessageHandler {
	return &MessageHandler{
		threads:  threads,
		messages: messages,
		events:   events,
		logger:   logger,
	}
}

// messageRequest is a message as the client SDK produces it. The thread
// comes from the URL and the timestamp from the database.
type messageRequest struct {
	ID          uuid.UUID           `json:"id"`
	Role        models.Role         `json:"role" binding:"required"`
	Parts       []json.RawMessage   `json:"parts" binding:"required"`
	Annotations []models.Annotation `json:"annotations"`
	Attachments []json.RawMessage   `json:"attachments"`
	Model       *string             `json:"model"`
}

func (r messageRequest) toMessage(threadID uuid.UUID) models.ChatMessage {
	id := r.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return models.ChatMessage{
		ID:          id,
		ThreadID:    threadID,
		Role:        r.Role,
		Parts:       r.Parts,
		Annotations: r.Annotations,
		Attachments: r.Attachments,
		Model:       r.Model,
	}
}

type batchRequest struct {
	Messages []messageRequest `json:"messages" binding:"required,min=1,dive"`
}

// List handles GET /v1/threads/:id/messages
func (h *MessageHandler) List(c *gin.Context) {
	threadID, ok := parseID(c, "id", "thread")
	if !ok {
		return
	}
	if _, ok := ownedThread(c, h.threads, h.logger, threadID); !ok {
		return
	}

	messages, err := h.messages.ListByThread(c.Request.Context(), threadID)
	if err != nil {
		respondError(c, h.logger, "list messages", err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// Create handles POST /v1/threads/:id/messages. With ?upsert=true an
// existing message of the same thread has its content replaced.
func (h *MessageHandler) Create(c *gin.Context) {
	threadID, ok := parseID(c, "id", "thread")
	if !ok {
		return
	}
	upsert, err := strconv.ParseBool(c.DefaultQuery("upsert", "false"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'upsert' parameter"})
		return
	}
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := ownedThread(c, h.threads, h.logger, threadID); !ok {
		return
	}
	msg := req.toMessage(threadID)

	if !upsert {
		created, err := h.messages.Create(c.Request.Context(), msg)
		if err != nil {
			respondError(c, h.logger, "create message", err)
			return
		}
		publish(c, h.events, h.logger, realtime.NewEvent(realtime.EventMessageCreated, threadID, created))
		c.JSON(http.StatusCreated, created)
		return
	}

	// Upsert never moves a message, so an id from another thread is refused
	// rather than silently rewriting content there.
	existing, err := h.messages.GetByID(c.Request.Context(), msg.ID)
	if err != nil {
		respondError(c, h.logger, "get message", err)
		return
	}
	if existing != nil && existing.ThreadID != threadID {
		if _, ok := ownedMessage(c, h.messages, h.threads, h.logger, existing.ID); !ok {
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": "message belongs to another thread"})
		return
	}

	saved, err := h.messages.Upsert(c.Request.Context(), msg)
	if err != nil {
		respondError(c, h.logger, "upsert message", err)
		return
	}
	publish(c, h.events, h.logger, realtime.NewEvent(realtime.EventMessageCreated, threadID, saved))
	c.JSON(http.StatusOK, saved)
}

// CreateBatch handles POST /v1/threads/:id/messages/batch. Either every
// message is stored or none is.
func (h *MessageHandler) CreateBatch(c *gin.Context) {
	threadID, ok := parseID(c, "id", "thread")
	if !ok {
		return
	}
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := ownedThread(c, h.threads, h.logger, threadID); !ok {
		return
	}

	msgs := make([]models.ChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, m.toMessage(threadID))
	}

	created, err := h.messages.CreateBatch(c.Request.Context(), msgs)
	if err != nil {
		respondError(c, h.logger, "create messages", err)
		return
	}
	for i := range created {
		publish(c, h.events, h.logger, realtime.NewEvent(realtime.EventMessageCreated, threadID, created[i]))
	}
	c.JSON(http.StatusCreated, created)
}

// Delete handles DELETE /v1/messages/:id
func (h *MessageHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id", "message")
	if !ok {
		return
	}
	msg, ok := ownedMessage(c, h.messages, h.threads, h.logger, id)
	if !ok {
		return
	}

	if err := h.messages.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, "delete message", err)
		return
	}

	publish(c, h.events, h.logger, realtime.NewEvent(realtime.EventMessageDeleted, msg.ThreadID, gin.H{"id": id}))
	c.Status(http.StatusNoContent)
}

// Truncate handles DELETE /v1/messages/:id/after: the message and every
// later one in its thread are removed, e.g. before regenerating a reply.
func (h *MessageHandler) Truncate(c *gin.Context) {
	id, ok := parseID(c, "id", "message")
	if !ok {
		return
	}
	msg, ok := ownedMessage(c, h.messages, h.threads, h.logger, id)
	if !ok {
		return
	}

	n, err := h.messages.DeleteAtAndAfter(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "truncate thread", err)
		return
	}

	publish(c, h.events, h.logger, realtime.NewEvent(realtime.EventMessagesTruncated, msg.ThreadID, gin.H{
		"from":    id,
		"deleted": n,
	}))
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
