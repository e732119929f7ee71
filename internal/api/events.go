package api

import (
	"github.com/gin-gonic/gin"
	"github.com/lalith-99/threadline/internal/realtime"
	"github.com/lalith-99/threadline/internal/repository"
	"go.uber.org/zap"
)

// publish announces a committed change. Delivery is best effort: the write
// already succeeded, so a failed publish is only logged.
func publish(c *gin.Context, events realtime.Publisher, logger *zap.Logger, e realtime.Event) {
	if err := events.Publish(c.Request.Context(), e); err != nil {
		logger.Warn("failed to publish event",
			zap.String("type", string(e.Type)),
			zap.Stringer("thread_id", e.ThreadID),
			zap.Error(err),
		)
	}
}

// EventsHandler streams a thread's changes to connected clients.
type EventsHandler struct {
	threads repository.ThreadRepository
	hub     *realtime.Hub
	logger  *zap.Logger
}

func NewEventsHandler(threads repository.ThreadRepository, hub *realtime.Hub, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{threads: threads, hub: hub, logger: logger}
}

// Stream handles GET /v1/threads/:id/events (websocket upgrade).
func (h *EventsHandler) Stream(c *gin.Context) {
	id, ok := parseID(c, "id", "thread")
	if !ok {
		return
	}
	if _, ok := ownedThread(c, h.threads, h.logger, id); !ok {
		return
	}

	if err := realtime.Stream(c.Writer, c.Request, h.hub, id, h.logger); err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
	}
}
