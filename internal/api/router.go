package api

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups every handler the router mounts.
type Handlers struct {
	Auth     *AuthHandler
	Users    *UserHandler
	Threads  *ThreadHandler
	Messages *MessageHandler
	Projects *ProjectHandler
	Events   *EventsHandler
}

// Register mounts the public auth routes and, behind requireAuth, the rest
// of the v1 API.
func (h *Handlers) Register(r gin.IRouter, requireAuth gin.HandlerFunc) {
	public := r.Group("/v1")
	public.POST("/auth/signup", h.Auth.Signup)
	public.POST("/auth/login", h.Auth.Login)

	v1 := r.Group("/v1")
	v1.Use(requireAuth)

	v1.GET("/users/me", h.Users.GetMe)
	v1.PUT("/users/me/preferences", h.Users.UpdatePreferences)

	v1.GET("/threads", h.Threads.List)
	v1.POST("/threads", h.Threads.Create)
	v1.DELETE("/threads", h.Threads.DeleteMany)
	v1.GET("/threads/:id", h.Threads.Get)
	v1.PUT("/threads/:id", h.Threads.Upsert)
	v1.PATCH("/threads/:id", h.Threads.Update)
	v1.DELETE("/threads/:id", h.Threads.Delete)
	v1.GET("/instructions", h.Threads.Instructions)

	v1.GET("/threads/:id/messages", h.Messages.List)
	v1.POST("/threads/:id/messages", h.Messages.Create)
	v1.POST("/threads/:id/messages/batch", h.Messages.CreateBatch)
	v1.DELETE("/messages/:id", h.Messages.Delete)
	v1.DELETE("/messages/:id/after", h.Messages.Truncate)

	v1.GET("/threads/:id/events", h.Events.Stream)

	v1.GET("/projects", h.Projects.List)
	v1.POST("/projects", h.Projects.Create)
	v1.GET("/projects/:id", h.Projects.Get)
	v1.PATCH("/projects/:id", h.Projects.Update)
	v1.DELETE("/projects/:id", h.Projects.Delete)
}
