package main

import (
	"crm-softphone/internal/httpapi"
	"crm-softphone/internal/notify"
	"crm-softphone/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, authMW gin.HandlerFunc, h httpapi.Handlers, events *notify.Hub) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	v1.Use(rbac.RequireWorkspace())
	{
		// SOFTPHONE routes: the per-agent console surface. Every command acts
		// on the caller's own coordinator; there is no cross-agent control.
		phone := v1.Group("/softphone")
		phone.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSupervisor, rbac.RoleAgent))
		{
			phone.POST("/register", h.Register)
			phone.POST("/unregister", h.Unregister)
			phone.GET("/state", h.State)
			phone.PUT("/availability", h.SetAvailability)

			phone.POST("/dial", h.Dial)
			phone.POST("/accept", h.Accept)
			phone.POST("/reject", h.Reject)
			phone.POST("/hangup", h.Hangup)
			phone.POST("/mute", h.Mute)
			phone.POST("/hold", h.Hold)
			phone.POST("/digit", h.SendDigit)

			phone.POST("/wrapup", h.SubmitWrapUp)

			phone.GET("/events", notify.StreamHandler(events))
		}

		// Reference data and call history.
		v1.GET("/dispositions",
			rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSupervisor, rbac.RoleAgent),
			h.ListDispositions)
		v1.GET("/calls/recent",
			rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSupervisor, rbac.RoleAgent),
			h.ListRecentCalls)
	}
}
