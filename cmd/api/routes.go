package main

import (
	"ab-caller/internal/auth"
	"ab-caller/internal/httpapi"
	"ab-caller/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW, limitMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "role": role})
		})

		abCalls := v1.Group("/ab-calls")
		{
			dispatch := abCalls.Group("")
			dispatch.Use(rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleAdmin))
			dispatch.Use(limitMW)
			dispatch.POST("", h.MakeCall)
			dispatch.PUT("", h.MakeBatchCalls)
			dispatch.POST("/direct", h.MakeDirectCall)
			dispatch.POST("/test-connection", h.TestConnection)

			stats := abCalls.Group("/stats")
			stats.Use(rbac.RequireAnyRole(rbac.RoleAnalyst))
			stats.GET("", h.Statistics)
		}
	}
}
