package main

import (
	"time"

	"support-console/internal/auth"
	"support-console/internal/httpapi"
	"support-console/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, wh *webhook.Handler, authManager *auth.Manager, rdb *redis.Client) {
	// public
	r.GET("/healthz", h.Health)

	// Vendor webhooks (public; token-checked inside the handler so the
	// always-200 contract stays in one place).
	r.GET("/webhooks/vapi", wh.HandleGet)
	r.POST("/webhooks/vapi", wh.HandlePost)
	r.POST("/webhooks/vapi/function", wh.HandleFunction)

	// token issuance
	authGroup := r.Group("/v1/auth")
	authGroup.Use(httpapi.RateLimit(rdb, "auth", 10, time.Minute))
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(authManager))
	v1.Use(auth.RequireRole(auth.RoleAdmin, auth.RoleViewer))
	{
		v1.GET("/me", h.Me)

		v1.GET("/calls", h.ListCalls)
		v1.GET("/calls/stats", h.CallStats)
		v1.GET("/calls/:call_id", h.GetCall)

		v1.GET("/metrics/calls", h.ListCallMetrics)
		v1.GET("/metrics/stats", h.MetricsStats)
		v1.GET("/metrics/calls/:call_id", h.GetCallMetrics)

		v1.GET("/documents", h.ListDocuments)

		chat := v1.Group("")
		chat.Use(httpapi.RateLimit(rdb, "chat", 30, time.Minute))
		{
			chat.POST("/chat", h.Chat)
		}

		// mutating surfaces are admin-only
		admin := v1.Group("")
		admin.Use(auth.RequireRole(auth.RoleAdmin))
		{
			ingestGroup := admin.Group("")
			ingestGroup.Use(httpapi.RateLimit(rdb, "ingest", 10, time.Minute))
			{
				ingestGroup.POST("/documents", h.UploadDocument)
			}
			admin.DELETE("/documents/:id", h.DeleteDocument)
			admin.DELETE("/documents/file/:filename", h.DeleteDocumentFile)
		}
	}
}
