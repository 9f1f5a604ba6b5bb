package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"support-console/internal/audit"
	"support-console/internal/auth"
	"support-console/internal/calls"
	"support-console/internal/documents"
	"support-console/internal/ingest"
	"support-console/internal/rag"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth   *auth.Manager
	Users  *auth.UserStore
	Calls  *calls.Service
	RAG    *rag.Service
	Ingest *ingest.Service
	Docs   documents.Repository

	// Audit records logins and document mutations. Nil disables auditing.
	Audit *audit.Service

	// Health probe targets. Nil entries report as unconfigured.
	DB               *sql.DB
	Redis            *redis.Client
	GeminiConfigured bool

	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

// --- Auth ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login validates console credentials and issues a JWT token pair.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil || h.Users == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Username == "" || req.Password == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}
	role, err := h.Users.Authenticate(req.Username, req.Password)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), req.Username, role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	h.Audit.Record(c.Request.Context(), audit.Event{
		Type:        audit.EventTypeLogin,
		ActorUserID: req.Username,
		ActorRole:   role,
		IPAddress:   c.ClientIP(),
	})
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"role":          role,
	})
}

// Refresh exchanges a valid refresh token for a new pair. The refresh token
// carries no role claim, so the role is re-resolved from the account store.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil || h.Users == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, h.now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	role, ok := h.Users.RoleOf(claims.UserID)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown account"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), claims.UserID, role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"role":          role,
	})
}

// Me reports the identity attached by the access-token middleware.
func (h Handlers) Me(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role})
}

// --- Health ---

// Health pings each dependency. Any failing component degrades the overall
// status but the endpoint itself still answers 200 so probes can read the
// component detail.
func (h Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	components := gin.H{}
	status := "ok"

	switch {
	case h.DB == nil:
		components["database"] = "unconfigured"
		status = "degraded"
	case h.DB.PingContext(ctx) != nil:
		components["database"] = "down"
		status = "degraded"
	default:
		components["database"] = "ok"
	}

	switch {
	case h.Redis == nil:
		components["redis"] = "unconfigured"
		status = "degraded"
	case h.Redis.Ping(ctx).Err() != nil:
		components["redis"] = "down"
		status = "degraded"
	default:
		components["redis"] = "ok"
	}

	if h.GeminiConfigured {
		components["gemini"] = "configured"
	} else {
		components["gemini"] = "unconfigured"
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{"status": status, "components": components})
}
