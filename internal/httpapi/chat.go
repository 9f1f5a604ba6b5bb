package httpapi

import (
	"net/http"
	"strings"

	"support-console/internal/rag"
	"support-console/pkg/logger"

	"github.com/gin-gonic/gin"
)

type chatRequest struct {
	Query    string     `json:"query"`
	Language string     `json:"language"`
	History  []rag.Turn `json:"history,omitempty"`

	// Message is accepted as an alias for Query.
	Message string `json:"message,omitempty"`
}

func (r chatRequest) question() string {
	if q := strings.TrimSpace(r.Query); q != "" {
		return q
	}
	return strings.TrimSpace(r.Message)
}

// Chat answers a console question over the document store. The response
// carries the generated text, the retrieved passages and token usage.
func (h Handlers) Chat(c *gin.Context) {
	if h.RAG == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "chat not configured"})
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	question := req.question()
	if question == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "query required"})
		return
	}

	ans, err := h.RAG.AskWithHistory(c.Request.Context(), question, req.Language, req.History)
	if err != nil {
		logger.FromGin(c).Error("chat answer failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "answer generation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"response": ans.Text,
		"context":  ans.Context,
		"sources":  ans.Sources,
		"language": ans.Language,
		"usageMetadata": gin.H{
			"promptTokenCount":     ans.PromptTokens,
			"candidatesTokenCount": ans.OutputTokens,
		},
		"cached": ans.Cached,
	})
}
