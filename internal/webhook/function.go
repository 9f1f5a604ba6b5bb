package webhook

import (
	"context"
	"encoding/json"
	"net/http"

	"support-console/internal/rag"
	"support-console/pkg/logger"

	"github.com/gin-gonic/gin"
)

// HistoryAnswerer extends the plain answerer with conversation context for
// the dedicated in-call function route.
type HistoryAnswerer interface {
	AskWithHistory(ctx context.Context, query, language string, history []rag.Turn) (rag.Answer, error)
}

// functionFallback is spoken to the caller when no answer can be produced.
const functionFallback = "I could not find an answer to that."

// HandleFunction serves the assistant's knowledge-base tool directly. The
// vendor has shipped the question under several keys over time, so the
// parameters are resolved through ordered candidate lists like the webhook
// events. Always answers 200 with a result string the assistant can speak.
func (h *Handler) HandleFunction(c *gin.Context) {
	log := logger.FromGin(c)

	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"result": functionFallback})
		return
	}
	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		log.Warn("function route payload not json", "err", err)
		c.JSON(http.StatusOK, gin.H{"result": functionFallback})
		return
	}

	question := firstStr(root,
		"message.functionCall.parameters.question", "functionCall.parameters.question",
		"message.functionCall.parameters.query", "functionCall.parameters.query",
		"message.toolCalls.0.function.arguments.question",
		"question", "query", "message", "transcript", "text")
	language := firstStr(root,
		"message.functionCall.parameters.language", "functionCall.parameters.language",
		"message.call.assistantOverrides.language", "language")
	history := historyOf(root)

	if h.History == nil || question == "" {
		log.Warn("function route not answerable", "have_question", question != "")
		c.JSON(http.StatusOK, gin.H{"result": functionFallback})
		return
	}

	ans, err := h.History.AskWithHistory(c.Request.Context(), question, language, history)
	if err != nil {
		log.Error("function route answer failed", "err", err)
		c.JSON(http.StatusOK, gin.H{"result": functionFallback})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": ans.Text, "sources": ans.Sources})
}

// historyOf extracts prior conversation turns from whichever array the
// payload carries. Entries without both a role and text are skipped.
func historyOf(root map[string]any) []rag.Turn {
	var items []any
	for _, path := range []string{
		"message.artifact.messagesOpenAIFormatted", "message.artifact.messages",
		"message.conversation", "history", "conversation",
	} {
		if arr, ok := dig(root, path).([]any); ok && len(arr) > 0 {
			items = arr
			break
		}
	}

	var turns []rag.Turn
	for _, item := range items {
		o, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, _ := o["role"].(string)
		text, _ := o["content"].(string)
		if text == "" {
			text, _ = o["text"].(string)
		}
		if role == "" || text == "" || role == "system" {
			continue
		}
		turns = append(turns, rag.Turn{Role: role, Text: text})
	}
	return turns
}
