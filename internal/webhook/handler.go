package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"support-console/internal/calls"
	"support-console/internal/vapimetrics"
	"support-console/pkg/logger"
)

// Answerer resolves knowledge-base questions forwarded by in-call function
// invocations.
type Answerer interface {
	FunctionAnswer(ctx context.Context, question, language string) (string, error)
}

// Handler ingests call lifecycle events from the voice vendor.
//
// Contract: except for a token mismatch in production, the endpoint always
// answers 200 with a success envelope. The vendor retries on non-2xx and a
// retry storm mid-call is worse than a lost event, so processing failures
// are logged and absorbed.
type Handler struct {
	Calls    *calls.Service
	Answerer Answerer

	// History serves the dedicated function route, which carries prior
	// conversation turns. Nil falls back to the spoken apology.
	History HistoryAnswerer

	// Token is the shared secret expected in x-vapi-webhook-token.
	// Empty disables the check.
	Token      string
	Production bool

	Now func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

// HandleGet answers vendor URL verification probes.
func (h *Handler) HandleGet(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "vapi webhook endpoint",
	})
}

// HandlePost processes one webhook event.
func (h *Handler) HandlePost(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Token != "" {
		got := c.GetHeader("x-vapi-webhook-token")
		if got != h.Token {
			if h.Production {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			log.Warn("webhook token mismatch, allowed outside production")
		}
	}

	raw, err := c.GetRawData()
	if err != nil {
		log.Error("webhook body read failed", "err", err)
		c.JSON(http.StatusOK, envelope())
		return
	}

	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		log.Error("webhook payload not json", "err", err)
		c.JSON(http.StatusOK, envelope())
		return
	}

	event := eventType(root)
	callID := callIDOf(root)
	log.Info("webhook event", "event", event, "call_id", callID)

	ctx := c.Request.Context()
	switch event {
	case "status-update":
		h.onStatusUpdate(ctx, root, callID)
	case "call-started", "call.started":
		h.onCallStarted(ctx, root, callID)
	case "end-of-call-report", "end-of-call":
		h.onEndOfCall(ctx, log, root, raw, callID)
	case "transcript", "message", "conversation-update":
		h.onTranscript(ctx, root, callID)
	case "function-call", "tool-calls":
		// Function calls answer inline; the response body carries the result.
		h.onFunctionCall(c, log, root)
		return
	default:
		// Unknown events still leave a trace on the call row.
		if callID != "" {
			h.Calls.UpdateStatus(ctx, callID, calls.CallStatusInProgress, map[string]any{
				"last_event": event,
			})
		}
	}

	c.JSON(http.StatusOK, envelope())
}

func envelope() gin.H {
	return gin.H{"success": true, "received": true}
}

func (h *Handler) onStatusUpdate(ctx context.Context, root map[string]any, callID string) {
	if callID == "" {
		return
	}
	vendor := firstStr(root, "message.status", "call.status", "status")
	status, ok := MapStatus(vendor)
	if !ok {
		status = calls.CallStatusInProgress
	}
	h.Calls.UpdateStatus(ctx, callID, status, map[string]any{"vapi_status": vendor})
}

func (h *Handler) onCallStarted(ctx context.Context, root map[string]any, callID string) {
	if callID == "" {
		return
	}
	st := calls.CallStatusInProgress
	up := calls.CallUpsert{CallID: callID, Status: &st}
	if t := firstTime(root, "message.call.startedAt", "call.startedAt", "message.timestamp", "timestamp"); t != nil {
		up.StartedAt = t
	}
	if phone := firstStr(root, "message.call.customer.number", "call.customer.number", "customer.number"); phone != "" {
		up.PhoneNumber = &phone
	}
	if lang := firstStr(root, "message.call.assistantOverrides.language", "call.language"); lang != "" {
		up.Language = &lang
	}
	h.Calls.UpsertCallLog(ctx, up)
}

func (h *Handler) onEndOfCall(ctx context.Context, log *slog.Logger, root map[string]any, raw []byte, callID string) {
	if callID == "" {
		log.Warn("end-of-call report without call id dropped")
		return
	}

	st := calls.CallStatusCompleted
	up := calls.CallUpsert{CallID: callID, Status: &st}
	up.StartedAt = firstTime(root, "message.startedAt", "message.call.startedAt", "call.startedAt")
	up.EndedAt = firstTime(root, "message.endedAt", "message.call.endedAt", "call.endedAt")
	if up.EndedAt == nil {
		now := h.now()
		up.EndedAt = &now
	}
	if up.StartedAt != nil && up.EndedAt.After(*up.StartedAt) {
		d := up.EndedAt.Sub(*up.StartedAt).Milliseconds()
		up.DurationMs = &d
	}
	if tr := firstStr(root, "message.transcript", "message.artifact.transcript", "call.transcript", "summary.transcript"); tr != "" {
		up.Transcript = &tr
	}
	if h.Calls.UpsertCallLog(ctx, up) == nil {
		log.Error("end-of-call record write failed", "call_id", callID)
	}

	m := vapimetrics.Normalize(vapimetrics.ExtractObject(root))
	if !h.Calls.StoreMetrics(ctx, callID, m, json.RawMessage(raw)) {
		log.Error("end-of-call metrics write failed", "call_id", callID)
	}
}

func (h *Handler) onTranscript(ctx context.Context, root map[string]any, callID string) {
	if callID == "" {
		return
	}
	text := firstStr(root, "message.transcript", "message.text", "transcript", "text")
	if text == "" {
		return
	}
	if role := firstStr(root, "message.role", "role"); role != "" {
		text = role + ": " + text
	}
	h.Calls.AppendTranscript(ctx, callID, text)
}

func (h *Handler) onFunctionCall(c *gin.Context, log *slog.Logger, root map[string]any) {
	name := firstStr(root,
		"message.functionCall.name", "functionCall.name", "message.toolCalls.0.function.name")
	question := firstStr(root,
		"message.functionCall.parameters.question", "functionCall.parameters.question",
		"message.toolCalls.0.function.arguments.question")
	language := firstStr(root,
		"message.functionCall.parameters.language", "functionCall.parameters.language",
		"message.call.assistantOverrides.language")

	if h.Answerer == nil || question == "" {
		log.Warn("function call not answerable", "function", name)
		c.JSON(http.StatusOK, gin.H{"result": "I could not find an answer to that."})
		return
	}

	answer, err := h.Answerer.FunctionAnswer(c.Request.Context(), question, language)
	if err != nil {
		log.Error("function call answer failed", "function", name, "err", err)
		c.JSON(http.StatusOK, gin.H{"result": "I could not find an answer to that."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": answer})
}

// MapStatus translates a vendor status string to the internal enum.
func MapStatus(vendor string) (calls.CallStatus, bool) {
	switch vendor {
	case "queued", "scheduled":
		return calls.CallStatusInitiated, true
	case "ringing":
		return calls.CallStatusRinging, true
	case "in-progress", "in_progress", "forwarding":
		return calls.CallStatusInProgress, true
	case "ended", "call-ended", "completed":
		return calls.CallStatusCompleted, true
	case "failed", "error":
		return calls.CallStatusFailed, true
	case "busy", "no-answer", "canceled", "cancelled":
		return calls.CallStatusCancelled, true
	default:
		return "", false
	}
}

func eventType(root map[string]any) string {
	return firstStr(root, "type", "message.type", "event")
}

func callIDOf(root map[string]any) string {
	return firstStr(root,
		"message.call.id", "call.id", "message.callId", "callId", "call_id", "id")
}
