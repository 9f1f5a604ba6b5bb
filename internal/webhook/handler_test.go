package webhook

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"support-console/internal/calls"
)

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/vapi/webhook", h.HandleGet)
	r.POST("/api/vapi/webhook", h.HandlePost)
	return r
}

func newTestHandler() (*Handler, *calls.MemoryRepo) {
	repo := calls.NewMemoryRepo()
	h := &Handler{
		Calls: calls.NewService(repo, nil),
		Now:   func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) },
	}
	return h, repo
}

func post(t *testing.T, r *gin.Engine, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/vapi/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhook_TokenMismatchProductionIs401(t *testing.T) {
	h, repo := newTestHandler()
	h.Token = "secret"
	h.Production = true
	r := newTestRouter(h)

	w := post(t, r, `{"type":"status-update","call":{"id":"c1"},"status":"ringing"}`,
		map[string]string{"x-vapi-webhook-token": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401", w.Code)
	}
	if _, ok := calls.NewService(repo, nil).GetCallLog(context.Background(), "c1"); ok {
		t.Fatalf("event processed despite 401")
	}
}

func TestWebhook_TokenMismatchDevelopmentStillProcesses(t *testing.T) {
	h, _ := newTestHandler()
	h.Token = "secret"
	h.Production = false
	r := newTestRouter(h)

	w := post(t, r, `{"type":"status-update","call":{"id":"c2"},"status":"ringing"}`,
		map[string]string{"x-vapi-webhook-token": "wrong"})
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", w.Code)
	}
	rec, ok := h.Calls.GetCallLog(context.Background(), "c2")
	if !ok || rec.Status != calls.CallStatusRinging {
		t.Fatalf("event not processed: ok=%v rec=%+v", ok, rec)
	}
}

func TestWebhook_MalformedBodyStill200(t *testing.T) {
	h, _ := newTestHandler()
	r := newTestRouter(h)

	w := post(t, r, `{not json`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"received":true`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestWebhook_CallStarted(t *testing.T) {
	h, _ := newTestHandler()
	r := newTestRouter(h)

	body := `{
	  "message": {
	    "type": "call-started",
	    "call": {
	      "id": "c3",
	      "startedAt": "2026-08-01T11:59:00Z",
	      "customer": {"number": "+15550002"}
	    }
	  }
	}`
	if w := post(t, r, body, nil); w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}

	rec, ok := h.Calls.GetCallLog(context.Background(), "c3")
	if !ok {
		t.Fatalf("call not recorded")
	}
	if rec.Status != calls.CallStatusInProgress {
		t.Fatalf("status = %q", rec.Status)
	}
	if rec.PhoneNumber != "+15550002" {
		t.Fatalf("phone = %q", rec.PhoneNumber)
	}
	if rec.StartedAt == nil || !rec.StartedAt.Equal(time.Date(2026, 8, 1, 11, 59, 0, 0, time.UTC)) {
		t.Fatalf("started_at = %v", rec.StartedAt)
	}
}

func TestWebhook_EndOfCallReport(t *testing.T) {
	h, _ := newTestHandler()
	r := newTestRouter(h)

	body := `{
	  "message": {
	    "type": "end-of-call-report",
	    "startedAt": "2026-08-01T11:58:00Z",
	    "endedAt": "2026-08-01T11:59:00Z",
	    "transcript": "user: hi\nassistant: hello",
	    "call": {"id": "c4"},
	    "costs": [
	      {"type": "transcriber", "cost": 0.01},
	      {"type": "model", "cost": 0.02},
	      {"type": "voice", "cost": 0.03},
	      {"type": "vapi", "cost": 0.04}
	    ]
	  }
	}`
	if w := post(t, r, body, nil); w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}

	ctx := context.Background()
	rec, ok := h.Calls.GetCallLog(ctx, "c4")
	if !ok {
		t.Fatalf("call not recorded")
	}
	if rec.Status != calls.CallStatusCompleted {
		t.Fatalf("status = %q", rec.Status)
	}
	if rec.DurationMs == nil || *rec.DurationMs != 60000 {
		t.Fatalf("duration_ms = %v, want 60000", rec.DurationMs)
	}
	if rec.Transcript != "user: hi\nassistant: hello" {
		t.Fatalf("transcript = %q", rec.Transcript)
	}

	mr, ok := h.Calls.GetMetrics(ctx, "c4")
	if !ok {
		t.Fatalf("metrics row missing")
	}
	// 0.01 stt + 0.02 ai + 0.03 tts + 0.04 telephony
	if mr.TotalCostUSD == nil || math.Abs(*mr.TotalCostUSD-0.10) > 1e-9 {
		t.Fatalf("total cost = %v, want 0.10", mr.TotalCostUSD)
	}
	if len(mr.RawPayload) == 0 {
		t.Fatalf("raw payload not retained")
	}
}

func TestWebhook_TranscriptAppendsWithRole(t *testing.T) {
	h, _ := newTestHandler()
	r := newTestRouter(h)

	post(t, r, `{"type":"transcript","call":{"id":"c5"},"message":{"role":"user","transcript":"hello"}}`, nil)
	post(t, r, `{"type":"transcript","call":{"id":"c5"},"message":{"role":"assistant","transcript":"hi"}}`, nil)

	rec, ok := h.Calls.GetCallLog(context.Background(), "c5")
	if !ok {
		t.Fatalf("call not recorded")
	}
	if rec.Transcript != "user: hello\nassistant: hi" {
		t.Fatalf("transcript = %q", rec.Transcript)
	}
}

type stubAnswerer struct {
	answer   string
	err      error
	question string
	language string
}

func (s *stubAnswerer) FunctionAnswer(ctx context.Context, question, language string) (string, error) {
	s.question = question
	s.language = language
	return s.answer, s.err
}

func TestWebhook_FunctionCallAnswered(t *testing.T) {
	h, _ := newTestHandler()
	a := &stubAnswerer{answer: "Our support desk opens at 9am."}
	h.Answerer = a
	r := newTestRouter(h)

	body := `{
	  "message": {
	    "type": "function-call",
	    "functionCall": {
	      "name": "ask_knowledge_base",
	      "parameters": {"question": "when do you open?", "language": "en-US"}
	    }
	  }
	}`
	w := post(t, r, body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Our support desk opens at 9am.") {
		t.Fatalf("body = %s", w.Body.String())
	}
	if a.question != "when do you open?" || a.language != "en-US" {
		t.Fatalf("answerer got question=%q language=%q", a.question, a.language)
	}
}

func TestWebhook_FunctionCallFailureStill200(t *testing.T) {
	h, _ := newTestHandler()
	h.Answerer = &stubAnswerer{err: errors.New("backend down")}
	r := newTestRouter(h)

	body := `{"message":{"type":"function-call","functionCall":{"parameters":{"question":"?"}}}}`
	w := post(t, r, body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "could not find an answer") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestWebhook_UnknownEventLeavesTrace(t *testing.T) {
	h, _ := newTestHandler()
	r := newTestRouter(h)

	if w := post(t, r, `{"type":"speech-update","call":{"id":"c6"}}`, nil); w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	rec, ok := h.Calls.GetCallLog(context.Background(), "c6")
	if !ok {
		t.Fatalf("call not recorded")
	}
	if rec.Metadata["last_event"] != "speech-update" {
		t.Fatalf("metadata = %v", rec.Metadata)
	}
}

func TestWebhook_GetIsLiveness(t *testing.T) {
	h, _ := newTestHandler()
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/vapi/webhook", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestMapStatus(t *testing.T) {
	cases := map[string]calls.CallStatus{
		"queued":      calls.CallStatusInitiated,
		"ringing":     calls.CallStatusRinging,
		"in-progress": calls.CallStatusInProgress,
		"forwarding":  calls.CallStatusInProgress,
		"ended":       calls.CallStatusCompleted,
		"failed":      calls.CallStatusFailed,
		"no-answer":   calls.CallStatusCancelled,
	}
	for vendor, want := range cases {
		got, ok := MapStatus(vendor)
		if !ok || got != want {
			t.Fatalf("MapStatus(%q) = %q, %v", vendor, got, ok)
		}
	}
	if _, ok := MapStatus("nonsense"); ok {
		t.Fatalf("unknown vendor status accepted")
	}
}
