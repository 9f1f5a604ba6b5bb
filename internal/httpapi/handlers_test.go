package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"support-console/internal/auth"
	"support-console/internal/calls"
	"support-console/internal/config"
	"support-console/internal/documents"
	"support-console/internal/ingest"
	"support-console/internal/rag"
	"support-console/internal/vapimetrics"

	"github.com/gin-gonic/gin"
)

func init() { gin.SetMode(gin.TestMode) }

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       "test-secret-0123456789abcdef",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		AdminUsername:   "admin",
		AdminPassword:   "admin-pass",
		ViewerUsername:  "viewer",
		ViewerPassword:  "viewer-pass",
	}
}

func testAuth(t *testing.T) (*auth.Manager, *auth.UserStore) {
	t.Helper()
	cfg := testAuthConfig()
	mgr, err := auth.NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr, auth.NewUserStore(cfg)
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestLogin(t *testing.T) {
	mgr, users := testAuth(t)
	h := Handlers{Auth: mgr, Users: users}
	r := gin.New()
	r.POST("/v1/auth/login", h.Login)

	w := doJSON(t, r, http.MethodPost, "/v1/auth/login", loginRequest{Username: "viewer", Password: "viewer-pass"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["role"] != auth.RoleViewer {
		t.Fatalf("role = %v", body["role"])
	}
	if body["access_token"] == "" || body["refresh_token"] == "" {
		t.Fatalf("missing tokens: %v", body)
	}

	if w := doJSON(t, r, http.MethodPost, "/v1/auth/login", loginRequest{Username: "admin", Password: "wrong"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPost, "/v1/auth/login", loginRequest{Username: "admin"}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing password status = %d", w.Code)
	}
}

func TestRefresh(t *testing.T) {
	mgr, users := testAuth(t)
	h := Handlers{Auth: mgr, Users: users}
	r := gin.New()
	r.POST("/v1/auth/refresh", h.Refresh)

	pair, err := mgr.IssuePair(time.Now(), "admin", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	w := doJSON(t, r, http.MethodPost, "/v1/auth/refresh", refreshRequest{RefreshToken: pair.RefreshToken})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if body := decode(t, w); body["role"] != auth.RoleAdmin {
		t.Fatalf("role not re-resolved: %v", body["role"])
	}

	// An access token is not accepted on the refresh route.
	if w := doJSON(t, r, http.MethodPost, "/v1/auth/refresh", refreshRequest{RefreshToken: pair.AccessToken}); w.Code != http.StatusUnauthorized {
		t.Fatalf("access-as-refresh status = %d", w.Code)
	}
}

func seedCalls(t *testing.T) *calls.Service {
	t.Helper()
	svc := calls.NewService(calls.NewMemoryRepo(), nil)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, row := range []struct {
		id     string
		status calls.CallStatus
		durMs  int64
	}{
		{"call-1", calls.CallStatusCompleted, 60000},
		{"call-2", calls.CallStatusCompleted, 120000},
		{"call-3", calls.CallStatusFailed, 5000},
	} {
		status := row.status
		dur := row.durMs
		ended := started.Add(time.Duration(dur) * time.Millisecond)
		if rec := svc.UpsertCallLog(ctx, calls.CallUpsert{
			CallID:     row.id,
			Status:     &status,
			StartedAt:  &started,
			EndedAt:    &ended,
			DurationMs: &dur,
		}); rec == nil {
			t.Fatalf("seed upsert %s failed", row.id)
		}
	}
	return svc
}

func TestGetCall(t *testing.T) {
	h := Handlers{Calls: seedCalls(t)}
	r := gin.New()
	r.GET("/v1/calls/:call_id", h.GetCall)

	w := doJSON(t, r, http.MethodGet, "/v1/calls/call-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := decode(t, w); body["call_id"] != "call-1" {
		t.Fatalf("call_id = %v", body["call_id"])
	}

	if w := doJSON(t, r, http.MethodGet, "/v1/calls/nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing call status = %d", w.Code)
	}
}

func TestListCalls(t *testing.T) {
	h := Handlers{Calls: seedCalls(t)}
	r := gin.New()
	r.GET("/v1/calls", h.ListCalls)

	w := doJSON(t, r, http.MethodGet, "/v1/calls?status=completed", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := decode(t, w); body["count"] != float64(2) {
		t.Fatalf("count = %v", body["count"])
	}

	if w := doJSON(t, r, http.MethodGet, "/v1/calls?status=bogus", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bogus status = %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/v1/calls?from=yesterday", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad from = %d", w.Code)
	}
}

func TestCallStats(t *testing.T) {
	h := Handlers{Calls: seedCalls(t)}
	r := gin.New()
	r.GET("/v1/calls/stats", h.CallStats)

	w := doJSON(t, r, http.MethodGet, "/v1/calls/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode(t, w)
	stats, ok := body["statistics"].(map[string]any)
	if !ok || stats["total"] != float64(3) || stats["completed"] != float64(2) {
		t.Fatalf("statistics = %v", body["statistics"])
	}
	quality, ok := body["quality"].(map[string]any)
	if !ok || quality["failed"] != float64(1) {
		t.Fatalf("quality = %v", body["quality"])
	}
}

func TestMetricsEndpoints(t *testing.T) {
	svc := seedCalls(t)
	ctx := context.Background()

	total := 0.25
	tokensIn, tokensOut := 700, 300
	if !svc.StoreMetrics(ctx, "call-1", vapimetrics.Metrics{
		TotalCostUSD:   &total,
		AITokensInput:  &tokensIn,
		AITokensOutput: &tokensOut,
	}, json.RawMessage(`{"type":"end-of-call-report"}`)) {
		t.Fatalf("StoreMetrics failed")
	}

	h := Handlers{Calls: svc}
	r := gin.New()
	r.GET("/v1/metrics/calls/:call_id", h.GetCallMetrics)
	r.GET("/v1/metrics/calls", h.ListCallMetrics)
	r.GET("/v1/metrics/stats", h.MetricsStats)

	w := doJSON(t, r, http.MethodGet, "/v1/metrics/calls/call-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if body := decode(t, w); body["total_cost_usd"] != 0.25 {
		t.Fatalf("total_cost_usd = %v", body["total_cost_usd"])
	}

	if w := doJSON(t, r, http.MethodGet, "/v1/metrics/calls/call-2", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing metrics status = %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/v1/metrics/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}
	body := decode(t, w)
	costs, ok := body["costs"].(map[string]any)
	if !ok || costs["total_cost"] != 0.25 {
		t.Fatalf("costs = %v", body["costs"])
	}
	usage, ok := body["usage"].(map[string]any)
	if !ok || usage["total_tokens_input"] != float64(700) {
		t.Fatalf("usage = %v", body["usage"])
	}
}

type fixedEmbedder struct{ vec []float32 }

func (f fixedEmbedder) EmbedContent(_ context.Context, _ string) ([]float32, error) {
	return f.vec, nil
}

func (f fixedEmbedder) EmbedContents(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = f.vec
	}
	return out, nil
}

type fixedGenerator struct{ text string }

func (f fixedGenerator) GenerateContent(_ context.Context, _, _ string) (rag.Generation, error) {
	return rag.Generation{Text: f.text, PromptTokens: 10, OutputTokens: 5}, nil
}

func TestChat(t *testing.T) {
	store := documents.NewMemoryRepo()
	if err := store.InsertChunks(context.Background(), []documents.Chunk{
		{ID: "s1", Content: "Orders ship within 24 hours.", Embedding: []float32{1, 0}, Metadata: documents.ChunkMeta{Filename: "shipping.md"}, Language: "en-US", CreatedAt: time.Now()},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	emb := fixedEmbedder{vec: []float32{1, 0}}
	chat := rag.NewService(&rag.Retriever{Embedder: emb, Store: store}, fixedGenerator{text: "Your order ships tomorrow."}, nil, nil)

	h := Handlers{RAG: chat}
	r := gin.New()
	r.POST("/v1/chat", h.Chat)

	w := doJSON(t, r, http.MethodPost, "/v1/chat", chatRequest{Query: "When does my order ship?"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["response"] != "Your order ships tomorrow." {
		t.Fatalf("response = %v", body["response"])
	}
	passages, ok := body["context"].([]any)
	if !ok || len(passages) != 1 || passages[0] != "Orders ship within 24 hours." {
		t.Fatalf("context = %v", body["context"])
	}
	usage, ok := body["usageMetadata"].(map[string]any)
	if !ok || usage["promptTokenCount"] != float64(10) || usage["candidatesTokenCount"] != float64(5) {
		t.Fatalf("usageMetadata = %v", body["usageMetadata"])
	}

	// "message" is accepted as an alias for "query".
	if w := doJSON(t, r, http.MethodPost, "/v1/chat", chatRequest{Message: "When does my order ship?"}); w.Code != http.StatusOK {
		t.Fatalf("message alias status = %d", w.Code)
	}

	if w := doJSON(t, r, http.MethodPost, "/v1/chat", chatRequest{Query: "   "}); w.Code != http.StatusBadRequest {
		t.Fatalf("blank query status = %d", w.Code)
	}
}

func TestDocuments(t *testing.T) {
	store := documents.NewMemoryRepo()
	if err := store.InsertChunks(context.Background(), []documents.Chunk{
		{ID: "c1", Content: "shipping policy", Embedding: []float32{1, 0}, Metadata: documents.ChunkMeta{Filename: "faq.md", ChunkIndex: 0}, Language: "en-US", CreatedAt: time.Now()},
		{ID: "c2", Content: "returns policy", Embedding: []float32{0, 1}, Metadata: documents.ChunkMeta{Filename: "faq.md", ChunkIndex: 1}, Language: "en-US", CreatedAt: time.Now()},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := ingest.NewService(fixedEmbedder{vec: []float32{1, 0}}, store, nil)
	h := Handlers{Docs: store, Ingest: svc}
	r := gin.New()
	r.GET("/v1/documents", h.ListDocuments)
	r.POST("/v1/documents", h.UploadDocument)
	r.DELETE("/v1/documents/:id", h.DeleteDocument)
	r.DELETE("/v1/documents/file/:filename", h.DeleteDocumentFile)

	w := doJSON(t, r, http.MethodGet, "/v1/documents", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	if body := decode(t, w); body["count"] != float64(1) {
		t.Fatalf("count = %v", body["count"])
	}

	w = doJSON(t, r, http.MethodPost, "/v1/documents", uploadRequest{Text: "Refunds are processed in 5 days.", Filename: "refunds.txt", Language: "en"})
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d body = %s", w.Code, w.Body.String())
	}
	if w := doJSON(t, r, http.MethodPost, "/v1/documents", uploadRequest{Filename: "empty.txt"}); w.Code != http.StatusBadRequest {
		t.Fatalf("empty upload status = %d", w.Code)
	}

	if w := doJSON(t, r, http.MethodDelete, "/v1/documents/c1", nil); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodDelete, "/v1/documents/c1", nil); w.Code != http.StatusNotFound {
		t.Fatalf("double delete status = %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodDelete, "/v1/documents/file/faq.md", nil); w.Code != http.StatusOK {
		t.Fatalf("delete by filename status = %d", w.Code)
	}
}

func TestRateLimit_FailsOpenWithoutRedis(t *testing.T) {
	r := gin.New()
	r.GET("/ping", RateLimit(nil, "ping", 1, time.Minute), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	for i := 0; i < 3; i++ {
		w := doJSON(t, r, http.MethodGet, "/ping", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want pass-through without a limiter backend", i, w.Code)
		}
	}
}

func TestHealth_ReportsUnconfiguredComponents(t *testing.T) {
	h := Handlers{}
	r := gin.New()
	r.GET("/healthz", h.Health)

	w := doJSON(t, r, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode(t, w)
	if body["status"] != "degraded" {
		t.Fatalf("status = %v", body["status"])
	}
	components, ok := body["components"].(map[string]any)
	if !ok || components["database"] != "unconfigured" || components["gemini"] != "unconfigured" {
		t.Fatalf("components = %v", body["components"])
	}
}
