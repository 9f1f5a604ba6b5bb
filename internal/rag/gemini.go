package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GeminiClient talks to the Generative Language REST API.
type GeminiClient struct {
	baseURL    string
	apiKey     string
	chatModel  string
	embedModel string
	httpClient *http.Client
}

func NewGeminiClient(baseURL, apiKey, chatModel, embedModel string) *GeminiClient {
	return &GeminiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// APIError is a non-2xx answer from the API. Server-side statuses and
// rate limits are worth retrying, everything else is not.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini: status %d: %s", e.Status, e.Message)
}

func (e *APIError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type embedContentRequest struct {
	Model   string  `json:"model"`
	Content content `json:"content"`
}

type batchEmbedRequest struct {
	Requests []embedContentRequest `json:"requests"`
}

type batchEmbedResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

// EmbedContents embeds a batch of texts in one request, preserving order.
func (c *GeminiClient) EmbedContents(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := batchEmbedRequest{Requests: make([]embedContentRequest, len(texts))}
	for i, t := range texts {
		reqBody.Requests[i] = embedContentRequest{
			Model:   "models/" + c.embedModel,
			Content: content{Parts: []part{{Text: t}}},
		}
	}

	var result batchEmbedResponse
	url := fmt.Sprintf("%s/v1beta/models/%s:batchEmbedContents", c.baseURL, c.embedModel)
	if err := c.post(ctx, url, reqBody, &result); err != nil {
		return nil, err
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini: embedding count %d for %d inputs", len(result.Embeddings), len(texts))
	}

	out := make([][]float32, len(result.Embeddings))
	for i, e := range result.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

// EmbedContent embeds a single text.
func (c *GeminiClient) EmbedContent(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedContents(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Generation is the model's reply plus token accounting.
type Generation struct {
	Text         string
	PromptTokens int
	OutputTokens int
}

// GenerateContent answers userText under the given system instruction.
func (c *GeminiClient) GenerateContent(ctx context.Context, systemInstruction, userText string) (Generation, error) {
	reqBody := generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: userText}}}},
		GenerationConfig: generationConfig{Temperature: 0.3, MaxOutputTokens: 1024},
	}
	if systemInstruction != "" {
		reqBody.SystemInstruction = &content{Parts: []part{{Text: systemInstruction}}}
	}

	var result generateResponse
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.chatModel)
	if err := c.post(ctx, url, reqBody, &result); err != nil {
		return Generation{}, err
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return Generation{}, fmt.Errorf("gemini: empty candidate list")
	}

	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return Generation{
		Text:         sb.String(),
		PromptTokens: result.UsageMetadata.PromptTokenCount,
		OutputTokens: result.UsageMetadata.CandidatesTokenCount,
	}, nil
}

func (c *GeminiClient) post(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
