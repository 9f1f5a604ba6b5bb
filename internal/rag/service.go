package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"support-console/internal/breaker"
	"support-console/internal/documents"
)

// Generator produces an answer under a system instruction.
type Generator interface {
	GenerateContent(ctx context.Context, systemInstruction, userText string) (Generation, error)
}

const (
	answerCachePrefix = "rag:answer:"
	answerCacheTTL    = 10 * time.Minute
	maxHistoryTurns   = 5
)

// Turn is one prior exchange appended to voice function-call prompts.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Answer is the full chat result. Context carries the retrieved passages in
// similarity order; Sources is the deduplicated list of their filenames.
type Answer struct {
	Text         string   `json:"text"`
	Language     string   `json:"language"`
	Context      []string `json:"context"`
	Sources      []string `json:"sources,omitempty"`
	PromptTokens int      `json:"prompt_tokens"`
	OutputTokens int      `json:"output_tokens"`
	Cached       bool     `json:"cached"`
}

// Service answers questions over the document store. Embedding and
// generation both cross the network, so each goes through the shim; only
// server-side and rate-limit API errors are retried.
type Service struct {
	retriever *Retriever
	generator Generator
	cache     *redis.Client // optional
	br        *breaker.Breaker
	log       *slog.Logger
}

func NewService(retriever *Retriever, generator Generator, cache *redis.Client, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		retriever: retriever,
		generator: generator,
		cache:     cache,
		log:       log,
		br: breaker.New(breaker.Config{
			Retryable: func(err error) bool {
				var ae *APIError
				if errors.As(err, &ae) {
					return ae.Retryable()
				}
				return true
			},
		}),
	}
}

// Ask answers a question in the given language, serving repeats from cache.
func (s *Service) Ask(ctx context.Context, query, language string) (Answer, error) {
	return s.ask(ctx, query, language, nil)
}

// AskWithHistory appends the last few conversation turns to the prompt.
// Used by the in-call function route where the vendor supplies a transcript.
func (s *Service) AskWithHistory(ctx context.Context, query, language string, history []Turn) (Answer, error) {
	return s.ask(ctx, query, language, history)
}

func (s *Service) ask(ctx context.Context, query, language string, history []Turn) (Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Answer{}, errors.New("rag: empty query")
	}
	language = NormalizeLanguage(language)

	// History makes the prompt unique per call, so only plain questions
	// hit the cache.
	cacheable := len(history) == 0
	key := cacheKey(language, query)
	if cacheable {
		if ans, ok := s.cacheGet(ctx, key); ok {
			return ans, nil
		}
	}

	var matches []documents.Match
	err := s.br.Do(ctx, func(ctx context.Context) error {
		var err error
		matches, err = s.retriever.Retrieve(ctx, query, language)
		return err
	})
	if err != nil {
		return Answer{}, fmt.Errorf("retrieval: %w", err)
	}

	contextText := ContextText(matches)
	contexts := make([]string, 0, len(matches))
	var sources []string
	seen := map[string]bool{}
	for _, m := range matches {
		contexts = append(contexts, m.Content)
		if name := m.Metadata.Filename; name != "" && !seen[name] {
			seen[name] = true
			sources = append(sources, name)
		}
	}

	userText := query
	if len(history) > 0 {
		userText = historyPreamble(history) + "\n\nCurrent question: " + query
	}

	var gen Generation
	err = s.br.Do(ctx, func(ctx context.Context) error {
		var err error
		gen, err = s.generator.GenerateContent(ctx, SystemInstruction(language, contextText), userText)
		return err
	})
	if err != nil {
		return Answer{}, fmt.Errorf("generation: %w", err)
	}

	ans := Answer{
		Text:         strings.TrimSpace(gen.Text),
		Language:     language,
		Context:      contexts,
		Sources:      sources,
		PromptTokens: gen.PromptTokens,
		OutputTokens: gen.OutputTokens,
	}
	if cacheable {
		s.cacheSet(ctx, key, ans)
	}
	return ans, nil
}

// FunctionAnswer satisfies the webhook answerer contract.
func (s *Service) FunctionAnswer(ctx context.Context, question, language string) (string, error) {
	ans, err := s.Ask(ctx, question, language)
	if err != nil {
		return "", err
	}
	return ans.Text, nil
}

func historyPreamble(history []Turn) string {
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	var sb strings.Builder
	sb.WriteString("Recent conversation:")
	for _, t := range history {
		sb.WriteString("\n")
		role := t.Role
		if role == "" {
			role = "user"
		}
		sb.WriteString(role)
		sb.WriteString(": ")
		sb.WriteString(t.Text)
	}
	return sb.String()
}

func cacheKey(language, query string) string {
	sum := sha256.Sum256([]byte(language + "|" + query))
	return answerCachePrefix + hex.EncodeToString(sum[:])
}

func (s *Service) cacheGet(ctx context.Context, key string) (Answer, bool) {
	if s.cache == nil {
		return Answer{}, false
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("rag: cache read failed", "error", err)
		}
		return Answer{}, false
	}
	var ans Answer
	if err := json.Unmarshal(raw, &ans); err != nil {
		return Answer{}, false
	}
	ans.Cached = true
	return ans, true
}

func (s *Service) cacheSet(ctx context.Context, key string, ans Answer) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(ans)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, answerCacheTTL).Err(); err != nil {
		s.log.Warn("rag: cache write failed", "error", err)
	}
}
