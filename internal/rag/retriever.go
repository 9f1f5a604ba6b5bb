package rag

import (
	"context"
	"strings"

	"support-console/internal/documents"
)

// Embedder turns text into a query vector.
type Embedder interface {
	EmbedContent(ctx context.Context, text string) ([]float32, error)
}

// NoContextSentinel is handed to the model when the store returns nothing,
// so the instructions still force a polite decline.
const NoContextSentinel = "No relevant documents found."

const defaultMatchCount = 5

// Retriever resolves a question to its top matching document chunks.
type Retriever struct {
	Embedder Embedder
	Store    documents.Repository
	K        int
}

func (r *Retriever) Retrieve(ctx context.Context, query, language string) ([]documents.Match, error) {
	vec, err := r.Embedder.EmbedContent(ctx, query)
	if err != nil {
		return nil, err
	}
	k := r.K
	if k <= 0 {
		k = defaultMatchCount
	}
	return r.Store.Search(ctx, vec, k, NormalizeLanguage(language))
}

// ContextText joins chunk contents for prompt substitution.
func ContextText(matches []documents.Match) string {
	if len(matches) == 0 {
		return NoContextSentinel
	}
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n---\n")
}
