package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"support-console/internal/documents"
)

type stubEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubEmbedder) EmbedContents(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func TestIngest_TextDocument(t *testing.T) {
	emb := &stubEmbedder{}
	store := documents.NewMemoryRepo()
	svc := NewService(emb, store, nil)

	text := strings.Repeat("support answers live here. ", 100)
	n, err := svc.Ingest(context.Background(), Request{
		Filename: "faq.md",
		Text:     text,
		Language: "ar",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n < 2 {
		t.Fatalf("chunks = %d, want several for %d bytes", n, len(text))
	}

	infos, _ := store.List(context.Background())
	if len(infos) != 1 {
		t.Fatalf("files = %d", len(infos))
	}
	if infos[0].Filename != "faq.md" || infos[0].ChunkCount != n {
		t.Fatalf("listing = %+v", infos[0])
	}
	if infos[0].Language != "ar-SA" {
		t.Fatalf("language = %q, want normalized ar-SA", infos[0].Language)
	}
}

func TestIngest_ChunkIndexesAreSequential(t *testing.T) {
	emb := &stubEmbedder{}
	store := documents.NewMemoryRepo()
	svc := NewService(emb, store, nil)

	n, err := svc.Ingest(context.Background(), Request{
		Filename: "doc.txt",
		Text:     strings.Repeat("para one.\n\n", 200),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	matches, _ := store.Search(context.Background(), []float32{1, 1}, n, "en-US")
	seen := map[int]bool{}
	for _, m := range matches {
		seen[m.Metadata.ChunkIndex] = true
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			t.Fatalf("chunk index %d missing", i)
		}
	}
}

func TestIngest_EmptyDocumentRejected(t *testing.T) {
	svc := NewService(&stubEmbedder{}, documents.NewMemoryRepo(), nil)
	if _, err := svc.Ingest(context.Background(), Request{Filename: "empty.txt"}); err == nil {
		t.Fatalf("empty document accepted")
	}
}

func TestIngest_EmbedFailurePropagates(t *testing.T) {
	emb := &stubEmbedder{err: errors.New("quota exceeded")}
	store := documents.NewMemoryRepo()
	svc := NewService(emb, store, nil)

	if _, err := svc.Ingest(context.Background(), Request{Filename: "f.txt", Text: "hello"}); err == nil {
		t.Fatalf("embed failure swallowed")
	}
	if infos, _ := store.List(context.Background()); len(infos) != 0 {
		t.Fatalf("chunks stored despite embed failure")
	}
}

func TestIngest_LargeDocumentUsesMultipleBatches(t *testing.T) {
	emb := &stubEmbedder{}
	store := documents.NewMemoryRepo()
	svc := NewService(emb, store, nil)

	// Force > embedBatchSize chunks via tiny paragraphs.
	var sb strings.Builder
	for i := 0; i < embedBatchSize+20; i++ {
		sb.WriteString(strings.Repeat("sentence. ", 120))
		sb.WriteString("\n\n")
	}
	n, err := svc.Ingest(context.Background(), Request{Filename: "big.txt", Text: sb.String()})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n <= embedBatchSize {
		t.Fatalf("chunks = %d, want more than one batch", n)
	}
	if emb.calls < 2 {
		t.Fatalf("embedder calls = %d, want parallel batches", emb.calls)
	}
}
