package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"support-console/internal/documents"
	"support-console/internal/rag"
)

// BatchEmbedder embeds a batch of texts, preserving order.
type BatchEmbedder interface {
	EmbedContents(ctx context.Context, texts []string) ([][]float32, error)
}

// embedBatchSize keeps each upstream request under the API's batch cap.
const embedBatchSize = 100

// Request is one document to ingest. Either Text or Data must be set;
// Data is run through content extraction based on the filename extension.
type Request struct {
	Filename string
	Text     string
	Data     []byte
	Language string
}

// Service splits uploaded documents, embeds the chunks and stores them.
type Service struct {
	embedder BatchEmbedder
	store    documents.Repository
	splitter RecursiveSplitter
	log      *slog.Logger
}

func NewService(embedder BatchEmbedder, store documents.Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{embedder: embedder, store: store, log: log}
}

// Ingest processes one document and returns the number of stored chunks.
func (s *Service) Ingest(ctx context.Context, req Request) (int, error) {
	text := req.Text
	if text == "" {
		if len(req.Data) == 0 {
			return 0, errors.New("ingest: empty document")
		}
		var err error
		text, err = ExtractContent(req.Filename, req.Data)
		if err != nil {
			return 0, err
		}
	}

	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		return 0, errors.New("ingest: document produced no chunks")
	}

	vectors, err := s.embedBatches(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	language := rag.NormalizeLanguage(req.Language)
	rows := make([]documents.Chunk, len(chunks))
	for i, content := range chunks {
		rows[i] = documents.Chunk{
			Content:   content,
			Embedding: vectors[i],
			Language:  language,
			Metadata:  documents.ChunkMeta{Filename: req.Filename, ChunkIndex: i},
		}
	}
	if err := s.store.InsertChunks(ctx, rows); err != nil {
		return 0, fmt.Errorf("storing chunks: %w", err)
	}

	s.log.Info("document ingested",
		"filename", req.Filename, "language", language, "chunks", len(rows))
	return len(rows), nil
}

// embedBatches embeds chunk batches concurrently, bounded to keep the
// upstream API happy. Results keep chunk order.
func (s *Service) embedBatches(ctx context.Context, chunks []string) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for start := 0; start < len(chunks); start += embedBatchSize {
		start := start
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		g.Go(func() error {
			batch, err := s.embedder.EmbedContents(gCtx, chunks[start:end])
			if err != nil {
				return fmt.Errorf("batch at %d: %w", start, err)
			}
			copy(vectors[start:], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
