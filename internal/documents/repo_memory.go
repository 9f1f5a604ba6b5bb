package documents

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo keeps chunks in a slice and ranks searches by cosine
// similarity, matching the match_documents SQL function.
type MemoryRepo struct {
	mu     sync.Mutex
	chunks []Chunk
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) InsertChunks(ctx context.Context, chunks []Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, ch := range chunks {
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		if ch.CreatedAt.IsZero() {
			ch.CreatedAt = now
		}
		r.chunks = append(r.chunks, ch)
	}
	return nil
}

func (r *MemoryRepo) Search(ctx context.Context, embedding []float32, matchCount int, language string) ([]Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if matchCount <= 0 {
		matchCount = 5
	}

	out := make([]Match, 0)
	for _, ch := range r.chunks {
		if language != "" && ch.Language != language {
			continue
		}
		out = append(out, Match{
			ID:         ch.ID,
			Content:    ch.Content,
			Metadata:   ch.Metadata,
			Language:   ch.Language,
			Similarity: cosine(embedding, ch.Embedding),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > matchCount {
		out = out[:matchCount]
	}
	return out, nil
}

func (r *MemoryRepo) List(ctx context.Context) ([]DocumentInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return GroupByFilename(append([]Chunk(nil), r.chunks...)), nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, ch := range r.chunks {
		if ch.ID == id {
			r.chunks = append(r.chunks[:i], r.chunks[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepo) DeleteByFilename(ctx context.Context, filename string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.chunks[:0]
	removed := 0
	for _, ch := range r.chunks {
		if ch.Metadata.Filename == filename {
			removed++
			continue
		}
		kept = append(kept, ch)
	}
	r.chunks = kept
	if removed == 0 {
		return 0, ErrNotFound
	}
	return removed, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
