package documents

import "time"

// Chunk is one embedded slice of an uploaded knowledge-base document.
// Embedding dimensionality matches the embedding model (768).
type Chunk struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	Metadata  ChunkMeta `json:"metadata"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"created_at"`
}

type ChunkMeta struct {
	Filename   string `json:"filename"`
	ChunkIndex int    `json:"chunk_index"`
}

// Match is a search hit with its cosine similarity score.
type Match struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Metadata   ChunkMeta `json:"metadata"`
	Language   string    `json:"language"`
	Similarity float64   `json:"similarity"`
}

// DocumentInfo is the per-file view of the chunk table for listings.
type DocumentInfo struct {
	Filename   string    `json:"filename"`
	Language   string    `json:"language"`
	ChunkCount int       `json:"chunk_count"`
	Preview    string    `json:"preview"`
	ChunkIDs   []string  `json:"chunk_ids"`
	CreatedAt  time.Time `json:"created_at"`
}
