package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"support-console/pkg/utils"
)

// NOTE: This repository assumes:
// - a "documents" table with an embedding vector(768) column (pgvector)
// - a match_documents(query_embedding vector, match_count int, filter_language text)
//   SQL function returning (id, content, metadata, language, similarity)
//   ordered by cosine similarity.

var ErrNotFound = errors.New("documents: not found")

type Repository interface {
	InsertChunks(ctx context.Context, chunks []Chunk) error
	Search(ctx context.Context, embedding []float32, matchCount int, language string) ([]Match, error)
	List(ctx context.Context) ([]DocumentInfo, error)
	Delete(ctx context.Context, id string) error
	DeleteByFilename(ctx context.Context, filename string) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) InsertChunks(ctx context.Context, chunks []Chunk) error {
	const q = `
INSERT INTO documents (id, content, embedding, metadata, language, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
	// One document's chunks land together or not at all.
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		now := time.Now().UTC()
		for _, ch := range chunks {
			id := ch.ID
			if id == "" {
				id = uuid.NewString()
			}
			meta, err := json.Marshal(ch.Metadata)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, q,
				id, ch.Content, pgvector.NewVector(ch.Embedding), meta, ch.Language, now,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PostgresRepo) Search(ctx context.Context, embedding []float32, matchCount int, language string) ([]Match, error) {
	const q = `SELECT id, content, metadata, language, similarity FROM match_documents($1, $2, $3)`
	if matchCount <= 0 {
		matchCount = 5
	}
	rows, err := r.db.QueryContext(ctx, q, pgvector.NewVector(embedding), matchCount, language)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Match, 0, matchCount)
	for rows.Next() {
		var m Match
		var meta []byte
		if err := rows.Scan(&m.ID, &m.Content, &meta, &m.Language, &m.Similarity); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &m.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) List(ctx context.Context) ([]DocumentInfo, error) {
	const q = `
SELECT id, content, metadata, language, created_at
FROM documents
ORDER BY created_at DESC, (metadata->>'chunk_index')::int ASC
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := make([]Chunk, 0)
	for rows.Next() {
		var ch Chunk
		var meta []byte
		if err := rows.Scan(&ch.ID, &ch.Content, &meta, &ch.Language, &ch.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ch.Metadata); err != nil {
				return nil, err
			}
		}
		chunks = append(chunks, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return GroupByFilename(chunks), nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM documents WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) DeleteByFilename(ctx context.Context, filename string) (int, error) {
	const q = `DELETE FROM documents WHERE metadata->>'filename' = $1`
	res, err := r.db.ExecContext(ctx, q, filename)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return int(n), nil
}

// GroupByFilename folds chunk rows into per-file summaries, newest file
// first. The preview comes from the file's first chunk.
func GroupByFilename(chunks []Chunk) []DocumentInfo {
	byFile := map[string]*DocumentInfo{}
	first := map[string]Chunk{}
	order := make([]string, 0)

	for _, ch := range chunks {
		name := ch.Metadata.Filename
		if name == "" {
			name = "untitled"
		}
		info, ok := byFile[name]
		if !ok {
			info = &DocumentInfo{Filename: name, Language: ch.Language, CreatedAt: ch.CreatedAt}
			byFile[name] = info
			first[name] = ch
			order = append(order, name)
		}
		info.ChunkCount++
		info.ChunkIDs = append(info.ChunkIDs, ch.ID)
		if ch.CreatedAt.After(info.CreatedAt) {
			info.CreatedAt = ch.CreatedAt
		}
		if ch.Metadata.ChunkIndex < first[name].Metadata.ChunkIndex {
			first[name] = ch
		}
	}

	out := make([]DocumentInfo, 0, len(order))
	for _, name := range order {
		info := byFile[name]
		info.Preview = preview(first[name].Content)
		out = append(out, *info)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func preview(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
