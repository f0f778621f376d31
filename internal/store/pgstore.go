package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	"github.com/katakuxiko/ragsearch/internal/model"
)

// PgStore keeps chunks in Postgres with pgvector and serves both vector and
// full-text queries over the same table.
type PgStore struct {
	db *sql.DB
}

// NewPgStore connects and makes sure the schema exists for vectors of dim dimensions.
func NewPgStore(conn string, dim int) (*PgStore, error) {
	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSchema(db, dim); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PgStore{db: db}, nil
}

// Close releases the connection pool.
func (s *PgStore) Close() error {
	return s.db.Close()
}

// Add upserts a chunk and its embedding by chunk id.
func (s *PgStore) Add(ctx context.Context, c model.Chunk, v []float32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunks (chunk_id, title, chunk, embedding)
		VALUES ($1, $2, $3, $4::vector)
		ON CONFLICT (chunk_id) DO UPDATE
		SET title = EXCLUDED.title, chunk = EXCLUDED.chunk, embedding = EXCLUDED.embedding
	`, c.ChunkID, c.Title, c.Content, floatsToPgVectorLiteral(v))
	return err
}

// VectorSearch orders by cosine distance and reports 1 - distance as the score.
// Rows without an embedding, possible in tables created by older schemas, are skipped.
func (s *PgStore) VectorSearch(ctx context.Context, q []float32, k int) ([]model.Chunk, error) {
	return s.query(ctx, `
		SELECT chunk_id, title, chunk, 1 - (embedding <=> $1::vector) AS score
		FROM chunks
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`, floatsToPgVectorLiteral(q), k)
}

// TextSearch ranks rows matching the plain-text query with ts_rank.
func (s *PgStore) TextSearch(ctx context.Context, query string, k int) ([]model.Chunk, error) {
	return s.query(ctx, `
		SELECT chunk_id, title, chunk, ts_rank(chunk_tsv, q) AS score
		FROM chunks, plainto_tsquery('simple', $1) q
		WHERE chunk_tsv @@ q
		ORDER BY score DESC
		LIMIT $2
	`, query, k)
}

func (s *PgStore) query(ctx context.Context, stmt string, args ...any) ([]model.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []model.Chunk
	for rows.Next() {
		var c model.Chunk
		if err := rows.Scan(&c.ChunkID, &c.Title, &c.Content, &c.Score); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func floatsToPgVectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, f := range v {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'f', 6, 32))
	}
	sb.WriteString("]")
	return sb.String()
}
