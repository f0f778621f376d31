package store

import (
	"database/sql"
	"fmt"
)

// ensureSchema creates the pgvector extension, the chunks table and its
// vector and full-text indexes.
func ensureSchema(db *sql.DB, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dim)
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id SERIAL PRIMARY KEY,
			chunk_id TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL DEFAULT '',
			chunk TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			chunk_tsv tsvector GENERATED ALWAYS AS (
				to_tsvector('simple', coalesce(title, '') || ' ' || chunk)
			) STORED
		)`, dim),
		`CREATE INDEX IF NOT EXISTS chunks_embedding_ivfflat_idx
			ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
		`CREATE INDEX IF NOT EXISTS chunks_tsv_idx ON chunks USING gin (chunk_tsv)`,
	}

	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}

	// ivfflat needs fresh statistics to pick sensible probes
	_, _ = db.Exec(`ANALYZE chunks`)
	return nil
}
