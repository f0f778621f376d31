package service

import (
	"context"

	"github.com/apex/log"

	"github.com/katakuxiko/ragsearch/internal/model"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embedding(ctx context.Context, text string) ([]float32, error)
}

// Searcher is a search backend that supports both nearest-neighbour and
// keyword queries over the same index.
type Searcher interface {
	VectorSearch(ctx context.Context, vector []float32, topK int) ([]model.Chunk, error)
	TextSearch(ctx context.Context, query string, topK int) ([]model.Chunk, error)
}

// RetrievalPath names the search that produced a Retrieval.
type RetrievalPath string

const (
	PathVector  RetrievalPath = "vector"
	PathKeyword RetrievalPath = "keyword"
)

// Retrieval is the tagged outcome of a successful Retrieve.
type Retrieval struct {
	Path   RetrievalPath
	Chunks []model.Chunk
	// VectorErr is why the vector path was abandoned; nil when Path is PathVector.
	VectorErr error
}

// Retriever runs a vector search and falls back to keyword search when the
// embedding or the vector query fails.
type Retriever struct {
	embedder Embedder
	searcher Searcher
}

// NewRetriever returns a Retriever over searcher using embedder for queries.
func NewRetriever(embedder Embedder, searcher Searcher) *Retriever {
	return &Retriever{embedder: embedder, searcher: searcher}
}

// Retrieve tries vector search first and falls back to keyword search on any
// failure of the embedding or vector query. If the keyword query also fails
// its error is returned as is.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) (Retrieval, error) {
	chunks, vecErr := r.vectorSearch(ctx, query, topK)
	if vecErr == nil {
		return Retrieval{Path: PathVector, Chunks: chunks}, nil
	}

	log.WithError(vecErr).Warn("vector search failed, falling back to text search")

	chunks, err := r.searcher.TextSearch(ctx, query, topK)
	if err != nil {
		return Retrieval{}, err
	}
	return Retrieval{Path: PathKeyword, Chunks: chunks, VectorErr: vecErr}, nil
}

func (r *Retriever) vectorSearch(ctx context.Context, query string, topK int) ([]model.Chunk, error) {
	vec, err := r.embedder.Embedding(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.searcher.VectorSearch(ctx, vec, topK)
}
