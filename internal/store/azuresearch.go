package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/katakuxiko/ragsearch/internal/config"
	"github.com/katakuxiko/ragsearch/internal/model"
)

const selectFields = "chunk_id,title,chunk"

// AzureSearch queries an Azure AI Search index through its REST API.
type AzureSearch struct {
	searchURL   string
	apiKey      string
	vectorField string
	timeout     time.Duration
}

// NewAzureSearch targets the index search endpoint named in cfg.
func NewAzureSearch(cfg *config.Config) *AzureSearch {
	endpoint := strings.TrimRight(cfg.SearchEndpoint, "/")
	return &AzureSearch{
		searchURL: fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s",
			endpoint, url.PathEscape(cfg.SearchIndex), url.QueryEscape(cfg.SearchAPIVersion)),
		apiKey:      cfg.SearchKey,
		vectorField: cfg.SearchVectorField,
		timeout:     cfg.HTTPTimeout,
	}
}

type vectorQuery struct {
	Kind   string    `json:"kind"`
	Vector []float32 `json:"vector"`
	K      int       `json:"k"`
	Fields string    `json:"fields"`
}

type searchRequest struct {
	Search        string        `json:"search,omitempty"`
	Top           int           `json:"top"`
	Select        string        `json:"select"`
	VectorQueries []vectorQuery `json:"vectorQueries,omitempty"`
}

type searchDocument struct {
	ChunkID string  `json:"chunk_id"`
	Title   string  `json:"title"`
	Chunk   string  `json:"chunk"`
	Score   float64 `json:"@search.score"`
}

type searchResponse struct {
	Value []searchDocument `json:"value"`
}

// VectorSearch returns the topK nearest neighbours of vector over the
// configured vector field.
func (s *AzureSearch) VectorSearch(ctx context.Context, vector []float32, topK int) ([]model.Chunk, error) {
	return s.search(ctx, searchRequest{
		Top:    topK,
		Select: selectFields,
		VectorQueries: []vectorQuery{{
			Kind:   "vector",
			Vector: vector,
			K:      topK,
			Fields: s.vectorField,
		}},
	})
}

// TextSearch runs a plain full-text query.
func (s *AzureSearch) TextSearch(ctx context.Context, query string, topK int) ([]model.Chunk, error) {
	return s.search(ctx, searchRequest{
		Search: query,
		Top:    topK,
		Select: selectFields,
	})
}

func (s *AzureSearch) search(ctx context.Context, body searchRequest) ([]model.Chunk, error) {
	// the fasthttp agent has no context support; honour cancellation before sending
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agent := fiber.Post(s.searchURL)
	agent.Set("api-key", s.apiKey)
	if s.timeout > 0 {
		agent.Timeout(s.timeout)
	}
	agent.JSON(body)

	code, raw, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("azure search request: %w", errors.Join(errs...))
	}
	if code < 200 || code >= 300 {
		return nil, fmt.Errorf("azure search returned %d: %s", code, strings.TrimSpace(string(raw)))
	}

	var resp searchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode azure search response: %w", err)
	}

	chunks := make([]model.Chunk, 0, len(resp.Value))
	for _, d := range resp.Value {
		chunks = append(chunks, model.Chunk{
			ChunkID: d.ChunkID,
			Title:   d.Title,
			Content: d.Chunk,
			Score:   d.Score,
		})
	}
	return chunks, nil
}
