package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katakuxiko/ragsearch/internal/model"
	"github.com/katakuxiko/ragsearch/internal/service"
)

type stubAnswerer struct {
	calls int
	last  model.Query
	err   error
}

func (s *stubAnswerer) Answer(_ context.Context, q model.Query) (*model.Answer, error) {
	s.calls++
	s.last = q
	if s.err != nil {
		return nil, s.err
	}
	return &model.Answer{
		Text:        "stub answer",
		Sources:     []model.Chunk{{ChunkID: "c1", Title: "T", Content: "text", Score: 0.5}},
		Model:       q.Model,
		Temperature: q.Temperature,
	}, nil
}

func newTestApp(rag Answerer, startErr error) *fiber.App {
	app := NewApp("*")
	RegisterRoutes(app, NewHandler(rag, startErr))
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func TestRoot(t *testing.T) {
	resp, body := do(t, newTestApp(&stubAnswerer{}, nil), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["message"])
}

func TestHealthReady(t *testing.T) {
	resp, body := do(t, newTestApp(&stubAnswerer{}, nil), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "RAG Backend", body["service"])
	assert.Equal(t, true, body["rag_service_initialized"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestModels(t *testing.T) {
	stub := &stubAnswerer{}
	app := newTestApp(stub, nil)

	for i := 0; i < 2; i++ {
		resp, body := do(t, app, http.MethodGet, "/models", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []any{"gpt-4o-mini", "grok-3", "DeepSeek-R1", "gpt-4o"}, body["models"])
		assert.Equal(t, "gpt-4o-mini", body["default"])

		do(t, app, http.MethodPost, "/query", `{"userQuestion":"q","model":"grok-3"}`)
	}
}

func TestQueryDefaults(t *testing.T) {
	stub := &stubAnswerer{}
	resp, body := do(t, newTestApp(stub, nil), http.MethodPost, "/query", `{"userQuestion":"What is nitrogen?"}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gpt-4o-mini", stub.last.Model)
	assert.Equal(t, 0.7, stub.last.Temperature)
	assert.Empty(t, stub.last.Context)
	assert.Equal(t, "gpt-4o-mini", body["selected_model"])
	assert.Equal(t, 0.7, body["temperature"])
}

func TestQueryPassThrough(t *testing.T) {
	tests := []struct {
		model       string
		temperature float64
	}{
		{"gpt-4o-mini", 0},
		{"grok-3", 0.3},
		{"DeepSeek-R1", 1},
		{"gpt-4o", 0.55},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			stub := &stubAnswerer{}
			payload, _ := json.Marshal(map[string]any{
				"userQuestion": "q",
				"model":        tt.model,
				"temperature":  tt.temperature,
				"context":      "Be formal.",
			})
			resp, body := do(t, newTestApp(stub, nil), http.MethodPost, "/query", string(payload))

			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.model, body["selected_model"])
			assert.Equal(t, tt.temperature, body["temperature"])
			assert.Equal(t, "Be formal.", stub.last.Context)

			sources := body["sources"].([]any)
			require.Len(t, sources, 1)
			src := sources[0].(map[string]any)
			assert.Equal(t, "c1", src["chunk_id"])
			assert.Equal(t, "text", src["chunk"])
		})
	}
}

func TestQueryValidation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		detail string
	}{
		{"unknown model", `{"userQuestion":"q","model":"gpt-3.5-turbo"}`, http.StatusUnprocessableEntity, "model must be one of"},
		{"temperature too high", `{"userQuestion":"q","temperature":1.5}`, http.StatusUnprocessableEntity, "temperature must be <= 1"},
		{"temperature negative", `{"userQuestion":"q","temperature":-0.1}`, http.StatusUnprocessableEntity, "temperature must be >= 0"},
		{"missing question", `{"model":"gpt-4o"}`, http.StatusUnprocessableEntity, "userQuestion is required"},
		{"empty question", `{"userQuestion":""}`, http.StatusUnprocessableEntity, "userQuestion is required"},
		{"empty model", `{"userQuestion":"q","model":""}`, http.StatusUnprocessableEntity, "model must be one of"},
		{"null model", `{"userQuestion":"q","model":null}`, http.StatusUnprocessableEntity, "model must not be null"},
		{"null temperature", `{"userQuestion":"q","temperature":null}`, http.StatusUnprocessableEntity, "temperature must not be null"},
		{"malformed json", `{"userQuestion":`, http.StatusBadRequest, ""},
		{"wrong type", `{"userQuestion":"q","temperature":"hot"}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAnswerer{}
			resp, body := do(t, newTestApp(stub, nil), http.MethodPost, "/query", tt.body)

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, 0, stub.calls, "orchestrator must not run")
			assert.NotEmpty(t, body["error"])
			if tt.detail != "" {
				assert.Contains(t, body["detail"], tt.detail)
			}
		})
	}
}

func TestQueryOrchestratorFailure(t *testing.T) {
	stub := &stubAnswerer{err: errors.New("answer generation failed: generation: quota exceeded")}
	resp, body := do(t, newTestApp(stub, nil), http.MethodPost, "/query", `{"userQuestion":"q"}`)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal server error", body["error"])
	assert.Contains(t, body["detail"], "quota exceeded")
}

func TestUnavailableService(t *testing.T) {
	app := newTestApp(nil, errors.New("missing required environment variables: AZURE_SEARCH_INDEX"))

	resp, body := do(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, false, body["rag_service_initialized"])
	assert.Contains(t, body["error"], "AZURE_SEARCH_INDEX")

	for _, payload := range []string{`{"userQuestion":"q"}`, `{"model":"nope"}`, `garbage`} {
		resp, body = do(t, app, http.MethodPost, "/query", payload)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, payload)
		assert.Contains(t, body["detail"], "AZURE_SEARCH_INDEX")
	}

	resp, _ = do(t, app, http.MethodGet, "/models", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNilAnswererWithoutError(t *testing.T) {
	resp, body := do(t, newTestApp(nil, nil), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body["error"], "not initialized")
}

func TestUnknownRoute(t *testing.T) {
	resp, body := do(t, newTestApp(&stubAnswerer{}, nil), http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Not Found", body["error"])
}

// The tests below drive the real pipeline with stubbed remote clients.

type stubEmbedder struct{ err error }

func (s stubEmbedder) Embedding(context.Context, string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{0.1, 0.2}, nil
}

type stubSearcher struct {
	vector    []model.Chunk
	vectorErr error
	text      []model.Chunk
	textErr   error
}

func (s stubSearcher) VectorSearch(context.Context, []float32, int) ([]model.Chunk, error) {
	return s.vector, s.vectorErr
}

func (s stubSearcher) TextSearch(context.Context, string, int) ([]model.Chunk, error) {
	return s.text, s.textErr
}

type stubGenerator struct{}

func (stubGenerator) Complete(_ context.Context, _ string, _ float64, system, _ string) (string, error) {
	if !strings.Contains(system, "Context:") {
		return "", errors.New("missing grounding")
	}
	return "Nitrogen fertilization supplies N to crops.", nil
}

func pipelineApp(emb service.Embedder, s service.Searcher) *fiber.App {
	rag := service.NewRAGService(service.NewRetriever(emb, s), stubGenerator{}, service.DefaultTopK)
	return newTestApp(rag, nil)
}

var twoChunks = []model.Chunk{
	{ChunkID: "agro_chunk_0", Title: "Agronomy", Content: "Nitrogen is a key nutrient.", Score: 0.89},
	{ChunkID: "agro_chunk_1", Title: "Agronomy", Content: "Fertilization adds nutrients to soil.", Score: 0.84},
}

func TestQueryScenarioTwoChunks(t *testing.T) {
	app := pipelineApp(stubEmbedder{}, stubSearcher{vector: twoChunks})

	resp, body := do(t, app, http.MethodPost, "/query",
		`{"userQuestion": "What is nitrogen fertilization?", "model": "gpt-4o-mini", "temperature": 0.7}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["sources"], 2)
	assert.Equal(t, "gpt-4o-mini", body["selected_model"])
	assert.Equal(t, 0.7, body["temperature"])
	assert.NotEmpty(t, body["answer"])
}

func TestQueryScenarioKeywordFallback(t *testing.T) {
	kw := []model.Chunk{{ChunkID: "kw_1", Title: "T", Content: "keyword hit", Score: 2.1}}
	app := pipelineApp(stubEmbedder{err: errors.New("embedding deployment missing")}, stubSearcher{text: kw})

	resp, body := do(t, app, http.MethodPost, "/query", `{"userQuestion":"nitrogen"}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	sources := body["sources"].([]any)
	require.Len(t, sources, 1)
	assert.Equal(t, "kw_1", sources[0].(map[string]any)["chunk_id"])
}

func TestQueryScenarioBothRetrievalPathsFail(t *testing.T) {
	app := pipelineApp(stubEmbedder{}, stubSearcher{
		vectorErr: errors.New("vector field missing"),
		textErr:   errors.New("azure search returned 503: service busy"),
	})

	resp, body := do(t, app, http.MethodPost, "/query", `{"userQuestion":"nitrogen"}`)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body["detail"], "azure search returned 503: service busy")
	assert.Contains(t, body["detail"], "answer generation failed")
}

func TestQueryScenarioNoMatches(t *testing.T) {
	app := pipelineApp(stubEmbedder{}, stubSearcher{})

	resp, body := do(t, app, http.MethodPost, "/query", `{"userQuestion":"unknown topic"}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{}, body["sources"])
}
