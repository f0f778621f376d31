package model

import (
	"bytes"
	"encoding/json"
)

// Defaults applied to a query that leaves model or temperature out.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.7
)

var supportedModels = []string{"gpt-4o-mini", "grok-3", "DeepSeek-R1", "gpt-4o"}

// SupportedModels returns a fresh copy of the fixed model list.
func SupportedModels() []string {
	out := make([]string, len(supportedModels))
	copy(out, supportedModels)
	return out
}

// Chunk is a retrieved unit of source text as ranked by the search backend.
type Chunk struct {
	ChunkID string  `json:"chunk_id"`
	Title   string  `json:"title"`
	Content string  `json:"chunk"`
	Score   float64 `json:"score"`
}

// Query is a validated question with its generation settings resolved.
type Query struct {
	Question    string
	Model       string
	Temperature float64
	// Context replaces the default system instruction when non-empty.
	Context string
}

// Answer is the generated reply together with the chunks it was grounded on.
type Answer struct {
	Text        string
	Sources     []Chunk
	Model       string
	Temperature float64
	// Retrieval names the search path that produced Sources.
	Retrieval string
}

// QueryRequest is the POST /query body. model and temperature may be left
// out but not sent as null.
type QueryRequest struct {
	UserQuestion string   `json:"userQuestion" validate:"required"`
	Model        *string  `json:"model,omitempty" validate:"omitnil,oneof=gpt-4o-mini grok-3 DeepSeek-R1 gpt-4o"`
	Temperature  *float64 `json:"temperature,omitempty" validate:"omitnil,gte=0,lte=1"`
	Context      *string  `json:"context,omitempty"`

	nullFields []string
}

var nonNullable = []string{"model", "temperature"}

// UnmarshalJSON decodes the body and records the non-nullable fields that were
// sent as an explicit null, which a plain decode cannot tell from absent ones.
func (r *QueryRequest) UnmarshalJSON(data []byte) error {
	type plain QueryRequest
	if err := json.Unmarshal(data, (*plain)(r)); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.nullFields = nil
	for _, name := range nonNullable {
		if v, ok := raw[name]; ok && bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			r.nullFields = append(r.nullFields, name)
		}
	}
	return nil
}

// NullFields lists the non-nullable fields the body set to null.
func (r QueryRequest) NullFields() []string {
	return r.nullFields
}

// ToQuery applies the defaults for absent optional fields.
func (r QueryRequest) ToQuery() Query {
	q := Query{
		Question:    r.UserQuestion,
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
	}
	if r.Model != nil {
		q.Model = *r.Model
	}
	if r.Temperature != nil {
		q.Temperature = *r.Temperature
	}
	if r.Context != nil {
		q.Context = *r.Context
	}
	return q
}

// QueryResponse is the POST /query success body.
type QueryResponse struct {
	Answer        string  `json:"answer"`
	Sources       []Chunk `json:"sources"`
	SelectedModel string  `json:"selected_model"`
	Temperature   float64 `json:"temperature"`
}

// NewQueryResponse renders a as a response; sources is never null.
func NewQueryResponse(a *Answer) QueryResponse {
	sources := a.Sources
	if sources == nil {
		sources = []Chunk{}
	}
	return QueryResponse{
		Answer:        a.Text,
		Sources:       sources,
		SelectedModel: a.Model,
		Temperature:   a.Temperature,
	}
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Initialized bool   `json:"rag_service_initialized"`
	Error       string `json:"error,omitempty"`
}

// ModelsResponse is the GET /models body.
type ModelsResponse struct {
	Models  []string `json:"models"`
	Default string   `json:"default"`
}
