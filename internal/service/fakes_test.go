package service

import (
	"context"

	"github.com/katakuxiko/ragsearch/internal/model"
)

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embedding(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	return f.vec, f.err
}

type fakeSearcher struct {
	vectorChunks []model.Chunk
	vectorErr    error
	textChunks   []model.Chunk
	textErr      error

	vectorCalls int
	textCalls   int
	lastTopK    int
	lastQuery   string
}

func (f *fakeSearcher) VectorSearch(_ context.Context, _ []float32, topK int) ([]model.Chunk, error) {
	f.vectorCalls++
	f.lastTopK = topK
	return f.vectorChunks, f.vectorErr
}

func (f *fakeSearcher) TextSearch(_ context.Context, query string, topK int) ([]model.Chunk, error) {
	f.textCalls++
	f.lastTopK = topK
	f.lastQuery = query
	return f.textChunks, f.textErr
}

type fakeGenerator struct {
	answer string
	err    error

	model       string
	temperature float64
	system      string
	user        string
	calls       int
}

func (f *fakeGenerator) Complete(_ context.Context, model string, temperature float64, system, user string) (string, error) {
	f.calls++
	f.model, f.temperature, f.system, f.user = model, temperature, system, user
	return f.answer, f.err
}
