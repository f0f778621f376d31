package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/apex/log"

	"github.com/katakuxiko/ragsearch/internal/model"
	"github.com/katakuxiko/ragsearch/internal/util"
)

const (
	// DefaultTopK is used when NewRAGService is given a non-positive top k.
	DefaultTopK = 3

	defaultInstruction = "You are an AI Assistant.\nBe brief in your answers. Answer ONLY with the facts listed in the retrieved text."
)

// ErrAnswerGeneration wraps every failure returned by RAGService.Answer.
var ErrAnswerGeneration = errors.New("answer generation failed")

// StageError records which pipeline stage failed.
type StageError struct {
	Stage string // "retrieval" or "generation"
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// Generator produces a chat completion for a system + user exchange.
type Generator interface {
	Complete(ctx context.Context, model string, temperature float64, system, user string) (string, error)
}

// RAGService answers questions grounded in retrieved chunks. It holds no
// per-request state and is safe for concurrent use.
type RAGService struct {
	retriever *Retriever
	generator Generator
	topK      int
}

// NewRAGService combines a retriever and a generator; topK chunks feed each prompt.
func NewRAGService(retriever *Retriever, generator Generator, topK int) *RAGService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &RAGService{retriever: retriever, generator: generator, topK: topK}
}

// Answer retrieves the top chunks for q.Question and asks the chat model to
// answer from them. Model and temperature are echoed from q.
func (s *RAGService) Answer(ctx context.Context, q model.Query) (*model.Answer, error) {
	logger := log.WithFields(log.Fields{
		"question":    util.TruncateRunes(q.Question, 80),
		"model":       q.Model,
		"temperature": q.Temperature,
	})

	retrieval, err := s.retriever.Retrieve(ctx, q.Question, s.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnswerGeneration, &StageError{Stage: "retrieval", Err: err})
	}
	logger.WithFields(log.Fields{
		"path":   retrieval.Path,
		"chunks": len(retrieval.Chunks),
	}).Info("retrieved context")

	system := BuildSystemPrompt(q.Context, retrieval.Chunks)

	text, err := s.generator.Complete(ctx, q.Model, q.Temperature, system, q.Question)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnswerGeneration, &StageError{Stage: "generation", Err: err})
	}

	return &model.Answer{
		Text:        text,
		Sources:     retrieval.Chunks,
		Model:       q.Model,
		Temperature: q.Temperature,
		Retrieval:   string(retrieval.Path),
	}, nil
}

// BuildSystemPrompt joins chunk contents in ranking order and frames them with
// either the caller's context or the default instruction.
func BuildSystemPrompt(custom string, chunks []model.Chunk) string {
	var grounding strings.Builder
	for _, ch := range chunks {
		grounding.WriteString(ch.Content)
		grounding.WriteString("\n\n")
	}

	if custom != "" {
		return fmt.Sprintf("%s\n\nContext from knowledge base:\n%s", custom, grounding.String())
	}
	return fmt.Sprintf("%s\n\nContext:\n%s", defaultInstruction, grounding.String())
}
