package service

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/katakuxiko/ragsearch/internal/config"
)

// LLMClient talks to Azure OpenAI for both embeddings and chat completions.
// Model names double as Azure deployment names.
type LLMClient struct {
	client     *openai.Client
	embedModel string
}

// NewLLMClient builds a client from the Azure OpenAI settings in cfg.
func NewLLMClient(cfg *config.Config) *LLMClient {
	oaiCfg := openai.DefaultAzureConfig(cfg.OpenAIKey, cfg.OpenAIEndpoint)
	oaiCfg.APIVersion = cfg.OpenAIAPIVersion
	oaiCfg.AzureModelMapperFunc = func(model string) string { return model }
	oaiCfg.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}

	return &LLMClient{
		client:     openai.NewClientWithConfig(oaiCfg),
		embedModel: cfg.EmbedModel,
	}
}

// Embedding returns the embedding vector of text.
func (l *LLMClient) Embedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := l.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(l.embedModel),
		Input: []string{text},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("embedding response has no data")
	}
	return resp.Data[0].Embedding, nil
}

// Complete sends one system + user exchange and returns the first choice.
func (l *LLMClient) Complete(ctx context.Context, model string, temperature float64, system, user string) (string, error) {
	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: wireTemperature(temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// go-openai drops a zero temperature (omitempty), which the API then reads as 1.
func wireTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}
