package ml

import (
	"context"
	"fmt"
	"time"

	"DailyBrief/internal/ports"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaEmbedder calls a local Ollama server's /api/embed.
type OllamaEmbedder struct {
	client client
}

var _ ports.EmbeddingProvider = (*OllamaEmbedder)(nil)

func NewOllamaEmbedder(baseURL string) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaEmbedder{client: newClient(baseURL, "", 60*time.Second)}
}

func (o *OllamaEmbedder) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result ollamaResponse
	if err := o.client.post(ctx, "/api/embed", ollamaRequest{Model: model, Input: texts}, &result); err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embeddings: got %d vectors for %d inputs", len(result.Embeddings), len(texts))
	}
	return result.Embeddings, nil
}

type ollamaRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}
