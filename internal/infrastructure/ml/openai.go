package ml

import (
	"context"
	"fmt"
	"sort"
	"time"

	"DailyBrief/internal/ports"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1/embeddings"

// OpenAIEmbedder calls the OpenAI embeddings endpoint with the whole batch in one request.
type OpenAIEmbedder struct {
	client client
}

var _ ports.EmbeddingProvider = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder targets endpoint, or the public API when empty.
func NewOpenAIEmbedder(endpoint, apiKey string) *OpenAIEmbedder {
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}
	return &OpenAIEmbedder{client: newClient(endpoint, apiKey, 30*time.Second)}
}

// Embed returns one vector per text, ordered like the input.
func (o *OpenAIEmbedder) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result openAIResponse
	if err := o.client.post(ctx, "", openAIRequest{Model: model, Input: texts}, &result); err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(result.Data), len(texts))
	}

	sort.Slice(result.Data, func(i, j int) bool {
		return result.Data[i].Index < result.Data[j].Index
	})

	vecs := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

type openAIRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIResponse struct {
	Data []openAIEmbedding `json:"data"`
}

type openAIEmbedding struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}
