package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"

	"DailyBrief/internal/ports"
	"DailyBrief/internal/summarize"
)

const anthropicMaxTokens = 600

type promptFunc func(system, user, apiKey string, settings types.RequestSettings) (string, error)

// AnthropicClient implements ports.SummaryProvider on the Claude Messages API via llmkit.
type AnthropicClient struct {
	apiKey string
	model  string
	prompt promptFunc
}

var _ ports.SummaryProvider = (*AnthropicClient)(nil)

func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	return &AnthropicClient{apiKey: apiKey, model: model, prompt: llmkitPrompt}
}

func (c *AnthropicClient) Name() string { return "anthropic" }

// Summarize runs the blocking llmkit call in the background so ctx can abandon it.
func (c *AnthropicClient) Summarize(ctx context.Context, req ports.SummaryRequest) (string, error) {
	if c.apiKey == "" || c.model == "" {
		return "", fmt.Errorf("anthropic client misconfigured")
	}

	settings := types.RequestSettings{
		Model:       c.model,
		MaxTokens:   anthropicMaxTokens,
		Temperature: 0.2,
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := c.prompt(summarize.SystemPrompt, summarize.BuildPrompt(req), c.apiKey, settings)
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("anthropic summary: %w", r.err)
		}
		return strings.TrimSpace(r.text), nil
	}
}

func llmkitPrompt(system, user, apiKey string, settings types.RequestSettings) (string, error) {
	response, err := anthropic.PromptWithSettings(system, user, "", apiKey, settings)
	if err != nil {
		return "", err
	}
	if len(response.Content) == 0 {
		return "", fmt.Errorf("no content in response")
	}
	return response.Content[0].Text, nil
}
