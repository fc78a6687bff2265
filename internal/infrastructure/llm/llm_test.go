package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aktagon/llmkit/anthropic/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DailyBrief/internal/config"
	"DailyBrief/internal/ports"
)

func TestChatGPTSummarize(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Contains(t, req.Messages[1].Content, "TITLE: Chips")

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  - fab output doubled \n"}}]}`))
	}))
	defer srv.Close()

	client := NewChatGPTClient(config.ChatGPTConfig{Endpoint: srv.URL, APIKey: "sk-test"}, "gpt-4o-mini")
	got, err := client.Summarize(context.Background(), ports.SummaryRequest{Title: "Chips", Text: "body"})
	require.NoError(t, err)
	assert.Equal(t, "- fab output doubled", got)
}

func TestChatGPTErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "empty") {
			_, _ = w.Write([]byte(`{"choices":[]}`))
			return
		}
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewChatGPTClient(config.ChatGPTConfig{Endpoint: srv.URL, APIKey: "k"}, "m").
		Summarize(context.Background(), ports.SummaryRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")

	_, err = NewChatGPTClient(config.ChatGPTConfig{Endpoint: srv.URL + "/empty", APIKey: "k"}, "m").
		Summarize(context.Background(), ports.SummaryRequest{})
	require.Error(t, err)

	_, err = NewChatGPTClient(config.ChatGPTConfig{Endpoint: srv.URL}, "m").
		Summarize(context.Background(), ports.SummaryRequest{})
	require.Error(t, err)
}

func TestAnthropicSummarize(t *testing.T) {
	t.Parallel()

	client := NewAnthropicClient("key", "claude-3-5-haiku-latest")
	client.prompt = func(system, user, apiKey string, settings types.RequestSettings) (string, error) {
		assert.Equal(t, "key", apiKey)
		assert.Equal(t, "claude-3-5-haiku-latest", settings.Model)
		assert.Contains(t, user, "TITLE: Fusion")
		assert.NotEmpty(t, system)
		return " - net energy gain\n", nil
	}

	got, err := client.Summarize(context.Background(), ports.SummaryRequest{Title: "Fusion", Text: "text"})
	require.NoError(t, err)
	assert.Equal(t, "- net energy gain", got)
}

func TestAnthropicFailures(t *testing.T) {
	t.Parallel()

	_, err := NewAnthropicClient("", "m").Summarize(context.Background(), ports.SummaryRequest{})
	require.Error(t, err)

	failing := NewAnthropicClient("key", "m")
	failing.prompt = func(string, string, string, types.RequestSettings) (string, error) {
		return "", errors.New("overloaded")
	}
	_, err = failing.Summarize(context.Background(), ports.SummaryRequest{})
	require.ErrorContains(t, err, "overloaded")

	slow := NewAnthropicClient("key", "m")
	release := make(chan struct{})
	defer close(release)
	slow.prompt = func(string, string, string, types.RequestSettings) (string, error) {
		<-release
		return "late", nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = slow.Summarize(ctx, ports.SummaryRequest{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
