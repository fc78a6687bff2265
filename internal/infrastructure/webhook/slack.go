package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"DailyBrief/internal/ports"
)

// SlackNotifier posts the digest to an incoming webhook.
type SlackNotifier struct {
	url    string
	client *http.Client
}

var _ ports.Notifier = (*SlackNotifier)(nil)

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		url:    webhookURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackNotifier) Channel() string { return "slack" }

// Deliver sends {"text": "*subject*\n<markdown>"}.
func (s *SlackNotifier) Deliver(ctx context.Context, subject, markdown string) error {
	if s.url == "" {
		return fmt.Errorf("slack webhook url is empty")
	}

	body, err := json.Marshal(map[string]string{"text": fmt.Sprintf("*%s*\n%s", subject, markdown)})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	return nil
}
