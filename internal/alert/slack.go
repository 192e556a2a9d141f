// AngelaMos | 2026
// slack.go

package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SlackNotifier posts to an incoming chat webhook. Any service accepting
// Slack's {"text": ...} payload works.
type SlackNotifier struct {
	url        string
	httpClient *http.Client
}

func NewSlackNotifier(url string, client *http.Client) *SlackNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SlackNotifier{url: url, httpClient: client}
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

type slackPayload struct {
	Text string `json:"text"`
}

func (s *SlackNotifier) Notify(ctx context.Context, a Alert) error {
	body, err := json.Marshal(slackPayload{Text: a.Text()})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck // diagnostic only

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack error (HTTP %d): %s", resp.StatusCode, respBody)
	}

	return nil
}
