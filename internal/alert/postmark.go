// AngelaMos | 2026
// postmark.go

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

const postmarkEndpoint = "https://api.postmarkapp.com/email"

type PostmarkConfig struct {
	ServerToken string
	From        string
	To          string
	// Endpoint overrides the Postmark API URL.
	Endpoint   string
	HTTPClient *http.Client
}

type PostmarkNotifier struct {
	cfg PostmarkConfig
}

func NewPostmarkNotifier(cfg PostmarkConfig) *PostmarkNotifier {
	if cfg.Endpoint == "" {
		cfg.Endpoint = postmarkEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &PostmarkNotifier{cfg: cfg}
}

func (p *PostmarkNotifier) Name() string {
	return "email"
}

type postmarkRequest struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

type postmarkResponse struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

func (p *PostmarkNotifier) Notify(ctx context.Context, a Alert) error {
	body, err := json.Marshal(postmarkRequest{
		From:     p.cfg.From,
		To:       p.cfg.To,
		Subject:  "[ops] " + a.Title,
		TextBody: a.Text(),
		Tag:      "ops-alert",
	})
	if err != nil {
		return fmt.Errorf("marshal postmark request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.cfg.Endpoint,
		bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("create postmark request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.cfg.ServerToken)

	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("postmark request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)) //nolint:errcheck // diagnostic only

	if resp.StatusCode != http.StatusOK {
		var pm postmarkResponse
		_ = json.Unmarshal(respBody, &pm) //nolint:errcheck // best-effort decode
		return fmt.Errorf(
			"postmark error (HTTP %d): code=%d message=%s",
			resp.StatusCode, pm.ErrorCode, pm.Message,
		)
	}

	return nil
}
