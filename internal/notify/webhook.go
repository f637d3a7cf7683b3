package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/h1v3-io/pulse/pkg/protocol"
)

// WebhookConfig holds outbound webhook configuration.
type WebhookConfig struct {
	URL string `json:"url"`
	// Secret signs the body with HMAC-SHA256 (X-Signature-256 header).
	// If empty, BearerToken is sent instead.
	Secret string `json:"secret,omitempty"`
	// BearerToken for the Authorization header. Used if Secret is empty.
	BearerToken string `json:"bearer_token,omitempty"`
}

// WebhookPayload is the JSON body posted for each alert.
type WebhookPayload struct {
	Text  string         `json:"text"`
	Event protocol.Event `json:"event"`
}

// Webhook posts alerts as JSON to an arbitrary URL.
type Webhook struct {
	cfg    WebhookConfig
	client *http.Client
}

func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook: url is required")
	}
	return &Webhook{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}, nil
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Notify(ctx context.Context, ev protocol.Event, text string) error {
	body, err := json.Marshal(WebhookPayload{Text: text, Event: ev})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case w.cfg.Secret != "":
		req.Header.Set("X-Signature-256", Sign(body, w.cfg.Secret))
	case w.cfg.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+w.cfg.BearerToken)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook error (status %d): %s", resp.StatusCode, msg)
	}
	return nil
}

// Sign returns the "sha256=<hex>" signature of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret.
func Verify(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}
