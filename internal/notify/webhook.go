// Package notify posts operational messages to a chat webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/modwatch/modwatch/internal/logger"
)

const webhookTimeout = 10 * time.Second

// Webhook posts JSON messages to a Discord-compatible webhook URL.
type Webhook struct {
	url        string
	httpClient *http.Client
	log        logger.Logger
}

func NewWebhook(url string, log logger.Logger) *Webhook {
	if log == nil {
		log = logger.Nop()
	}
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: webhookTimeout},
		log:        log,
	}
}

// Post sends one message. A missing URL is a no-op so deployments
// without a webhook configured still run.
func (w *Webhook) Post(ctx context.Context, message string) error {
	if w.url == "" {
		w.log.Debug("webhook not configured, message dropped")
		return nil
	}

	body, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
