package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/modwatch/modwatch/internal/domain"
	"github.com/modwatch/modwatch/internal/logger"
)

// ModerationClient takes moderation actions against the platform. It
// implements processor.Reporter.
type ModerationClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        logger.Logger
}

func NewModerationClient(baseURL, token string, log logger.Logger) *ModerationClient {
	if log == nil {
		log = logger.Nop()
	}
	return &ModerationClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        log,
	}
}

// Report files a report on the item for human moderators.
func (c *ModerationClient) Report(ctx context.Context, item *domain.Item, reason string) error {
	return c.post(ctx, item.ID, "report", reason)
}

// Remove removes the item outright.
func (c *ModerationClient) Remove(ctx context.Context, item *domain.Item, reason string) error {
	return c.post(ctx, item.ID, "remove", reason)
}

func (c *ModerationClient) post(ctx context.Context, itemID, action, reason string) error {
	body, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", action, err)
	}

	u := fmt.Sprintf("%s/api/v1/items/%s/%s", c.baseURL, itemID, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%s %s returned %d", action, itemID, resp.StatusCode)
	}

	c.log.Debug("moderation action accepted",
		logger.String("item_id", itemID),
		logger.String("action", action),
		logger.Duration("latency", time.Since(start)))
	return nil
}
