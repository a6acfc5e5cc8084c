// Package source talks to the host platform: the new-content feed the
// pipeline scans and the moderation endpoints it acts through.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/modwatch/modwatch/internal/domain"
)

const defaultTimeout = 30 * time.Second

// ErrUnavailable indicates the platform API is unreachable.
var ErrUnavailable = errors.New("platform API unavailable")

// itemPayload is one feed entry as the platform serves it.
type itemPayload struct {
	ID              string    `json:"id"`
	Body            string    `json:"body"`
	Role            string    `json:"role"`
	ParentBody      string    `json:"parent_body"`
	GrandparentBody string    `json:"grandparent_body"`
	Author          string    `json:"author"`
	Community       string    `json:"community"`
	CreatedAt       time.Time `json:"created_at"`
	Permalink       string    `json:"permalink"`
}

type feedResponse struct {
	Items []itemPayload `json:"items"`
}

// HTTPFeed pulls new items from the platform feed endpoint.
type HTTPFeed struct {
	baseURL     string
	communities []string
	httpClient  *http.Client
}

func NewHTTPFeed(baseURL string, communities []string) *HTTPFeed {
	return &HTTPFeed{
		baseURL:     baseURL,
		communities: communities,
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
}

// Fetch returns up to limit of the newest items across the configured
// communities.
func (f *HTTPFeed) Fetch(ctx context.Context, limit int) ([]*domain.Item, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if len(f.communities) > 0 {
		q.Set("communities", strings.Join(f.communities, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/api/v1/items?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %d", resp.StatusCode)
	}

	var payload feedResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&payload); decodeErr != nil {
		return nil, fmt.Errorf("decode feed: %w", decodeErr)
	}

	items := make([]*domain.Item, 0, len(payload.Items))
	for _, p := range payload.Items {
		role := domain.RoleTopLevel
		if p.Role == string(domain.RoleReply) {
			role = domain.RoleReply
		}
		items = append(items, &domain.Item{
			ID:              p.ID,
			Body:            p.Body,
			Role:            role,
			ParentBody:      p.ParentBody,
			GrandparentBody: p.GrandparentBody,
			Author:          p.Author,
			Community:       p.Community,
			CreatedAt:       p.CreatedAt,
			Permalink:       p.Permalink,
		})
	}
	return items, nil
}
