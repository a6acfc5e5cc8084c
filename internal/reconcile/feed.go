// Package reconcile folds moderator ground truth back onto audit
// records and posts periodic precision summaries.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/modwatch/modwatch/internal/domain"
)

const feedTimeout = 30 * time.Second

// ErrFeedUnavailable indicates the moderation log feed is unreachable.
var ErrFeedUnavailable = errors.New("moderation log feed unavailable")

// GroundTruthFeed supplies moderator actions observed since a point in
// time.
type GroundTruthFeed interface {
	Outcomes(ctx context.Context, since time.Time) ([]domain.GroundTruthOutcome, error)
}

// modlogEntry is one raw entry from the platform moderation log.
type modlogEntry struct {
	TargetID  string    `json:"target_id"`
	Action    string    `json:"action"`
	Moderator string    `json:"moderator"`
	Community string    `json:"community"`
	CreatedAt time.Time `json:"created_at"`
}

type modlogResponse struct {
	Entries []modlogEntry `json:"entries"`
}

// HTTPFeed reads the moderation log over HTTP. Entries whose action
// carries no approve or remove meaning are dropped here, so callers
// only see conclusive outcomes.
type HTTPFeed struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPFeed(baseURL string) *HTTPFeed {
	return &HTTPFeed{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: feedTimeout},
	}
}

func (f *HTTPFeed) Outcomes(ctx context.Context, since time.Time) ([]domain.GroundTruthOutcome, error) {
	u := f.baseURL + "/api/v1/modlog?since=" + url.QueryEscape(strconv.FormatInt(since.Unix(), 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("moderation log returned %d", resp.StatusCode)
	}

	var payload modlogResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&payload); decodeErr != nil {
		return nil, fmt.Errorf("decode modlog: %w", decodeErr)
	}

	outcomes := make([]domain.GroundTruthOutcome, 0, len(payload.Entries))
	for _, e := range payload.Entries {
		status, ok := domain.ClassifyModAction(e.Action)
		if !ok {
			continue
		}
		outcomes = append(outcomes, domain.GroundTruthOutcome{
			ItemID:     e.TargetID,
			Status:     status,
			RawAction:  e.Action,
			Moderator:  e.Moderator,
			Community:  e.Community,
			ObservedAt: e.CreatedAt,
		})
	}
	return outcomes, nil
}
