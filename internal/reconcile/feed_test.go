package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/modwatch/modwatch/internal/domain"
)

func TestHTTPFeed_Outcomes(t *testing.T) {
	since := time.Now().Add(-24 * time.Hour).Truncate(time.Second)
	now := time.Now().UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/modlog" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("since"); got != strconv.FormatInt(since.Unix(), 10) {
			t.Errorf("since = %q", got)
		}
		json.NewEncoder(w).Encode(modlogResponse{Entries: []modlogEntry{
			{TargetID: "i1", Action: "removecomment", Moderator: "mod1", Community: "pics", CreatedAt: now},
			{TargetID: "i2", Action: "approvecomment", Moderator: "mod2", CreatedAt: now},
			{TargetID: "i3", Action: "distinguish", CreatedAt: now},
		}})
	}))
	defer srv.Close()

	feed := NewHTTPFeed(srv.URL)
	outcomes, err := feed.Outcomes(context.Background(), since)
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2 (inconclusive entries dropped)", len(outcomes))
	}
	if outcomes[0].ItemID != "i1" || outcomes[0].Status != domain.TruthRemoved {
		t.Errorf("outcome[0] = %+v", outcomes[0])
	}
	if outcomes[1].Status != domain.TruthApproved || outcomes[1].Moderator != "mod2" {
		t.Errorf("outcome[1] = %+v", outcomes[1])
	}
}

func TestHTTPFeed_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	feed := NewHTTPFeed(srv.URL)
	_, err := feed.Outcomes(context.Background(), time.Now())
	if !errors.Is(err, ErrFeedUnavailable) {
		t.Errorf("err = %v, want ErrFeedUnavailable", err)
	}
}
