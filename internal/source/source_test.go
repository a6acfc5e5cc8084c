package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modwatch/modwatch/internal/domain"
)

func TestHTTPFeed_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/items" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("limit = %q", got)
		}
		if got := r.URL.Query().Get("communities"); got != "pics,videos" {
			t.Errorf("communities = %q", got)
		}
		json.NewEncoder(w).Encode(feedResponse{Items: []itemPayload{
			{ID: "i1", Body: "first", Role: "top_level", Author: "alice", Community: "pics", CreatedAt: time.Now().UTC()},
			{ID: "i2", Body: "second", Role: "reply", ParentBody: "first", Author: "bob", Community: "videos"},
		}})
	}))
	defer srv.Close()

	feed := NewHTTPFeed(srv.URL, []string{"pics", "videos"})
	items, err := feed.Fetch(context.Background(), 50)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].Role != domain.RoleTopLevel || items[0].IsReply() {
		t.Errorf("item i1 role = %s", items[0].Role)
	}
	if items[1].Role != domain.RoleReply || items[1].ParentBody != "first" {
		t.Errorf("item i2 = %+v", items[1])
	}
}

func TestHTTPFeed_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	feed := NewHTTPFeed(srv.URL, nil)
	_, err := feed.Fetch(context.Background(), 10)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestModerationClient_Report(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewModerationClient(srv.URL, "tok-123", nil)
	item := &domain.Item{ID: "i1"}
	if err := client.Report(context.Background(), item, "modwatch: threats (confidence: HIGH)"); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if gotPath != "/api/v1/items/i1/report" {
		t.Errorf("path = %s", gotPath)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody["reason"] != "modwatch: threats (confidence: HIGH)" {
		t.Errorf("reason = %q", gotBody["reason"])
	}
}

func TestModerationClient_RemoveRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewModerationClient(srv.URL, "", nil)
	if err := client.Remove(context.Background(), &domain.Item{ID: "i1"}, "reason"); err == nil {
		t.Error("want error on 403")
	}
}
