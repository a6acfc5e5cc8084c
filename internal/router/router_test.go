package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modwatch/modwatch/internal/domain"
)

type stubBackend struct {
	name    string
	verdict *domain.Verdict
	err     error
	calls   int
}

func (s *stubBackend) Name() string  { return s.name }
func (s *stubBackend) Model() string { return s.name + "-model" }

func (s *stubBackend) Review(_ context.Context, _ *domain.Item, _ *domain.EscalationDecision) (*domain.Verdict, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	v := *s.verdict
	return &v, nil
}

func testItem() (*domain.Item, *domain.EscalationDecision) {
	item := &domain.Item{ID: "i1", Body: "text"}
	decision := &domain.EscalationDecision{ItemID: "i1", Outcome: domain.OutcomeEscalate}
	return item, decision
}

func TestRouter_FirstEligibleBackendWins(t *testing.T) {
	a := &stubBackend{name: "a", verdict: &domain.Verdict{Kind: domain.VerdictEscalate}}
	b := &stubBackend{name: "b", verdict: &domain.Verdict{Kind: domain.VerdictBenign}}
	r := New([]Backend{a, b}, 30*time.Second, 15*time.Second, time.Minute, nil, nil)

	item, decision := testItem()
	verdict, err := r.Review(context.Background(), item, decision)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if verdict.Backend != "a" {
		t.Errorf("verdict from %s, want a", verdict.Backend)
	}
	if verdict.Model != "a-model" {
		t.Errorf("verdict model %s, want a-model", verdict.Model)
	}
	if b.calls != 0 {
		t.Errorf("lower priority backend called %d times", b.calls)
	}
}

func TestRouter_RateLimitedBackendEntersCooldown(t *testing.T) {
	a := &stubBackend{name: "a", err: &RateLimitError{Backend: "a", ResetAfter: time.Minute}}
	b := &stubBackend{name: "b", verdict: &domain.Verdict{Kind: domain.VerdictEscalate}}
	r := New([]Backend{a, b}, 30*time.Second, 15*time.Second, time.Minute, nil, nil)

	now := time.Now()
	r.now = func() time.Time { return now }

	item, decision := testItem()
	verdict, err := r.Review(context.Background(), item, decision)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if verdict.Backend != "b" {
		t.Errorf("verdict from %s, want b after a was rate limited", verdict.Backend)
	}

	// A second review inside the cooldown goes straight to b.
	if _, err := r.Review(context.Background(), item, decision); err != nil {
		t.Fatalf("second Review: %v", err)
	}
	if a.calls != 1 {
		t.Errorf("rate-limited backend called %d times, want 1", a.calls)
	}

	// Cooldown is reset + buffer. Just past it, a is retried.
	now = now.Add(time.Minute + 16*time.Second)
	a.err = nil
	a.verdict = &domain.Verdict{Kind: domain.VerdictEscalate}
	verdict, err = r.Review(context.Background(), item, decision)
	if err != nil {
		t.Fatalf("third Review: %v", err)
	}
	if verdict.Backend != "a" {
		t.Errorf("verdict from %s after cooldown expiry, want a", verdict.Backend)
	}
}

func TestRouter_MiddleBackendOnlyOneLimited(t *testing.T) {
	a := &stubBackend{name: "a", err: &RateLimitError{Backend: "a"}}
	b := &stubBackend{name: "b", verdict: &domain.Verdict{Kind: domain.VerdictEscalate}}
	c := &stubBackend{name: "c", verdict: &domain.Verdict{Kind: domain.VerdictEscalate}}
	r := New([]Backend{a, b, c}, 30*time.Second, 15*time.Second, time.Minute, nil, nil)

	item, decision := testItem()
	verdict, err := r.Review(context.Background(), item, decision)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if verdict.Backend != "b" {
		t.Errorf("verdict from %s, want b", verdict.Backend)
	}
	if c.calls != 0 {
		t.Errorf("backend c called %d times, want 0", c.calls)
	}
}

func TestRouter_TransientErrorFallsThrough(t *testing.T) {
	a := &stubBackend{name: "a", err: errors.New("connection refused")}
	b := &stubBackend{name: "b", verdict: &domain.Verdict{Kind: domain.VerdictBenign}}
	r := New([]Backend{a, b}, 30*time.Second, 15*time.Second, time.Minute, nil, nil)

	item, decision := testItem()
	verdict, err := r.Review(context.Background(), item, decision)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if verdict.Backend != "b" {
		t.Errorf("verdict from %s, want b", verdict.Backend)
	}

	// A transient failure does not cool the backend down; next review
	// tries it again.
	if _, err := r.Review(context.Background(), item, decision); err != nil {
		t.Fatalf("second Review: %v", err)
	}
	if a.calls != 2 {
		t.Errorf("failing backend called %d times, want 2", a.calls)
	}
}

// hangingBackend blocks until its context is cancelled.
type hangingBackend struct {
	name  string
	calls int
}

func (h *hangingBackend) Name() string  { return h.name }
func (h *hangingBackend) Model() string { return h.name + "-model" }

func (h *hangingBackend) Review(ctx context.Context, _ *domain.Item, _ *domain.EscalationDecision) (*domain.Verdict, error) {
	h.calls++
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRouter_HungBackendTimesOutAndFailsOver(t *testing.T) {
	a := &hangingBackend{name: "a"}
	b := &stubBackend{name: "b", verdict: &domain.Verdict{Kind: domain.VerdictEscalate}}
	r := New([]Backend{a, b}, 20*time.Millisecond, 15*time.Second, time.Minute, nil, nil)

	item, decision := testItem()
	verdict, err := r.Review(context.Background(), item, decision)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if verdict.Backend != "b" {
		t.Errorf("verdict from %s, want b after a timed out", verdict.Backend)
	}
	if a.calls != 1 {
		t.Errorf("hung backend called %d times, want 1", a.calls)
	}
}

func TestRouter_CancelledCallerStopsTheWalk(t *testing.T) {
	a := &hangingBackend{name: "a"}
	b := &stubBackend{name: "b", verdict: &domain.Verdict{Kind: domain.VerdictEscalate}}
	r := New([]Backend{a, b}, time.Minute, 15*time.Second, time.Minute, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	item, decision := testItem()
	if _, err := r.Review(ctx, item, decision); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if b.calls != 0 {
		t.Errorf("backend b called %d times after caller cancel, want 0", b.calls)
	}
}

func TestRouter_ExhaustionReturnsErrNoVerdict(t *testing.T) {
	a := &stubBackend{name: "a", err: &RateLimitError{Backend: "a"}}
	b := &stubBackend{name: "b", err: &RateLimitError{Backend: "b"}}
	r := New([]Backend{a, b}, 30*time.Second, 15*time.Second, time.Minute, nil, nil)

	item, decision := testItem()
	if _, err := r.Review(context.Background(), item, decision); !errors.Is(err, ErrNoVerdict) {
		t.Errorf("err = %v, want ErrNoVerdict", err)
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    domain.VerdictKind
		wantErr bool
	}{
		{
			name: "clean object",
			raw:  `{"verdict":"escalate","reason":"direct threat"}`,
			want: domain.VerdictEscalate,
		},
		{
			name: "fenced object",
			raw:  "```json\n{\"verdict\": \"benign\", \"reason\": \"sarcasm between friends\"}\n```",
			want: domain.VerdictBenign,
		},
		{
			name: "object wrapped in prose",
			raw:  `Sure. {"verdict":"ESCALATE","reason":"slur"} Let me know if you need more.`,
			want: domain.VerdictEscalate,
		},
		{
			name:    "no json at all",
			raw:     "I cannot help with that.",
			wantErr: true,
		},
		{
			name:    "unknown verdict value",
			raw:     `{"verdict":"maybe"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVerdict(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("want error, got %+v", v)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVerdict: %v", err)
			}
			if v.Kind != tt.want {
				t.Errorf("kind = %s, want %s", v.Kind, tt.want)
			}
		})
	}
}
