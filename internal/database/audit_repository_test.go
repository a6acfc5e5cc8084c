package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/modwatch/modwatch/internal/database"
	"github.com/modwatch/modwatch/internal/domain"
)

func newTestRepo(t *testing.T) *database.AuditRepository {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return database.NewAuditRepository(db)
}

func pendingRecord(id, itemID string, decidedAt time.Time) *domain.AuditRecord {
	return &domain.AuditRecord{
		ID:          id,
		ItemID:      itemID,
		Community:   "pics",
		Author:      "alice",
		Reason:      "rule match: threats (hard-escalate)",
		Directed:    true,
		SignalsJSON: "[]",
		Verdict:     domain.VerdictEscalate,
		Backend:     "primary",
		Action:      domain.ActionReport,
		MaxSignal:   0.92,
		Outcome:     domain.RecordPending,
		DecidedAt:   decidedAt,
	}
}

func TestAuditRepository_InsertAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	rec := pendingRecord("r1", "i1", now)
	if err := repo.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := repo.GetByItemID(ctx, "i1")
	if err != nil {
		t.Fatalf("GetByItemID: %v", err)
	}
	if got.ID != "r1" || got.Outcome != domain.RecordPending || got.Action != domain.ActionReport {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.ReconciledAt != nil {
		t.Errorf("fresh record has reconciled_at %v", got.ReconciledAt)
	}

	if _, err := repo.GetByItemID(ctx, "missing"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("missing item err = %v, want ErrNotFound", err)
	}
}

func TestAuditRepository_MarkOutcomeIsWriteOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.Insert(ctx, pendingRecord("r1", "i1", now)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := repo.MarkOutcome(ctx, "r1", domain.RecordConfirmed, now); err != nil {
		t.Fatalf("first MarkOutcome: %v", err)
	}

	// A second finalization, even to the same value, must be rejected.
	err := repo.MarkOutcome(ctx, "r1", domain.RecordOverturned, now)
	if !errors.Is(err, database.ErrOutcomeFinal) {
		t.Fatalf("second MarkOutcome err = %v, want ErrOutcomeFinal", err)
	}

	got, err := repo.GetByItemID(ctx, "i1")
	if err != nil {
		t.Fatalf("GetByItemID: %v", err)
	}
	if got.Outcome != domain.RecordConfirmed {
		t.Errorf("outcome = %s, want confirmed to stick", got.Outcome)
	}
	if got.ReconciledAt == nil {
		t.Error("reconciled_at not set")
	}
}

func TestAuditRepository_ListPendingHonorsWindow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.Insert(ctx, pendingRecord("old", "i-old", now.Add(-20*24*time.Hour))); err != nil {
		t.Fatal(err)
	}
	if err := repo.Insert(ctx, pendingRecord("new", "i-new", now.Add(-time.Hour))); err != nil {
		t.Fatal(err)
	}
	closed := pendingRecord("closed", "i-closed", now.Add(-time.Hour))
	closed.Outcome = domain.RecordNoAction
	if err := repo.Insert(ctx, closed); err != nil {
		t.Fatal(err)
	}

	pending, err := repo.ListPending(ctx, now.Add(-14*24*time.Hour))
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "new" {
		t.Errorf("pending = %+v, want only the in-window pending record", pending)
	}
}

func TestAuditRepository_SeenItemIDs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, id := range []string{"a", "b", "c"} {
		rec := pendingRecord("r-"+id, "item-"+id, now.Add(time.Duration(i)*time.Minute))
		if err := repo.Insert(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := repo.SeenItemIDs(ctx, 2)
	if err != nil {
		t.Fatalf("SeenItemIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d ids, want 2", len(ids))
	}
	if ids[0] != "item-c" {
		t.Errorf("newest first: got %v", ids)
	}
}

func TestAuditRepository_Stats(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	lagCutoff := now.Add(-12 * time.Hour)

	confirmed := pendingRecord("r1", "i1", now.Add(-48*time.Hour))
	confirmed.Outcome = domain.RecordConfirmed
	overturned := pendingRecord("r2", "i2", now.Add(-36*time.Hour))
	overturned.Outcome = domain.RecordOverturned
	leftUp := pendingRecord("r3", "i3", now.Add(-24*time.Hour))
	fresh := pendingRecord("r4", "i4", now.Add(-time.Hour))
	benign := pendingRecord("r5", "i5", now.Add(-time.Hour))
	benign.Action = domain.ActionNone
	benign.Outcome = domain.RecordNoAction
	removed := pendingRecord("r6", "i6", now.Add(-30*time.Hour))
	removed.Action = domain.ActionRemove
	removed.Outcome = domain.RecordConfirmed

	for _, rec := range []*domain.AuditRecord{confirmed, overturned, leftUp, fresh, benign, removed} {
		if err := repo.Insert(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := repo.Stats(ctx, now.Add(-7*24*time.Hour), now.Add(time.Minute), lagCutoff)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Reported != 5 {
		t.Errorf("reported = %d, want 5", stats.Reported)
	}
	if stats.Removed != 1 {
		t.Errorf("removed = %d, want 1", stats.Removed)
	}
	if stats.Confirmed != 2 {
		t.Errorf("confirmed = %d, want 2", stats.Confirmed)
	}
	if stats.Overturned != 1 {
		t.Errorf("overturned = %d, want 1", stats.Overturned)
	}
	if stats.Pending != 1 {
		t.Errorf("pending = %d, want 1 (fresh only)", stats.Pending)
	}
	if stats.LeftUp != 1 {
		t.Errorf("left_up = %d, want 1 (aged pending)", stats.LeftUp)
	}
	if stats.AvgSignal < 0.91 || stats.AvgSignal > 0.93 {
		t.Errorf("avg_signal = %v, want ~0.92", stats.AvgSignal)
	}
}

func TestAuditRepository_PruneKeepsPending(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	oldClosed := pendingRecord("r1", "i1", now.Add(-60*24*time.Hour))
	oldClosed.Outcome = domain.RecordConfirmed
	oldPending := pendingRecord("r2", "i2", now.Add(-60*24*time.Hour))
	recent := pendingRecord("r3", "i3", now.Add(-time.Hour))
	recent.Outcome = domain.RecordNoAction

	for _, rec := range []*domain.AuditRecord{oldClosed, oldPending, recent} {
		if err := repo.Insert(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	n, err := repo.Prune(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d records, want 1", n)
	}
	if _, err := repo.GetByItemID(ctx, "i2"); err != nil {
		t.Error("prune removed a pending record")
	}
	if _, err := repo.GetByItemID(ctx, "i3"); err != nil {
		t.Error("prune removed a recent record")
	}
}
