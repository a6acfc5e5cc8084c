package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/modwatch/modwatch/internal/domain"
)

// ErrOutcomeFinal indicates an update targeted a record whose outcome
// was already terminal.
var ErrOutcomeFinal = errors.New("audit record outcome is final")

// ErrNotFound indicates no audit record matched the query.
var ErrNotFound = errors.New("audit record not found")

// AuditRepository handles database operations for audit records.
// Queries use "?" placeholders rebound per driver so the repository
// works against both postgres and sqlite3.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new audit record repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert stores a new audit record.
func (r *AuditRepository) Insert(ctx context.Context, rec *domain.AuditRecord) error {
	query := r.db.Rebind(`
		INSERT INTO audit_records (
			id, item_id, community, author, reason, directed, signals,
			verdict, verdict_why, backend, action, max_signal, outcome,
			decided_at, reconciled_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.ItemID,
		rec.Community,
		rec.Author,
		rec.Reason,
		rec.Directed,
		rec.SignalsJSON,
		rec.Verdict,
		rec.VerdictWhy,
		rec.Backend,
		rec.Action,
		rec.MaxSignal,
		rec.Outcome,
		rec.DecidedAt,
		rec.ReconciledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// GetByItemID retrieves the newest audit record for an item.
func (r *AuditRepository) GetByItemID(ctx context.Context, itemID string) (*domain.AuditRecord, error) {
	var rec domain.AuditRecord
	query := r.db.Rebind(`
		SELECT * FROM audit_records
		WHERE item_id = ?
		ORDER BY decided_at DESC
		LIMIT 1
	`)

	err := r.db.GetContext(ctx, &rec, query, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit record: %w", err)
	}
	return &rec, nil
}

// ListPending returns records still awaiting a moderator outcome,
// oldest first, no older than since.
func (r *AuditRepository) ListPending(ctx context.Context, since time.Time) ([]domain.AuditRecord, error) {
	var recs []domain.AuditRecord
	query := r.db.Rebind(`
		SELECT * FROM audit_records
		WHERE outcome = ? AND decided_at >= ?
		ORDER BY decided_at ASC
	`)

	if err := r.db.SelectContext(ctx, &recs, query, domain.RecordPending, since); err != nil {
		return nil, fmt.Errorf("failed to list pending records: %w", err)
	}
	return recs, nil
}

// MarkOutcome finalizes a pending record. The outcome column is
// write-once: the update only matches records still pending, and a
// record already finalized returns ErrOutcomeFinal.
func (r *AuditRepository) MarkOutcome(ctx context.Context, id string, outcome domain.RecordOutcome, at time.Time) error {
	query := r.db.Rebind(`
		UPDATE audit_records
		SET outcome = ?, reconciled_at = ?
		WHERE id = ? AND outcome = ?
	`)

	res, err := r.db.ExecContext(ctx, query, outcome, at, id, domain.RecordPending)
	if err != nil {
		return fmt.Errorf("failed to mark outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrOutcomeFinal
	}
	return nil
}

// SeenItemIDs returns the item IDs of the newest limit records, for
// start-up dedupe against the content feed.
func (r *AuditRepository) SeenItemIDs(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	query := r.db.Rebind(`
		SELECT item_id FROM audit_records
		ORDER BY decided_at DESC
		LIMIT ?
	`)

	if err := r.db.SelectContext(ctx, &ids, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list seen item ids: %w", err)
	}
	return ids, nil
}

// WindowStats aggregates a reporting window for the periodic summary.
type WindowStats struct {
	Reported   int     `db:"reported"`
	Removed    int     `db:"removed"`
	Confirmed  int     `db:"confirmed"`
	Overturned int     `db:"overturned"`
	Pending    int     `db:"pending"`
	LeftUp     int     `db:"left_up"`
	AvgSignal  float64 `db:"avg_signal"`
}

// Stats aggregates records decided in [from, to). Records still pending
// past lagCutoff count as left up; pending records newer than the
// cutoff are still within the moderators' decision window.
func (r *AuditRepository) Stats(ctx context.Context, from, to, lagCutoff time.Time) (*WindowStats, error) {
	var stats WindowStats
	query := r.db.Rebind(`
		SELECT
			COUNT(CASE WHEN action IN ('report', 'remove') THEN 1 END)               AS reported,
			COUNT(CASE WHEN action = 'remove' THEN 1 END)                            AS removed,
			COUNT(CASE WHEN outcome = 'confirmed' THEN 1 END)                        AS confirmed,
			COUNT(CASE WHEN outcome = 'overturned' THEN 1 END)                       AS overturned,
			COUNT(CASE WHEN outcome = 'pending' AND decided_at >= ? THEN 1 END)      AS pending,
			COUNT(CASE WHEN outcome = 'pending' AND decided_at < ? THEN 1 END)       AS left_up,
			COALESCE(AVG(CASE WHEN action IN ('report', 'remove') THEN max_signal END), 0) AS avg_signal
		FROM audit_records
		WHERE decided_at >= ? AND decided_at < ?
	`)

	if err := r.db.GetContext(ctx, &stats, query, lagCutoff, lagCutoff, from, to); err != nil {
		return nil, fmt.Errorf("failed to aggregate window stats: %w", err)
	}
	return &stats, nil
}

// Prune deletes terminal records older than cutoff and returns how many
// were removed.
func (r *AuditRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	query := r.db.Rebind(`
		DELETE FROM audit_records
		WHERE decided_at < ? AND outcome != ?
	`)

	res, err := r.db.ExecContext(ctx, query, cutoff, domain.RecordPending)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit records: %w", err)
	}
	return res.RowsAffected()
}
