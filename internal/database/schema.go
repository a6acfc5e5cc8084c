package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema is portable across postgres and sqlite3: TEXT timestamps and
// generic column types only.
const schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id            TEXT PRIMARY KEY,
	item_id       TEXT NOT NULL,
	community     TEXT NOT NULL,
	author        TEXT NOT NULL,
	reason        TEXT NOT NULL,
	directed      BOOLEAN NOT NULL,
	signals       TEXT NOT NULL DEFAULT '',
	verdict       TEXT NOT NULL,
	verdict_why   TEXT NOT NULL DEFAULT '',
	backend       TEXT NOT NULL DEFAULT '',
	action        TEXT NOT NULL,
	max_signal    REAL NOT NULL DEFAULT 0,
	outcome       TEXT NOT NULL,
	decided_at    TIMESTAMP NOT NULL,
	reconciled_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_audit_records_item_id ON audit_records (item_id);
CREATE INDEX IF NOT EXISTS idx_audit_records_outcome ON audit_records (outcome, decided_at);
`

// EnsureSchema creates the audit table and its indexes when missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
