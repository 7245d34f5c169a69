package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"ab-caller/internal/calls"
	"ab-caller/pkg/utils"
)

// Schema creates the audit table. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
    id            UUID PRIMARY KEY,
    type          TEXT NOT NULL,
    actor_user_id TEXT NOT NULL DEFAULT '',
    actor_role    TEXT NOT NULL DEFAULT '',
    ip_address    TEXT NOT NULL DEFAULT '',
    test_id       TEXT NOT NULL DEFAULT '',
    lead_id       TEXT NOT NULL DEFAULT '',
    call_group    TEXT NOT NULL DEFAULT '',
    call_id       TEXT NOT NULL DEFAULT '',
    success       BOOLEAN NOT NULL DEFAULT FALSE,
    message       TEXT NOT NULL DEFAULT '',
    metadata      JSONB,
    created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_events_test_type_idx ON audit_events (test_id, type, created_at);
`

const insertEvent = `
INSERT INTO audit_events
    (id, type, actor_user_id, actor_role, ip_address, test_id, lead_id, call_group, call_id, success, message, metadata, created_at)
VALUES
    ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, '')::jsonb, $13)
`

// PostgresRepo stores events in Postgres through database/sql (pgx stdlib driver).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// EnsureSchema applies Schema.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("audit: ensure schema: %w", err)
	}
	return nil
}

// Append inserts all events in one transaction.
func (r *PostgresRepo) Append(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertEvent)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range events {
			if _, err := stmt.ExecContext(ctx,
				e.ID, string(e.Type), e.ActorUserID, e.ActorRole, e.IPAddress,
				e.TestID, e.LeadID, string(e.Group), e.CallID, e.Success, e.Message,
				e.Metadata, e.CreatedAt,
			); err != nil {
				return fmt.Errorf("audit: insert %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

// List returns matching events oldest first.
func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Event, error) {
	q, args := listQuery(f)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e        Event
			typ      string
			group    string
			metadata sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &typ, &e.ActorUserID, &e.ActorRole, &e.IPAddress,
			&e.TestID, &e.LeadID, &group, &e.CallID, &e.Success, &e.Message,
			&metadata, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		e.Group = calls.Group(group)
		e.Metadata = metadata.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func listQuery(f Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.TestID != "" {
		add("test_id = $%d", f.TestID)
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}

	var b strings.Builder
	b.WriteString(`SELECT id, type, actor_user_id, actor_role, ip_address, test_id, lead_id, call_group, call_id, success, message, metadata::text, created_at FROM audit_events`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at ASC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}
