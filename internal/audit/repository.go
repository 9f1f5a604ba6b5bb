package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// NOTE: assumes an insert-only audit_events table:
//   id uuid PRIMARY KEY, type text NOT NULL, actor_user_id text, actor_role text,
//   ip_address text, call_id text, filename text, message text, metadata text,
//   created_at timestamptz NOT NULL

const insertEventSQL = `
INSERT INTO audit_events
  (id, type, actor_user_id, actor_role, ip_address, call_id, filename, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// PostgresRepo appends audit events to Postgres. Append-only: no update or
// delete statements exist here.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, insertEventSQL,
		e.ID, string(e.Type), e.ActorUserID, e.ActorRole, e.IPAddress,
		e.CallID, e.Filename, e.Message, e.Metadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit append: %w", err)
	}
	return nil
}
