package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends audit events to Postgres. Insert-only by contract;
// enforce UPDATE/DELETE denial with a table policy.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
		INSERT INTO audit_events
			(id, workspace_id, type, actor_user_id, actor_role, ip_address,
			 session_id, disposition_id, command, message, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.WorkspaceID, string(e.Type), e.ActorUserID, e.ActorRole, e.IPAddress,
		e.SessionID, e.DispositionID, e.Command, e.Message, e.Metadata, e.CreatedAt)
	return err
}
