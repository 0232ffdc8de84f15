package records

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// PostgresRepo persists call records in Postgres (pgx stdlib).
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

func (r *PostgresRepo) Create(ctx context.Context, rec CallRecord) (string, error) {
	if rec.WorkspaceID == "" || rec.AgentID == "" || rec.SessionID == "" {
		return "", ErrInvalidArgument
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := r.clock().UTC()

	// Idempotent create: a retry for the same session returns the row that
	// the first attempt inserted.
	const q = `
		INSERT INTO call_records
			(id, workspace_id, agent_id, session_id, direction, counterpart_number,
			 related_type, related_id, started_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
		ON CONFLICT (workspace_id, session_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
		RETURNING id`

	var id string
	err := r.db.QueryRowContext(ctx, q,
		rec.ID, rec.WorkspaceID, rec.AgentID, rec.SessionID, rec.Direction,
		rec.CounterpartNumber, rec.RelatedType, rec.RelatedID, rec.StartedAt, now,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *PostgresRepo) Update(ctx context.Context, workspaceID, recordID string, upd Update) error {
	if workspaceID == "" || recordID == "" {
		return ErrInvalidArgument
	}

	const q = `
		UPDATE call_records
		SET ended_at = COALESCE($3, ended_at),
		    duration_seconds = COALESCE($4, duration_seconds),
		    disposition_id = COALESCE($5, disposition_id),
		    notes = COALESCE($6, notes),
		    updated_at = $7
		WHERE workspace_id = $1 AND id = $2`

	res, err := r.db.ExecContext(ctx, q, workspaceID, recordID,
		upd.EndedAt, upd.DurationSeconds, upd.DispositionID, upd.Notes, r.clock().UTC())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) FindActiveOrUnwrapped(ctx context.Context, workspaceID, agentID string) ([]CallRecord, error) {
	if workspaceID == "" || agentID == "" {
		return nil, ErrInvalidArgument
	}
	const q = selectCols + `
		WHERE workspace_id = $1 AND agent_id = $2 AND COALESCE(disposition_id, '') = ''
		ORDER BY created_at DESC`
	return r.query(ctx, q, workspaceID, agentID)
}

func (r *PostgresRepo) ListRecent(ctx context.Context, workspaceID, agentID string, limit int) ([]CallRecord, error) {
	if workspaceID == "" || agentID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 {
		limit = 20
	}
	const q = selectCols + `
		WHERE workspace_id = $1 AND agent_id = $2
		ORDER BY created_at DESC
		LIMIT $3`
	return r.query(ctx, q, workspaceID, agentID, limit)
}

const selectCols = `
	SELECT id, workspace_id, agent_id, session_id, direction, counterpart_number,
	       COALESCE(related_type, ''), COALESCE(related_id, ''),
	       started_at, ended_at, duration_seconds,
	       COALESCE(disposition_id, ''), COALESCE(notes, ''),
	       created_at, updated_at
	FROM call_records`

func (r *PostgresRepo) query(ctx context.Context, q string, args ...any) ([]CallRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallRecord, 0)
	for rows.Next() {
		var rec CallRecord
		if err := rows.Scan(
			&rec.ID, &rec.WorkspaceID, &rec.AgentID, &rec.SessionID, &rec.Direction,
			&rec.CounterpartNumber, &rec.RelatedType, &rec.RelatedID,
			&rec.StartedAt, &rec.EndedAt, &rec.DurationSeconds,
			&rec.DispositionID, &rec.Notes, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
