package dispositions

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo reads disposition reference data from Postgres (pgx stdlib).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Get(ctx context.Context, workspaceID, id string) (Disposition, error) {
	const q = `
		SELECT id, workspace_id, name, requires_note
		FROM dispositions
		WHERE workspace_id = $1 AND id = $2`

	var d Disposition
	err := r.db.QueryRowContext(ctx, q, workspaceID, id).
		Scan(&d.ID, &d.WorkspaceID, &d.Name, &d.RequiresNote)
	if errors.Is(err, sql.ErrNoRows) {
		return Disposition{}, ErrNotFound
	}
	if err != nil {
		return Disposition{}, err
	}
	return d, nil
}

func (r *PostgresRepo) List(ctx context.Context, workspaceID string) ([]Disposition, error) {
	const q = `
		SELECT id, workspace_id, name, requires_note
		FROM dispositions
		WHERE workspace_id = $1
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, q, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Disposition, 0)
	for rows.Next() {
		var d Disposition
		if err := rows.Scan(&d.ID, &d.WorkspaceID, &d.Name, &d.RequiresNote); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
