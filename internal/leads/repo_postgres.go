package leads

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// PostgresDirectory looks leads up in Postgres (pgx stdlib).
//
// Matching strategy: compare the last 10 digits of each phone column against
// the last 10 digits of the dialed number. This mirrors PhonesMatch and keeps
// the query index-friendly if a generated suffix column is added later.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory { return &PostgresDirectory{db: db} }

func (d *PostgresDirectory) FindByPhone(ctx context.Context, workspaceID, number string) (Lead, error) {
	if workspaceID == "" || number == "" {
		return Lead{}, ErrInvalidArgument
	}
	suffix := strings.TrimPrefix(NormalizePhone(number), "+")
	if len(suffix) > 10 {
		suffix = suffix[len(suffix)-10:]
	}
	if suffix == "" {
		return Lead{}, ErrNotFound
	}

	const q = `
		SELECT id, workspace_id, name, phone, COALESCE(mobile_phone, ''), COALESCE(work_phone, ''),
		       last_contacted_at, next_followup_at
		FROM leads
		WHERE workspace_id = $1
		  AND (right(regexp_replace(phone, '\D', '', 'g'), 10) = $2
		    OR right(regexp_replace(mobile_phone, '\D', '', 'g'), 10) = $2
		    OR right(regexp_replace(work_phone, '\D', '', 'g'), 10) = $2)
		LIMIT 1`

	var l Lead
	err := d.db.QueryRowContext(ctx, q, workspaceID, suffix).Scan(
		&l.ID, &l.WorkspaceID, &l.Name, &l.Phone, &l.MobilePhone, &l.WorkPhone,
		&l.LastContactedAt, &l.NextFollowupAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, err
	}
	return l, nil
}

func (d *PostgresDirectory) Get(ctx context.Context, workspaceID, leadID string) (Lead, error) {
	if workspaceID == "" || leadID == "" {
		return Lead{}, ErrInvalidArgument
	}

	const q = `
		SELECT id, workspace_id, name, phone, COALESCE(mobile_phone, ''), COALESCE(work_phone, ''),
		       last_contacted_at, next_followup_at
		FROM leads
		WHERE workspace_id = $1 AND id = $2`

	var l Lead
	err := d.db.QueryRowContext(ctx, q, workspaceID, leadID).Scan(
		&l.ID, &l.WorkspaceID, &l.Name, &l.Phone, &l.MobilePhone, &l.WorkPhone,
		&l.LastContactedAt, &l.NextFollowupAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, err
	}
	return l, nil
}

func (d *PostgresDirectory) UpdateContactTimestamps(ctx context.Context, workspaceID, leadID string, lastContactedAt time.Time, nextFollowupAt *time.Time) error {
	if workspaceID == "" || leadID == "" {
		return ErrInvalidArgument
	}

	const q = `
		UPDATE leads
		SET last_contacted_at = $3,
		    next_followup_at = COALESCE($4, next_followup_at)
		WHERE workspace_id = $1 AND id = $2`

	res, err := d.db.ExecContext(ctx, q, workspaceID, leadID, lastContactedAt, nextFollowupAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
