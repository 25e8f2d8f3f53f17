package repo

import (
	"context"
	"database/sql"

	"surat/internal/domain"
)

func (r Repo) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	var p domain.Profile
	err := r.DB.QueryRowContext(ctx, `SELECT id,role,created_at,updated_at FROM profiles WHERE id=?`, id).
		Scan(&p.ID, &p.Role, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

// UpsertProfile sets the role of a profile, creating it when missing.
func (r Repo) UpsertProfile(ctx context.Context, tx *sql.Tx, id, role, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO profiles(id,role,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET role=excluded.role, updated_at=excluded.updated_at`, id, role, now, now)
	return err
}

func (r Repo) ListProfiles(ctx context.Context, role string) ([]domain.Profile, error) {
	query := `SELECT id,role,created_at,updated_at FROM profiles`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, role)
	}
	query += ` ORDER BY id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Profile
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.ID, &p.Role, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
