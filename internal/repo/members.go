package repo

import (
	"context"
	"database/sql"

	"surat/internal/domain"
)

func (r Repo) InsertMembers(ctx context.Context, tx *sql.Tx, members []domain.Member) error {
	for _, m := range members {
		if _, err := tx.ExecContext(ctx, `INSERT INTO anggota(id,surat_id,no,nama,nip,pangkat_golongan,prodi_fakultas) VALUES (?,?,?,?,?,?,?)`,
			m.ID, m.RequestID, m.Seq, m.Name, nullable(m.EmployeeID), nullable(m.Rank), nullable(m.Department)); err != nil {
			return err
		}
	}
	return nil
}

// ListMembers returns the members of a request ordered by sequence number.
func (r Repo) ListMembers(ctx context.Context, requestID string) ([]domain.Member, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,surat_id,no,nama,COALESCE(nip,''),COALESCE(pangkat_golongan,''),COALESCE(prodi_fakultas,'') FROM anggota WHERE surat_id=? ORDER BY no ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.RequestID, &m.Seq, &m.Name, &m.EmployeeID, &m.Rank, &m.Department); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
