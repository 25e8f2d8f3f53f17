package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"surat/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const requestColumns = `id,template_key,user_id,status,
COALESCE(judul,''),COALESCE(sumber_pendanaan,''),COALESCE(tahun,''),
COALESCE(ketua_nama,''),COALESCE(ketua_nip,''),COALESCE(ketua_pangkat_gol,''),COALESCE(ketua_prodi_fak,''),COALESCE(satuan_kerja,''),
COALESCE(penerima,''),COALESCE(lokasi_tujuan,''),COALESCE(skema_pengabdian,''),COALESCE(skema,''),
COALESCE(tanggal_mulai,''),COALESCE(tanggal_akhir,''),COALESCE(lokasi,''),COALESCE(kabupaten_lokasi,''),COALESCE(tanggal_surat,''),
COALESCE(peneliti_pelaksana,''),COALESCE(dana,''),COALESCE(dana_terbilang,''),COALESCE(peneliti_pengabdian,''),COALESCE(tim_peneliti,''),
file_hasil,created_at,updated_at`

func scanRequest(row rowScanner) (domain.Request, error) {
	var r domain.Request
	var resultFile sql.NullString
	err := row.Scan(&r.ID, &r.TemplateKey, &r.OwnerID, &r.Status,
		&r.Title, &r.FundingSource, &r.Year,
		&r.LeaderName, &r.LeaderID, &r.LeaderRank, &r.LeaderDept, &r.WorkUnit,
		&r.Recipient, &r.Destination, &r.CommunityScheme, &r.Scheme,
		&r.StartDate, &r.EndDate, &r.Location, &r.Regency, &r.LetterDate,
		&r.LeaderRole, &r.FundingAmount, &r.FundingAmountWords, &r.ActivityType, &r.TeamType,
		&resultFile, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	if resultFile.Valid {
		r.ResultFile = &resultFile.String
	}
	return r, err
}

func (r Repo) InsertRequest(ctx context.Context, tx *sql.Tx, s domain.Request) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO surat(id,template_key,user_id,status,
judul,sumber_pendanaan,tahun,ketua_nama,ketua_nip,ketua_pangkat_gol,ketua_prodi_fak,satuan_kerja,
penerima,lokasi_tujuan,skema_pengabdian,skema,tanggal_mulai,tanggal_akhir,lokasi,kabupaten_lokasi,tanggal_surat,
peneliti_pelaksana,dana,dana_terbilang,peneliti_pengabdian,tim_peneliti,file_hasil,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.TemplateKey, s.OwnerID, s.Status,
		nullable(s.Title), nullable(s.FundingSource), nullable(s.Year),
		nullable(s.LeaderName), nullable(s.LeaderID), nullable(s.LeaderRank), nullable(s.LeaderDept), nullable(s.WorkUnit),
		nullable(s.Recipient), nullable(s.Destination), nullable(s.CommunityScheme), nullable(s.Scheme),
		nullable(s.StartDate), nullable(s.EndDate), nullable(s.Location), nullable(s.Regency), nullable(s.LetterDate),
		nullable(s.LeaderRole), nullable(s.FundingAmount), nullable(s.FundingAmountWords), nullable(s.ActivityType), nullable(s.TeamType),
		nullableStringPtr(s.ResultFile), s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) GetRequest(ctx context.Context, id string) (domain.Request, error) {
	return scanRequest(r.DB.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM surat WHERE id=?`, id))
}

func (r Repo) GetRequestTx(ctx context.Context, tx *sql.Tx, id string) (domain.Request, error) {
	return scanRequest(tx.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM surat WHERE id=?`, id))
}

type RequestFilters struct {
	OwnerID     string
	TemplateKey string
	Status      string
	// Query matches judul or ketua_nama, case-insensitively.
	Query string
	Limit int
}

// ListRequests returns matching requests, newest first.
func (r Repo) ListRequests(ctx context.Context, f RequestFilters) ([]domain.Request, error) {
	var clauses []string
	var args []any
	if f.OwnerID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.OwnerID)
	}
	if f.TemplateKey != "" {
		clauses = append(clauses, "template_key=?")
		args = append(args, f.TemplateKey)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + escapeLike(strings.ToLower(q)) + "%"
		clauses = append(clauses, `(LOWER(COALESCE(judul,'')) LIKE ? ESCAPE '\' OR LOWER(COALESCE(ketua_nama,'')) LIKE ? ESCAPE '\')`)
		args = append(args, like, like)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + requestColumns + ` FROM surat ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Request
	for rows.Next() {
		s, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// UpdateRequestStatus moves a request out of status from. It reports
// ErrNotFound when no request with that id is in the from status.
func (r Repo) UpdateRequestStatus(ctx context.Context, tx *sql.Tx, id, from, to string, resultFile *string, updatedAt string) error {
	var (
		res sql.Result
		err error
	)
	if resultFile != nil {
		res, err = tx.ExecContext(ctx, `UPDATE surat SET status=?, file_hasil=?, updated_at=? WHERE id=? AND status=?`,
			to, *resultFile, updatedAt, id, from)
	} else {
		res, err = tx.ExecContext(ctx, `UPDATE surat SET status=?, updated_at=? WHERE id=? AND status=?`,
			to, updatedAt, id, from)
	}
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
