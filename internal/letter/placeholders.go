package letter

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/go-playground/locales"
	"github.com/go-playground/locales/id"
	"github.com/shopspring/decimal"

	"surat/internal/docx"
	"surat/internal/domain"
)

// MembersKey is the loop placeholder holding the team members.
const MembersKey = "anggota"

// Placeholder names that differ from storage names.
const (
	PhLetterDate   = "tanggal_surat"
	PhStartDate    = "tanggal mulai"
	PhLeaderName   = "nama_ketua"
	PhLeaderID     = "nip_ketua"
	PhLeaderRank   = "pangkat_gol_ketua"
	PhDestination  = "nama kota/kabupaten/lokasi tempat tujuan"
	PhSource       = "sumber"
	PhAmountRupiah = "dana_rupiah"
	PhMemberRank   = "pangkat_gol"
)

// Mapper builds the placeholder data for a request.
type Mapper struct {
	Now    func() time.Time
	Locale locales.Translator
}

// NewMapper returns a mapper on the wall clock with Indonesian month names.
func NewMapper() Mapper {
	return Mapper{Now: time.Now, Locale: id.New()}
}

func (m Mapper) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m Mapper) locale() locales.Translator {
	if m.Locale != nil {
		return m.Locale
	}
	return id.New()
}

// FormatLetterDate renders t as "D MonthName YYYY".
func (m Mapper) FormatLetterDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), m.locale().MonthWide(t.Month()), t.Year())
}

// Build returns every storage field under its own name, overlaid with the
// aliases the templates use, plus the member loop.
func (m Mapper) Build(req domain.Request, members []domain.Member) docx.Data {
	data := storageFields(req)

	letterDate := req.LetterDate
	if letterDate == "" {
		letterDate = m.FormatLetterDate(m.now())
	}
	data[PhLetterDate] = letterDate
	data[PhStartDate] = req.StartDate
	data[PhLeaderName] = req.LeaderName
	data[PhLeaderID] = req.LeaderID
	data[PhLeaderRank] = req.LeaderRank
	data[PhDestination] = req.Destination
	data[PhSource] = req.FundingSource
	data[PhAmountRupiah] = rupiah(req.Amount())

	data[MembersKey] = memberRows(members)
	return data
}

func storageFields(r domain.Request) docx.Data {
	resultFile := ""
	if r.ResultFile != nil {
		resultFile = *r.ResultFile
	}
	return docx.Data{
		"id":                  r.ID,
		"template_key":        r.TemplateKey,
		"user_id":             r.OwnerID,
		"status":              r.Status,
		"judul":               r.Title,
		"sumber_pendanaan":    r.FundingSource,
		"tahun":               r.Year,
		"ketua_nama":          r.LeaderName,
		"ketua_nip":           r.LeaderID,
		"ketua_pangkat_gol":   r.LeaderRank,
		"ketua_prodi_fak":     r.LeaderDept,
		"satuan_kerja":        r.WorkUnit,
		"penerima":            r.Recipient,
		"lokasi_tujuan":       r.Destination,
		"skema_pengabdian":    r.CommunityScheme,
		"skema":               r.Scheme,
		"tanggal_mulai":       r.StartDate,
		"tanggal_akhir":       r.EndDate,
		"lokasi":              r.Location,
		"kabupaten_lokasi":    r.Regency,
		"tanggal_surat":       r.LetterDate,
		"peneliti_pelaksana":  r.LeaderRole,
		"dana":                r.FundingAmount,
		"dana_terbilang":      r.FundingAmountWords,
		"peneliti_pengabdian": r.ActivityType,
		"tim_peneliti":        r.TeamType,
		"file_hasil":          resultFile,
		"created_at":          r.CreatedAt,
		"updated_at":          r.UpdatedAt,
	}
}

func memberRows(members []domain.Member) []docx.Data {
	rows := make([]docx.Data, 0, len(members))
	for _, mb := range members {
		rows = append(rows, docx.Data{
			"id":               mb.ID,
			"surat_id":         mb.RequestID,
			"no":               strconv.Itoa(mb.Seq),
			"nama":             mb.Name,
			"nip":              mb.EmployeeID,
			"pangkat_golongan": mb.Rank,
			PhMemberRank:       mb.Rank,
			"prodi_fakultas":   mb.Department,
		})
	}
	return rows
}

func rupiah(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	minor := d.Decimal.Shift(2).Round(0).IntPart()
	return money.New(minor, "IDR").Display()
}
