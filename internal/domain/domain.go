package domain

import "github.com/shopspring/decimal"

// Request statuses.
const (
	StatusPending   = "Pending"
	StatusCompleted = "Completed"
	StatusRejected  = "Rejected"
)

// Profile roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Request is one submitted letter request. Field tags carry the storage names,
// which are also the placeholder names the templates were authored against.
type Request struct {
	ID          string `json:"id"`
	TemplateKey string `json:"template_key"`
	OwnerID     string `json:"user_id"`
	Status      string `json:"status"`

	Title         string `json:"judul"`
	FundingSource string `json:"sumber_pendanaan"`
	Year          string `json:"tahun"`

	LeaderName string `json:"ketua_nama"`
	LeaderID   string `json:"ketua_nip"`
	LeaderRank string `json:"ketua_pangkat_gol"`
	LeaderDept string `json:"ketua_prodi_fak"`
	WorkUnit   string `json:"satuan_kerja"`

	Recipient       string `json:"penerima"`
	Destination     string `json:"lokasi_tujuan"`
	CommunityScheme string `json:"skema_pengabdian"`
	Scheme          string `json:"skema"`

	StartDate  string `json:"tanggal_mulai"`
	EndDate    string `json:"tanggal_akhir"`
	Location   string `json:"lokasi"`
	Regency    string `json:"kabupaten_lokasi"`
	LetterDate string `json:"tanggal_surat"`

	LeaderRole         string `json:"peneliti_pelaksana"`
	FundingAmount      string `json:"dana"`
	FundingAmountWords string `json:"dana_terbilang"`
	ActivityType       string `json:"peneliti_pengabdian"`
	TeamType           string `json:"tim_peneliti"`

	ResultFile *string `json:"file_hasil"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

// Member is a team member of a request. The leader is implicitly member 1,
// so Seq starts at 2.
type Member struct {
	ID         string `json:"id"`
	RequestID  string `json:"surat_id"`
	Seq        int    `json:"no"`
	Name       string `json:"nama"`
	EmployeeID string `json:"nip"`
	Rank       string `json:"pangkat_golongan"`
	Department string `json:"prodi_fakultas"`
}

type Profile struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Amount parses dana as typed. It is invalid when dana is empty or not a number.
func (r Request) Amount() decimal.NullDecimal {
	d, err := decimal.NewFromString(r.FundingAmount)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// Terminal reports whether no further status transition is allowed.
func (r Request) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusRejected
}
