package server

import (
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"

	"surat/internal/domain"
	"surat/internal/engine"
	"surat/internal/letter"
)

// Request payloads

// SubmitRequest carries the form fields under their storage names. Every
// field is optional at the schema level; the template decides what is
// required.
type SubmitRequest struct {
	_ struct{} `additionalProperties:"true"`

	TemplateKey string `json:"template_key,omitempty" example:"surat_izin_penelitian"`

	Title         string  `json:"judul,omitempty"`
	FundingSource string  `json:"sumber_pendanaan,omitempty"`
	Year          numeric `json:"tahun,omitempty"`

	LeaderName string `json:"ketua_nama,omitempty"`
	LeaderID   string `json:"ketua_nip,omitempty"`
	LeaderRank string `json:"ketua_pangkat_gol,omitempty"`
	LeaderDept string `json:"ketua_prodi_fak,omitempty"`
	WorkUnit   string `json:"satuan_kerja,omitempty"`

	Recipient       string `json:"penerima,omitempty"`
	Destination     string `json:"lokasi_tujuan,omitempty"`
	CommunityScheme string `json:"skema_pengabdian,omitempty"`
	Scheme          string `json:"skema,omitempty"`

	StartDate  string `json:"tanggal_mulai,omitempty"`
	EndDate    string `json:"tanggal_akhir,omitempty"`
	Location   string `json:"lokasi,omitempty"`
	Regency    string `json:"kabupaten_lokasi,omitempty"`
	LetterDate string `json:"tanggal_surat,omitempty"`

	LeaderRole         string  `json:"peneliti_pelaksana,omitempty"`
	FundingAmount      numeric `json:"dana,omitempty"`
	FundingAmountWords string  `json:"dana_terbilang,omitempty"`
	ActivityType       string  `json:"peneliti_pengabdian,omitempty"`
	TeamType           string  `json:"tim_peneliti,omitempty"`

	Members []MemberRequest `json:"anggota,omitempty"`
}

type MemberRequest struct {
	_ struct{} `additionalProperties:"true"`

	Name       string `json:"nama,omitempty"`
	EmployeeID string `json:"nip,omitempty"`
	Rank       string `json:"pangkat_golongan,omitempty"`
	Department string `json:"prodi_fakultas,omitempty"`
}

// numeric is a form value clients send either as a JSON string or as a
// number. Numbers keep their literal text.
type numeric string

func (n *numeric) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = numeric(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*n = numeric(num.String())
	return nil
}

func (numeric) Schema(r huma.Registry) *huma.Schema {
	return &huma.Schema{OneOf: []*huma.Schema{
		{Type: huma.TypeString},
		{Type: huma.TypeNumber},
	}}
}

func (r SubmitRequest) submission() letter.Submission {
	members := make([]letter.MemberInput, len(r.Members))
	for i, m := range r.Members {
		members[i] = letter.MemberInput{
			Name:       m.Name,
			EmployeeID: m.EmployeeID,
			Rank:       m.Rank,
			Department: m.Department,
		}
	}
	return letter.Submission{
		TemplateKey:        r.TemplateKey,
		Title:              r.Title,
		FundingSource:      r.FundingSource,
		Year:               string(r.Year),
		LeaderName:         r.LeaderName,
		LeaderID:           r.LeaderID,
		LeaderRank:         r.LeaderRank,
		LeaderDept:         r.LeaderDept,
		WorkUnit:           r.WorkUnit,
		Recipient:          r.Recipient,
		Destination:        r.Destination,
		CommunityScheme:    r.CommunityScheme,
		Scheme:             r.Scheme,
		StartDate:          r.StartDate,
		EndDate:            r.EndDate,
		Location:           r.Location,
		Regency:            r.Regency,
		LetterDate:         r.LetterDate,
		LeaderRole:         r.LeaderRole,
		FundingAmount:      string(r.FundingAmount),
		FundingAmountWords: r.FundingAmountWords,
		ActivityType:       r.ActivityType,
		TeamType:           r.TeamType,
		Members:            members,
	}
}

// Responses

type TemplateResponse struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type MemberResponse struct {
	ID         string `json:"id"`
	RequestID  string `json:"surat_id"`
	Seq        int    `json:"no"`
	Name       string `json:"nama"`
	EmployeeID string `json:"nip,omitempty"`
	Rank       string `json:"pangkat_golongan,omitempty"`
	Department string `json:"prodi_fakultas,omitempty"`
}

type RequestResponse struct {
	ID          string `json:"id"`
	TemplateKey string `json:"template_key"`
	OwnerID     string `json:"user_id"`
	Status      string `json:"status" enum:"Pending,Completed,Rejected"`

	Title         string `json:"judul,omitempty"`
	FundingSource string `json:"sumber_pendanaan,omitempty"`
	Year          string `json:"tahun,omitempty"`

	LeaderName string `json:"ketua_nama,omitempty"`
	LeaderID   string `json:"ketua_nip,omitempty"`
	LeaderRank string `json:"ketua_pangkat_gol,omitempty"`
	LeaderDept string `json:"ketua_prodi_fak,omitempty"`
	WorkUnit   string `json:"satuan_kerja,omitempty"`

	Recipient       string `json:"penerima,omitempty"`
	Destination     string `json:"lokasi_tujuan,omitempty"`
	CommunityScheme string `json:"skema_pengabdian,omitempty"`
	Scheme          string `json:"skema,omitempty"`

	StartDate  string `json:"tanggal_mulai,omitempty"`
	EndDate    string `json:"tanggal_akhir,omitempty"`
	Location   string `json:"lokasi,omitempty"`
	Regency    string `json:"kabupaten_lokasi,omitempty"`
	LetterDate string `json:"tanggal_surat,omitempty"`

	LeaderRole         string  `json:"peneliti_pelaksana,omitempty"`
	FundingAmount      *string `json:"dana,omitempty"`
	FundingAmountWords string  `json:"dana_terbilang,omitempty"`
	ActivityType       string  `json:"peneliti_pengabdian,omitempty"`
	TeamType           string  `json:"tim_peneliti,omitempty"`

	ResultFile *string `json:"file_hasil,omitempty"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`

	Members []MemberResponse `json:"anggota,omitempty"`
}

type MeResponse struct {
	ID    string `json:"id"`
	Admin bool   `json:"admin"`
}

func templateResponses(items []letter.Template) []TemplateResponse {
	res := make([]TemplateResponse, 0, len(items))
	for _, t := range items {
		res = append(res, TemplateResponse{Key: t.Key, Label: t.Label})
	}
	return res
}

func requestResponse(r domain.Request) RequestResponse {
	resp := RequestResponse{
		ID:                 r.ID,
		TemplateKey:        r.TemplateKey,
		OwnerID:            r.OwnerID,
		Status:             r.Status,
		Title:              r.Title,
		FundingSource:      r.FundingSource,
		Year:               r.Year,
		LeaderName:         r.LeaderName,
		LeaderID:           r.LeaderID,
		LeaderRank:         r.LeaderRank,
		LeaderDept:         r.LeaderDept,
		WorkUnit:           r.WorkUnit,
		Recipient:          r.Recipient,
		Destination:        r.Destination,
		CommunityScheme:    r.CommunityScheme,
		Scheme:             r.Scheme,
		StartDate:          r.StartDate,
		EndDate:            r.EndDate,
		Location:           r.Location,
		Regency:            r.Regency,
		LetterDate:         r.LetterDate,
		LeaderRole:         r.LeaderRole,
		FundingAmountWords: r.FundingAmountWords,
		ActivityType:       r.ActivityType,
		TeamType:           r.TeamType,
		ResultFile:         r.ResultFile,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.FundingAmount != "" {
		amount := r.FundingAmount
		resp.FundingAmount = &amount
	}
	return resp
}

func requestDetail(r domain.Request, members []domain.Member) RequestResponse {
	resp := requestResponse(r)
	resp.Members = make([]MemberResponse, 0, len(members))
	for _, m := range members {
		resp.Members = append(resp.Members, MemberResponse{
			ID:         m.ID,
			RequestID:  m.RequestID,
			Seq:        m.Seq,
			Name:       m.Name,
			EmployeeID: m.EmployeeID,
			Rank:       m.Rank,
			Department: m.Department,
		})
	}
	return resp
}

func mapRequests(items []domain.Request) []RequestResponse {
	res := make([]RequestResponse, 0, len(items))
	for _, r := range items {
		res = append(res, requestResponse(r))
	}
	return res
}

func meResponse(me engine.Me) MeResponse {
	return MeResponse{ID: me.ID, Admin: me.Admin}
}
