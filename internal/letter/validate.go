package letter

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"surat/internal/domain"
)

// Field error kinds.
const (
	KindMissingField    = "missing_field"
	KindInvalidField    = "invalid_field"
	KindUnknownTemplate = "unknown_template"
)

// Selector defaults, matching the submission form.
const (
	DefaultLeaderRole   = "peneliti"
	DefaultActivityType = "penelitian"
	DefaultTeamType     = "peneliti"
)

// Submission is the raw field set a user submits.
type Submission struct {
	TemplateKey string

	Title         string
	FundingSource string
	Year          string

	LeaderName string
	LeaderID   string
	LeaderRank string
	LeaderDept string
	WorkUnit   string

	Recipient       string
	Destination     string
	CommunityScheme string
	Scheme          string

	StartDate  string
	EndDate    string
	Location   string
	Regency    string
	LetterDate string

	LeaderRole         string
	FundingAmount      string
	FundingAmountWords string
	ActivityType       string
	TeamType           string

	Members []MemberInput
}

type MemberInput struct {
	Name       string
	EmployeeID string
	Rank       string
	Department string
}

// Validated is a submission that passed validation, ready to persist.
// ID, owner, status and timestamps are left for the caller to assign.
type Validated struct {
	Request domain.Request
	Members []domain.Member
}

type FieldError struct {
	Kind  string `json:"kind"`
	Field string `json:"field"`
}

func (e FieldError) String() string {
	return strings.ReplaceAll(e.Kind, "_", " ") + " " + e.Field
}

// ValidationError collects every field problem found in a submission.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.String()
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Has reports whether the error names field with the given kind.
func (e *ValidationError) Has(kind, field string) bool {
	for _, fe := range e.Errors {
		if fe.Kind == kind && fe.Field == field {
			return true
		}
	}
	return false
}

type permitFields struct {
	Recipient   string `json:"penerima" validate:"required"`
	Destination string `json:"lokasi_tujuan" validate:"required"`
	LeaderName  string `json:"ketua_nama" validate:"required"`
	LeaderID    string `json:"ketua_nip" validate:"required"`
	Title       string `json:"judul" validate:"required"`
}

type assignmentFields struct {
	Scheme     string `json:"skema" validate:"required"`
	StartDate  string `json:"tanggal_mulai" validate:"required"`
	EndDate    string `json:"tanggal_akhir" validate:"required"`
	Location   string `json:"lokasi" validate:"required"`
	Regency    string `json:"kabupaten_lokasi" validate:"required"`
	LeaderName string `json:"ketua_nama" validate:"required"`
	LeaderID   string `json:"ketua_nip" validate:"required"`
	Title      string `json:"judul" validate:"required"`
}

type sptjmFields struct {
	LeaderName         string `json:"ketua_nama" validate:"required"`
	LeaderID           string `json:"ketua_nip" validate:"required"`
	WorkUnit           string `json:"satuan_kerja" validate:"required"`
	FundingAmount      string `json:"dana" validate:"required,numeric"`
	FundingAmountWords string `json:"dana_terbilang" validate:"required"`
	Year               string `json:"tahun" validate:"required"`
	LeaderRole         string `json:"peneliti_pelaksana" validate:"oneof=peneliti pelaksana"`
	ActivityType       string `json:"peneliti_pengabdian" validate:"oneof=penelitian pengabdian"`
	TeamType           string `json:"tim_peneliti" validate:"oneof=peneliti pelaksana"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a submission against the required-field set of its template
// and returns the normalized request. All problems are reported together.
func Validate(sub Submission) (Validated, error) {
	sub = trimSubmission(sub)
	if sub.TemplateKey == "" {
		return Validated{}, &ValidationError{Errors: []FieldError{{Kind: KindMissingField, Field: "template_key"}}}
	}
	tpl, ok := Lookup(sub.TemplateKey)
	if !ok {
		return Validated{}, &ValidationError{Errors: []FieldError{{Kind: KindUnknownTemplate, Field: "template_key"}}}
	}
	sub.TemplateKey = tpl.Key
	if tpl.Key == SPTJM {
		applySelectorDefaults(&sub)
	}

	var target any
	switch {
	case isPermit(tpl.Key):
		target = permitFields{
			Recipient:   sub.Recipient,
			Destination: sub.Destination,
			LeaderName:  sub.LeaderName,
			LeaderID:    sub.LeaderID,
			Title:       sub.Title,
		}
	case isAssignment(tpl.Key):
		target = assignmentFields{
			Scheme:     sub.Scheme,
			StartDate:  sub.StartDate,
			EndDate:    sub.EndDate,
			Location:   sub.Location,
			Regency:    sub.Regency,
			LeaderName: sub.LeaderName,
			LeaderID:   sub.LeaderID,
			Title:      sub.Title,
		}
	default:
		target = sptjmFields{
			LeaderName:         sub.LeaderName,
			LeaderID:           sub.LeaderID,
			WorkUnit:           sub.WorkUnit,
			FundingAmount:      sub.FundingAmount,
			FundingAmountWords: sub.FundingAmountWords,
			Year:               sub.Year,
			LeaderRole:         sub.LeaderRole,
			ActivityType:       sub.ActivityType,
			TeamType:           sub.TeamType,
		}
	}

	var verr ValidationError
	if err := validate.Struct(target); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return Validated{}, fmt.Errorf("validate %s: %w", tpl.Key, err)
		}
		for _, fe := range fieldErrs {
			kind := KindInvalidField
			if fe.Tag() == "required" {
				kind = KindMissingField
			}
			verr.Errors = append(verr.Errors, FieldError{Kind: kind, Field: fe.Field()})
		}
	}

	// dana is optional outside sptjm but must still be a non-negative
	// number when given. It is stored as typed.
	if sub.FundingAmount != "" {
		d, err := decimal.NewFromString(sub.FundingAmount)
		if (err != nil || d.IsNegative()) && !verr.Has(KindInvalidField, "dana") {
			verr.Errors = append(verr.Errors, FieldError{Kind: KindInvalidField, Field: "dana"})
		}
	}
	if len(verr.Errors) > 0 {
		return Validated{}, &verr
	}

	return Validated{
		Request: requestFromSubmission(sub),
		Members: compactMembers(sub.Members),
	}, nil
}

func applySelectorDefaults(sub *Submission) {
	if sub.LeaderRole == "" {
		sub.LeaderRole = DefaultLeaderRole
	}
	if sub.ActivityType == "" {
		sub.ActivityType = DefaultActivityType
	}
	if sub.TeamType == "" {
		sub.TeamType = DefaultTeamType
	}
}

func trimSubmission(s Submission) Submission {
	for _, p := range []*string{
		&s.TemplateKey, &s.Title, &s.FundingSource, &s.Year,
		&s.LeaderName, &s.LeaderID, &s.LeaderRank, &s.LeaderDept, &s.WorkUnit,
		&s.Recipient, &s.Destination, &s.CommunityScheme, &s.Scheme,
		&s.StartDate, &s.EndDate, &s.Location, &s.Regency, &s.LetterDate,
		&s.LeaderRole, &s.FundingAmount, &s.FundingAmountWords, &s.ActivityType, &s.TeamType,
	} {
		*p = strings.TrimSpace(*p)
	}
	return s
}

func requestFromSubmission(s Submission) domain.Request {
	return domain.Request{
		TemplateKey:        s.TemplateKey,
		Title:              s.Title,
		FundingSource:      s.FundingSource,
		Year:               s.Year,
		LeaderName:         s.LeaderName,
		LeaderID:           s.LeaderID,
		LeaderRank:         s.LeaderRank,
		LeaderDept:         s.LeaderDept,
		WorkUnit:           s.WorkUnit,
		Recipient:          s.Recipient,
		Destination:        s.Destination,
		CommunityScheme:    s.CommunityScheme,
		Scheme:             s.Scheme,
		StartDate:          s.StartDate,
		EndDate:            s.EndDate,
		Location:           s.Location,
		Regency:            s.Regency,
		LetterDate:         s.LetterDate,
		LeaderRole:         s.LeaderRole,
		FundingAmount:      s.FundingAmount,
		FundingAmountWords: s.FundingAmountWords,
		ActivityType:       s.ActivityType,
		TeamType:           s.TeamType,
	}
}
