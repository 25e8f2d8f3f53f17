package letter

import "strings"

// Template keys.
const (
	IzinPenelitian  = "surat_izin_penelitian"
	IzinPengabdian  = "surat_izin_pengabdian"
	TugasPenelitian = "surat_tugas_penelitian"
	TugasPengabdian = "surat_tugas_pengabdian"
	SPTJM           = "sptjm"
)

const templateExt = ".docx"

// Template is a known document template.
type Template struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

var registry = []Template{
	{Key: IzinPenelitian, Label: "Surat Izin Penelitian"},
	{Key: IzinPengabdian, Label: "Surat Izin Pengabdian"},
	{Key: TugasPenelitian, Label: "Surat Tugas Penelitian"},
	{Key: TugasPengabdian, Label: "Surat Tugas Pengabdian"},
	{Key: SPTJM, Label: "SPTJM (Tanggung Jawab Mutlak)"},
}

// Templates returns the registry in display order.
func Templates() []Template {
	out := make([]Template, len(registry))
	copy(out, registry)
	return out
}

// NormalizeKey trims whitespace and a trailing .docx, which older clients sent.
func NormalizeKey(key string) string {
	key = strings.TrimSpace(key)
	return strings.TrimSuffix(key, templateExt)
}

// Lookup resolves a (possibly legacy) key to its template.
func Lookup(key string) (Template, bool) {
	key = NormalizeKey(key)
	for _, t := range registry {
		if t.Key == key {
			return t, true
		}
	}
	return Template{}, false
}

// File is the object name of the template package in storage.
func (t Template) File() string {
	return t.Key + templateExt
}

func isPermit(key string) bool {
	return key == IzinPenelitian || key == IzinPengabdian
}

func isAssignment(key string) bool {
	return key == TugasPenelitian || key == TugasPengabdian
}
