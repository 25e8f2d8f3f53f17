package engine_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"surat/internal/config"
	"surat/internal/db"
	"surat/internal/docx"
	"surat/internal/domain"
	"surat/internal/engine"
	"surat/internal/engine/auth"
	"surat/internal/letter"
	"surat/internal/migrate"
	"surat/internal/objstore"
	"surat/internal/repo"
)

type testEnv struct {
	Engine      engine.Engine
	Ctx         context.Context
	TemplateDir string
}

const permitTemplate = `<w:p><w:r><w:t>Kepada {penerima} di {nama kota/kabupaten/lokasi tempat tujuan}</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t>Ketua: {nama_ketua} NIP {nip_ketua}</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t>{#anggota}</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t>{no}. {nama} ({pangkat_gol})</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t>{/anggota}</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t>Kupang, {tanggal_surat}</w:t></w:r></w:p>`

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Path: filepath.Join(dir, "surat.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	tplDir := filepath.Join(dir, "templates")
	if err := os.MkdirAll(tplDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeTemplate(t, tplDir, letter.IzinPenelitian, permitTemplate)

	cfg := config.Default()
	eng := engine.New(conn, cfg)
	clock := time.Date(2025, 3, 5, 2, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	eng.Templates = objstore.Dir{Root: tplDir}
	eng.Results = objstore.Dir{Root: filepath.Join(dir, "hasil"), PublicURL: "https://files.example.test/hasil"}
	return testEnv{Engine: eng, Ctx: context.Background(), TemplateDir: tplDir}
}

func writeTemplate(t *testing.T, dir, key, body string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	doc := `<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, key+".docx"), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func documentText(t *testing.T, pkg []byte) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(pkg), int64(len(pkg)))
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			t.Fatal(err)
		}
		return string(b)
	}
	t.Fatalf("document.xml missing")
	return ""
}

func permitSubmission() letter.Submission {
	return letter.Submission{
		TemplateKey: letter.IzinPenelitian,
		Recipient:   "Kepala Dinas Kesehatan",
		Destination: "Atambua",
		LeaderName:  "Dr. Ani, S.Pd.",
		LeaderID:    "197001011990032001",
		Title:       "Prevalensi Stunting",
		Members: []letter.MemberInput{
			{Name: "Budi", Rank: "III/b"},
			{Name: ""},
			{Name: "Citra", Rank: "III/c"},
		},
	}
}

var (
	owner    = engine.Caller{ID: "user-1"}
	stranger = engine.Caller{ID: "user-2"}
	admin    = engine.Caller{ID: "admin-1", Roles: []string{"admin"}}
)

func TestSubmitStoresRequestAndMembers(t *testing.T) {
	env := newTestEnv(t)
	req, members, err := env.Engine.Submit(env.Ctx, owner.ID, permitSubmission())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if req.Status != domain.StatusPending || req.OwnerID != owner.ID || req.ID == "" {
		t.Fatalf("unexpected request %+v", req)
	}
	if len(members) != 2 || members[0].Seq != 2 || members[1].Seq != 3 {
		t.Fatalf("members not renumbered: %+v", members)
	}

	got, stored, err := env.Engine.Get(env.Ctx, req.ID, owner)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Recipient != "Kepala Dinas Kesehatan" || got.ResultFile != nil {
		t.Fatalf("unexpected stored request %+v", got)
	}
	if len(stored) != 2 || stored[1].Name != "Citra" || stored[1].Seq != 3 {
		t.Fatalf("unexpected stored members %+v", stored)
	}

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{EntityID: req.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 || evts[0].Type != "request.submitted" {
		t.Fatalf("expected submitted event, got %+v", evts)
	}
}

func TestSubmitValidationStoresNothing(t *testing.T) {
	env := newTestEnv(t)
	sub := permitSubmission()
	sub.Recipient = " "
	_, _, err := env.Engine.Submit(env.Ctx, owner.ID, sub)
	var verr *letter.ValidationError
	if !errors.As(err, &verr) || !verr.Has(letter.KindMissingField, "penerima") {
		t.Fatalf("expected missing penerima, got %v", err)
	}
	all, err := env.Engine.ListAll(env.Ctx, admin, engine.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no stored requests, got %d", len(all))
	}
}

func TestSubmitIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.DB.Exec(`CREATE TRIGGER fail_anggota BEFORE INSERT ON anggota BEGIN SELECT RAISE(ABORT, 'boom'); END;`); err != nil {
		t.Fatal(err)
	}
	_, _, err := env.Engine.Submit(env.Ctx, owner.ID, permitSubmission())
	var serr *engine.StorageWriteError
	if !errors.As(err, &serr) {
		t.Fatalf("expected storage error, got %v", err)
	}
	var n int
	if err := env.Engine.DB.QueryRow(`SELECT COUNT(*) FROM surat`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("orphaned request left behind")
	}
}

func TestGenerateRendersForOwnerAndAdmin(t *testing.T) {
	env := newTestEnv(t)
	req, _, err := env.Engine.Submit(env.Ctx, owner.ID, permitSubmission())
	if err != nil {
		t.Fatal(err)
	}
	doc, err := env.Engine.Generate(env.Ctx, req.ID, owner)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if doc.Filename != "Surat-DrAniSPd.docx" {
		t.Fatalf("unexpected filename %q", doc.Filename)
	}
	if doc.ContentType != engine.DocxContentType {
		t.Fatalf("unexpected content type %q", doc.ContentType)
	}
	text := documentText(t, doc.Body)
	for _, want := range []string{
		"Kepada Kepala Dinas Kesehatan di Atambua",
		"Ketua: Dr. Ani, S.Pd. NIP 197001011990032001",
		"2. Budi (III/b)",
		"3. Citra (III/c)",
		"Kupang, 5 Maret 2025",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("document missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "{") {
		t.Fatalf("unresolved tags left in document")
	}

	if _, err := env.Engine.Generate(env.Ctx, req.ID, stranger); !errors.As(err, new(auth.ForbiddenError)) {
		t.Fatalf("expected forbidden for stranger, got %v", err)
	}
	if _, err := env.Engine.Generate(env.Ctx, req.ID, admin); err != nil {
		t.Fatalf("admin generate: %v", err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{Type: "document.generated"})
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 2 {
		t.Fatalf("expected 2 document events, got %d", len(evts))
	}
}

func TestGenerateProfileAdmin(t *testing.T) {
	env := newTestEnv(t)
	req, _, err := env.Engine.Submit(env.Ctx, owner.ID, permitSubmission())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetRole(env.Ctx, "cli", stranger.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := env.Engine.Generate(env.Ctx, req.ID, stranger); err != nil {
		t.Fatalf("profile admin generate: %v", err)
	}
	if _, err := env.Engine.SetRole(env.Ctx, "cli", stranger.ID, domain.RoleUser); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := env.Engine.Generate(env.Ctx, req.ID, stranger); !errors.As(err, new(auth.ForbiddenError)) {
		t.Fatalf("expected forbidden after revoke, got %v", err)
	}
}

func TestGenerateErrors(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.Engine.Generate(env.Ctx, "missing", owner); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	sub := letter.Submission{
		TemplateKey: letter.TugasPenelitian, Scheme: "Dasar", StartDate: "1 Juli 2025", EndDate: "1 Des 2025",
		Location: "Soe", Regency: "TTS", LeaderName: "Ani", LeaderID: "1", Title: "Riset",
	}
	req, _, err := env.Engine.Submit(env.Ctx, owner.ID, sub)
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.Generate(env.Ctx, req.ID, owner)
	var rerr *docx.RenderError
	if !errors.As(err, &rerr) || rerr.Kind != docx.TemplateFetchFailed {
		t.Fatalf("expected fetch failure, got %v", err)
	}

	writeTemplate(t, env.TemplateDir, letter.TugasPenelitian, `<w:p><w:r><w:t>{skema</w:t></w:r></w:p><w:p><w:r><w:t>{#anggota}</w:t></w:r></w:p>`)
	_, err = env.Engine.Generate(env.Ctx, req.ID, owner)
	if !errors.As(err, &rerr) || rerr.Kind != docx.TemplateSyntaxError || len(rerr.Details) == 0 {
		t.Fatalf("expected syntax error, got %v", err)
	}
}

func TestFilenameFallback(t *testing.T) {
	cases := map[string]string{
		"":               "Surat-Dokumen.docx",
		"  ...  ":        "Surat-Dokumen.docx",
		"Dr. Ani, S.Pd.": "Surat-DrAniSPd.docx",
		"Ñame 2":         "Surat-ame2.docx",
	}
	for in, want := range cases {
		if got := engine.Filename(in); got != want {
			t.Fatalf("Filename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	req, _, err := env.Engine.Submit(env.Ctx, owner.ID, permitSubmission())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.Engine.MarkCompleted(env.Ctx, req.ID, owner, "hasil.pdf", []byte("%PDF")); !errors.As(err, new(auth.ForbiddenError)) {
		t.Fatalf("expected forbidden for owner, got %v", err)
	}
	if _, err := env.Engine.MarkCompleted(env.Ctx, req.ID, admin, "hasil.pdf", nil); err == nil {
		t.Fatalf("expected error for empty upload")
	}

	done, err := env.Engine.MarkCompleted(env.Ctx, req.ID, admin, "hasil.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.StatusCompleted || done.ResultFile == nil {
		t.Fatalf("unexpected completed request %+v", done)
	}
	if !strings.HasPrefix(*done.ResultFile, "https://files.example.test/hasil/") || !strings.HasSuffix(*done.ResultFile, "-hasil.pdf") {
		t.Fatalf("unexpected result url %q", *done.ResultFile)
	}

	var terr *engine.TransitionError
	if _, err := env.Engine.MarkRejected(env.Ctx, req.ID, admin); !errors.As(err, &terr) {
		t.Fatalf("expected transition error, got %v", err)
	}
	if _, err := env.Engine.MarkCompleted(env.Ctx, req.ID, admin, "lagi.pdf", []byte("x")); !errors.As(err, &terr) {
		t.Fatalf("expected transition error on repeat, got %v", err)
	}

	other, _, err := env.Engine.Submit(env.Ctx, owner.ID, permitSubmission())
	if err != nil {
		t.Fatal(err)
	}
	rejected, err := env.Engine.MarkRejected(env.Ctx, other.ID, admin)
	if err != nil || rejected.Status != domain.StatusRejected {
		t.Fatalf("reject: %v", err)
	}
}

func TestListing(t *testing.T) {
	env := newTestEnv(t)
	first, _, err := env.Engine.Submit(env.Ctx, owner.ID, permitSubmission())
	if err != nil {
		t.Fatal(err)
	}
	sub := permitSubmission()
	sub.TemplateKey = letter.IzinPengabdian
	sub.Title = "Pelatihan Petani Garam"
	second, _, err := env.Engine.Submit(env.Ctx, owner.ID, sub)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.Submit(env.Ctx, stranger.ID, permitSubmission()); err != nil {
		t.Fatal(err)
	}

	mine, err := env.Engine.ListMine(env.Ctx, owner, engine.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 || mine[0].ID != second.ID || mine[1].ID != first.ID {
		t.Fatalf("expected own requests newest first, got %+v", mine)
	}

	if _, err := env.Engine.ListAll(env.Ctx, owner, engine.ListFilter{}); !errors.As(err, new(auth.ForbiddenError)) {
		t.Fatalf("expected forbidden list for non-admin, got %v", err)
	}
	all, err := env.Engine.ListAll(env.Ctx, admin, engine.ListFilter{})
	if err != nil || len(all) != 3 {
		t.Fatalf("list all: %v (%d)", err, len(all))
	}
	byKey, err := env.Engine.ListAll(env.Ctx, admin, engine.ListFilter{TemplateKey: letter.IzinPengabdian + ".docx"})
	if err != nil || len(byKey) != 1 || byKey[0].ID != second.ID {
		t.Fatalf("filter by key: %v %+v", err, byKey)
	}
	byQuery, err := env.Engine.ListAll(env.Ctx, admin, engine.ListFilter{Query: "garam"})
	if err != nil || len(byQuery) != 1 {
		t.Fatalf("search: %v %+v", err, byQuery)
	}
	byLeader, err := env.Engine.ListAll(env.Ctx, admin, engine.ListFilter{Query: "DR. ANI", Status: domain.StatusPending})
	if err != nil || len(byLeader) != 3 {
		t.Fatalf("search leader: %v %d", err, len(byLeader))
	}
}

func TestWhoAmI(t *testing.T) {
	env := newTestEnv(t)
	me, err := env.Engine.WhoAmI(env.Ctx, owner)
	if err != nil || me.Admin {
		t.Fatalf("owner should not be admin: %v %+v", err, me)
	}
	me, err = env.Engine.WhoAmI(env.Ctx, admin)
	if err != nil || !me.Admin {
		t.Fatalf("token admin should be admin: %v %+v", err, me)
	}
	if _, err := env.Engine.SetRole(env.Ctx, "cli", "u", "root"); err == nil {
		t.Fatalf("expected invalid role error")
	}
}

// rejectDuringPut rejects the request while the result is being uploaded.
type rejectDuringPut struct {
	objstore.Sink
	reject func(context.Context) error
}

func (s rejectDuringPut) Put(ctx context.Context, name string, content []byte, contentType string) (string, error) {
	if err := s.reject(ctx); err != nil {
		return "", err
	}
	return s.Sink.Put(ctx, name, content, contentType)
}

func TestCompleteAfterConcurrentRejectLogsOrphanedUpload(t *testing.T) {
	env := newTestEnv(t)
	req, _, err := env.Engine.Submit(env.Ctx, owner.ID, permitSubmission())
	if err != nil {
		t.Fatal(err)
	}

	core, logs := observer.New(zap.WarnLevel)
	eng := env.Engine
	eng.Logger = zap.New(core)
	eng.Results = rejectDuringPut{Sink: env.Engine.Results, reject: func(ctx context.Context) error {
		_, err := env.Engine.MarkRejected(ctx, req.ID, admin)
		return err
	}}

	var terr *engine.TransitionError
	if _, err := eng.MarkCompleted(env.Ctx, req.ID, admin, "hasil.pdf", []byte("%PDF")); !errors.As(err, &terr) {
		t.Fatalf("expected transition error, got %v", err)
	}
	entries := logs.FilterMessage("result file orphaned").All()
	if len(entries) != 1 {
		t.Fatalf("expected one orphan warning, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != req.ID {
		t.Fatalf("unexpected request_id %v", fields["request_id"])
	}
	url, _ := fields["file_hasil"].(string)
	if !strings.HasPrefix(url, "https://files.example.test/hasil/") || !strings.HasSuffix(url, "-hasil.pdf") {
		t.Fatalf("unexpected orphaned url %q", url)
	}

	got, _, err := env.Engine.Get(env.Ctx, req.ID, admin)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusRejected || got.ResultFile != nil {
		t.Fatalf("unexpected request after race %+v", got)
	}
}
