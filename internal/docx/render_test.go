package docx_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surat/internal/docx"
)

const docHead = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
const docTail = `</w:body></w:document>`

func para(runs ...string) string {
	var b strings.Builder
	b.WriteString("<w:p>")
	for _, r := range runs {
		b.WriteString(`<w:r><w:t>` + r + `</w:t></w:r>`)
	}
	b.WriteString("</w:p>")
	return b.String()
}

func cell(body string) string { return "<w:tc>" + body + "</w:tc>" }

func row(cells ...string) string { return "<w:tr>" + strings.Join(cells, "") + "</w:tr>" }

func buildDocx(t *testing.T, body string, extra map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		"word/document.xml":   docHead + body + docTail,
	}
	for k, v := range extra {
		files[k] = v
	}
	for _, name := range []string{"[Content_Types].xml", "word/document.xml"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[name]))
		require.NoError(t, err)
		delete(files, name)
	}
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func readPart(t *testing.T, pkg []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(pkg), int64(len(pkg)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		defer rc.Close()
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		return string(b)
	}
	t.Fatalf("part %s not found", name)
	return ""
}

var markup = regexp.MustCompile(`<[^>]*>`)

// plainText flattens a document part: one line per paragraph, line breaks
// as "\n" inside a line.
func plainText(xml string) string {
	xml = strings.ReplaceAll(xml, "<w:br/>", "\n")
	xml = strings.ReplaceAll(xml, "</w:p>", "|")
	return markup.ReplaceAllString(xml, "")
}

func render(t *testing.T, body string, data docx.Data) string {
	t.Helper()
	out, err := docx.New().Render(buildDocx(t, body, nil), data)
	require.NoError(t, err)
	return plainText(readPart(t, out, "word/document.xml"))
}

func TestRenderSubstitutesValues(t *testing.T) {
	got := render(t, para("Kepada {penerima} di {lokasi_tujuan}"), docx.Data{
		"penerima":      "Kepala Dinas",
		"lokasi_tujuan": "Kupang",
	})
	assert.Equal(t, "Kepada Kepala Dinas di Kupang|", got)
}

func TestRenderMissingValueIsEmpty(t *testing.T) {
	got := render(t, para("A{tidak_ada}B {juga}"), docx.Data{"juga": nil})
	assert.Equal(t, "AB |", got)
}

func TestRenderTagSplitAcrossRuns(t *testing.T) {
	body := `<w:p><w:r><w:t>Nama: {nama</w:t></w:r><w:proofErr w:type="spellStart"/>` +
		`<w:r><w:rPr><w:b/></w:rPr><w:t>_ke</w:t></w:r><w:r><w:t>tua} selesai</w:t></w:r></w:p>`
	got := render(t, body, docx.Data{"nama_ketua": "Dr. Ani"})
	assert.Equal(t, "Nama: Dr. Ani selesai|", got)
}

func TestRenderPlaceholderWithSpacesAndSlashes(t *testing.T) {
	got := render(t, para("Ke {nama kota/kabupaten/lokasi tempat tujuan} mulai {tanggal mulai}"), docx.Data{
		"nama kota/kabupaten/lokasi tempat tujuan": "Atambua",
		"tanggal mulai": "1 Juli 2025",
	})
	assert.Equal(t, "Ke Atambua mulai 1 Juli 2025|", got)
}

func TestRenderEscapesXML(t *testing.T) {
	out, err := docx.New().Render(buildDocx(t, para("{judul}"), nil), docx.Data{"judul": `Riset <A> & "B"`})
	require.NoError(t, err)
	doc := readPart(t, out, "word/document.xml")
	assert.Contains(t, doc, "Riset &lt;A&gt; &amp; &quot;B&quot;")
	assert.Contains(t, doc, `<w:t xml:space="preserve">`)
}

func TestRenderLinebreaks(t *testing.T) {
	got := render(t, para("{alamat}"), docx.Data{"alamat": "Jl. Adisucipto\nPenfui"})
	assert.Equal(t, "Jl. Adisucipto\nPenfui|", got)
}

func TestRenderInlineLoop(t *testing.T) {
	got := render(t, para("Tim: {#anggota}{nama}; {/anggota}."), docx.Data{
		"anggota": []docx.Data{{"nama": "Budi"}, {"nama": "Citra"}},
	})
	assert.Equal(t, "Tim: Budi; Citra; .|", got)
}

func TestRenderParagraphLoop(t *testing.T) {
	body := para("Anggota:") +
		para("{#anggota}") +
		para("{no}. {nama} ({nip}) {judul}") +
		para("{/anggota}") +
		para("Selesai")
	got := render(t, body, docx.Data{
		"judul": "Riset",
		"anggota": []docx.Data{
			{"no": "2", "nama": "Budi", "nip": "198001"},
			{"no": "3", "nama": "Citra", "nip": "198002"},
		},
	})
	assert.Equal(t, "Anggota:|2. Budi (198001) Riset|3. Citra (198002) Riset|Selesai|", got)
}

func TestRenderTableRowLoop(t *testing.T) {
	body := `<w:tbl>` +
		row(cell(para("No")), cell(para("Nama"))) +
		row(cell(para("{#anggota}{no}")), cell(para("{nama}{/anggota}"))) +
		`</w:tbl>`
	got := render(t, body, docx.Data{
		"anggota": []docx.Data{{"no": "2", "nama": "Budi"}, {"no": "3", "nama": "Citra"}},
	})
	assert.Equal(t, "No|Nama|2|Budi|3|Citra|", got)
}

func TestRenderEmptyLoopDropsRow(t *testing.T) {
	body := `<w:tbl>` +
		row(cell(para("{#anggota}{no}")), cell(para("{nama}{/anggota}"))) +
		`</w:tbl>`
	out, err := docx.New().Render(buildDocx(t, body, nil), docx.Data{"anggota": []docx.Data{}})
	require.NoError(t, err)
	doc := readPart(t, out, "word/document.xml")
	assert.NotContains(t, doc, "<w:tr>")
}

func TestRenderEmptyParagraphLoopKeepsCellParagraph(t *testing.T) {
	body := `<w:tbl>` +
		row(cell(para("Anggota")), cell(para("{#anggota}")+para("{nama}")+para("{/anggota}"))) +
		`</w:tbl>`

	out, err := docx.New().Render(buildDocx(t, body, nil), docx.Data{"anggota": []docx.Data{}})
	require.NoError(t, err)
	doc := readPart(t, out, "word/document.xml")
	assert.Contains(t, doc, "<w:tc><w:p/></w:tc>")
	assert.NotContains(t, doc, "<w:tc></w:tc>")
	assert.Equal(t, "Anggota|", plainText(doc))

	out, err = docx.New().Render(buildDocx(t, body, nil), docx.Data{"anggota": []docx.Data{{"nama": "Budi"}}})
	require.NoError(t, err)
	doc = readPart(t, out, "word/document.xml")
	assert.NotContains(t, doc, "<w:p/>")
	assert.Equal(t, "Anggota|Budi|", plainText(doc))
}

func TestRenderConditionalSections(t *testing.T) {
	body := para("{#ketua}Ketua: {ketua}{/ketua}{^ketua}Tanpa ketua{/ketua}")
	assert.Equal(t, "Ketua: Ani|", render(t, body, docx.Data{"ketua": "Ani"}))
	assert.Equal(t, "Tanpa ketua|", render(t, body, docx.Data{"ketua": ""}))
}

func TestRenderScalarList(t *testing.T) {
	got := render(t, para("{#kota}[{.}]{/kota}"), docx.Data{"kota": []string{"Kupang", "Soe"}})
	assert.Equal(t, "[Kupang][Soe]|", got)
}

func TestRenderHeadersAndFooters(t *testing.T) {
	header := `<w:hdr xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` + para("No: {id}") + `</w:hdr>`
	pkg := buildDocx(t, para("x"), map[string]string{
		"word/header1.xml": header,
		"word/media/logo.png": "PNG",
	})
	out, err := docx.New().Render(pkg, docx.Data{"id": "abc"})
	require.NoError(t, err)
	assert.Equal(t, "No: abc|", plainText(readPart(t, out, "word/header1.xml")))
	assert.Equal(t, "PNG", readPart(t, out, "word/media/logo.png"))
}

func TestRenderCollectsSyntaxErrors(t *testing.T) {
	body := para("{nama") +
		para("ok} {}") +
		para("{#anggota}{nama}") +
		para("{{dobel}")
	_, err := docx.New().Render(buildDocx(t, body, nil), docx.Data{})
	require.Error(t, err)

	var rerr *docx.RenderError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, docx.TemplateSyntaxError, rerr.Kind)
	joined := strings.Join(rerr.Details, "\n")
	assert.Contains(t, joined, `unclosed tag "{nama"`)
	assert.Contains(t, joined, `unopened tag "ok}"`)
	assert.Contains(t, joined, `duplicate open tag "{"`)
	assert.GreaterOrEqual(t, len(rerr.Details), 3)
}

func TestRenderSectionErrors(t *testing.T) {
	body := para("{#anggota}{nama}") + para("{/bukan}") + para("{/sisa}")
	_, err := docx.New().Render(buildDocx(t, body, nil), docx.Data{})
	var rerr *docx.RenderError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, docx.TemplateSyntaxError, rerr.Kind)
	joined := strings.Join(rerr.Details, "\n")
	assert.Contains(t, joined, `section "{#anggota}" closed by "{/bukan}"`)
	assert.Contains(t, joined, `unopened section "{/sisa}"`)
}

func TestRenderEmptyTag(t *testing.T) {
	_, err := docx.New().Render(buildDocx(t, para("a { } b"), nil), docx.Data{})
	var rerr *docx.RenderError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, []string{`empty tag "{}"`}, rerr.Details)
}

func TestRenderRejectsNonZip(t *testing.T) {
	_, err := docx.New().Render([]byte("not a zip"), docx.Data{})
	var rerr *docx.RenderError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, docx.TemplateSyntaxError, rerr.Kind)
}
