// Package docx fills placeholders in Word templates.
//
// Templates use single-brace tags: {name} substitutes a value, {#name} ...
// {/name} repeats its content per list item (or once for a truthy value) and
// {^name} ... {/name} renders only when the value is falsy. Unknown names
// render as empty text.
package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
)

// Data maps placeholder names to values. Lists of Data drive sections.
type Data map[string]any

type Options struct {
	// ParagraphLoop repeats whole paragraphs when a section's open and close
	// tags each sit alone in their own paragraph.
	ParagraphLoop bool
	// Linebreaks turns "\n" in values into Word line breaks.
	Linebreaks bool
}

type Renderer struct {
	Options Options
}

// New returns a renderer with paragraph loops and line breaks enabled.
func New() Renderer {
	return Renderer{Options: Options{ParagraphLoop: true, Linebreaks: true}}
}

var contentParts = []string{
	"word/document.xml",
	"word/header*.xml",
	"word/footer*.xml",
	"word/footnotes.xml",
	"word/endnotes.xml",
}

func isContentPart(name string) bool {
	for _, pattern := range contentParts {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// Render fills tpl, a .docx package, with data. Syntax problems in any part
// are collected and returned together as a *RenderError.
func (r Renderer) Render(tpl []byte, data Data) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(tpl), int64(len(tpl)))
	if err != nil {
		return nil, &RenderError{Kind: TemplateSyntaxError, Details: []string{"invalid template package: " + err.Error()}, Err: err}
	}

	rendered := make(map[string][]byte)
	var details []string
	for _, f := range zr.File {
		if !isContentPart(f.Name) {
			continue
		}
		src, err := readEntry(f)
		if err != nil {
			return nil, &RenderError{Kind: TemplateSyntaxError, Details: []string{fmt.Sprintf("%s: %v", f.Name, err)}, Err: err}
		}
		p, errs := compile(string(src), r.Options)
		if len(errs) > 0 {
			for _, e := range errs {
				if f.Name != "word/document.xml" {
					e = f.Name + ": " + e
				}
				details = append(details, e)
			}
			continue
		}
		rendered[f.Name] = []byte(fillEmptyCells(p.execute(data)))
	}
	if len(details) > 0 {
		return nil, &RenderError{Kind: TemplateSyntaxError, Details: details}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		hdr := &zip.FileHeader{Name: f.Name, Method: zip.Deflate, Modified: f.Modified}
		if strings.HasSuffix(f.Name, "/") {
			hdr.Method = zip.Store
			if _, err := zw.CreateHeader(hdr); err != nil {
				return nil, fmt.Errorf("write %s: %w", f.Name, err)
			}
			continue
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", f.Name, err)
		}
		if body, ok := rendered[f.Name]; ok {
			if _, err := w.Write(body); err != nil {
				return nil, fmt.Errorf("write %s: %w", f.Name, err)
			}
			continue
		}
		if err := copyEntry(w, f); err != nil {
			return nil, fmt.Errorf("copy %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close package: %w", err)
	}
	return buf.Bytes(), nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func copyEntry(w io.Writer, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(w, rc)
	return err
}
