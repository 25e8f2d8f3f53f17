package docx

import (
	"fmt"
	"html"
	"strings"
)

const (
	elemParagraph = "w:p"
	elemRow       = "w:tr"
	elemCell      = "w:tc"
	elemText      = "w:t"
)

// token is a piece of a WordprocessingML part: either markup or the
// character data between two pieces of markup.
type token struct {
	raw       string
	markup    bool
	elem      string
	closing   bool
	selfClose bool
	text      bool // character data inside <w:t>
	tOpen     int  // index of the owning <w:t> markup, -1 outside text
	para      int
	row       int
	cell      int
}

func tokenize(src string) []token {
	var (
		toks                        []token
		paras, rows, cells          []int
		nextPara, nextRow, nextCell int
		inText                      bool
		textOpen                    = -1
	)
	top := func(s []int) int {
		if len(s) == 0 {
			return -1
		}
		return s[len(s)-1]
	}
	pop := func(s []int) []int {
		if len(s) == 0 {
			return s
		}
		return s[:len(s)-1]
	}
	for i := 0; i < len(src); {
		tk := token{tOpen: -1, para: top(paras), row: top(rows), cell: top(cells)}
		if src[i] != '<' {
			end := strings.IndexByte(src[i:], '<')
			if end < 0 {
				end = len(src)
			} else {
				end += i
			}
			tk.raw = src[i:end]
			if inText {
				tk.text = true
				tk.tOpen = textOpen
			}
			toks = append(toks, tk)
			i = end
			continue
		}
		end := markupEnd(src, i)
		tk.raw = src[i:end]
		tk.markup = true
		tk.elem, tk.closing, tk.selfClose = parseMarkup(tk.raw)
		opening := !tk.closing && !tk.selfClose
		switch tk.elem {
		case elemParagraph:
			if opening {
				paras = append(paras, nextPara)
				tk.para = nextPara
				nextPara++
			} else if tk.closing {
				paras = pop(paras)
			}
		case elemRow:
			if opening {
				rows = append(rows, nextRow)
				tk.row = nextRow
				nextRow++
			} else if tk.closing {
				rows = pop(rows)
			}
		case elemCell:
			if opening {
				cells = append(cells, nextCell)
				tk.cell = nextCell
				nextCell++
			} else if tk.closing {
				cells = pop(cells)
			}
		case elemText:
			if opening {
				inText = true
				textOpen = len(toks)
			} else if tk.closing {
				inText = false
				textOpen = -1
			}
		}
		toks = append(toks, tk)
		i = end
	}
	return toks
}

// markupEnd returns the index just past the markup starting at i.
func markupEnd(src string, i int) int {
	rest := src[i:]
	switch {
	case strings.HasPrefix(rest, "<!--"):
		if j := strings.Index(rest, "-->"); j >= 0 {
			return i + j + 3
		}
		return len(src)
	case strings.HasPrefix(rest, "<![CDATA["):
		if j := strings.Index(rest, "]]>"); j >= 0 {
			return i + j + 3
		}
		return len(src)
	}
	var quote byte
	for j := i + 1; j < len(src); j++ {
		c := src[j]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return j + 1
		}
	}
	return len(src)
}

func parseMarkup(raw string) (elem string, closing, selfClose bool) {
	s := strings.TrimPrefix(raw, "<")
	if s == "" || s[0] == '?' || s[0] == '!' {
		return "", false, false
	}
	if s[0] == '/' {
		closing = true
		s = s[1:]
	}
	end := strings.IndexAny(s, " \t\r\n/>")
	if end < 0 {
		end = len(s)
	}
	return s[:end], closing, strings.HasSuffix(raw, "/>")
}

// mergeTags moves the text of every tag that Word split over several runs
// into the run where the tag opens, so each tag lives in one text token.
// It reports delimiter errors; tags may not span paragraphs.
func mergeTags(toks []token) []string {
	var errs []string
	openTok, openPos := -1, 0
	for ti := range toks {
		if !toks[ti].text {
			continue
		}
		if openTok >= 0 && toks[openTok].para != toks[ti].para {
			errs = append(errs, fmt.Sprintf("unclosed tag %q", excerpt(toks[openTok].raw[openPos:])))
			openTok = -1
		}
		for i := 0; i < len(toks[ti].raw); i++ {
			switch toks[ti].raw[i] {
			case '{':
				if openTok >= 0 {
					errs = append(errs, fmt.Sprintf("duplicate open tag %q", excerpt(pendingTag(toks, openTok, openPos, ti, i))))
				}
				openTok, openPos = ti, i
			case '}':
				if openTok < 0 {
					errs = append(errs, fmt.Sprintf("unopened tag %q", excerpt(toks[ti].raw[:i+1])))
					continue
				}
				if openTok != ti {
					var b strings.Builder
					b.WriteString(toks[openTok].raw)
					for k := openTok + 1; k < ti; k++ {
						if toks[k].text {
							b.WriteString(toks[k].raw)
							toks[k].raw = ""
						}
					}
					b.WriteString(toks[ti].raw[:i+1])
					toks[openTok].raw = b.String()
					toks[ti].raw = toks[ti].raw[i+1:]
					i = -1
				}
				openTok = -1
			}
		}
	}
	if openTok >= 0 {
		errs = append(errs, fmt.Sprintf("unclosed tag %q", excerpt(toks[openTok].raw[openPos:])))
	}
	return errs
}

// pendingTag is the text of an unterminated tag from its opening delimiter up
// to (but excluding) position end of token last.
func pendingTag(toks []token, first, start, last, end int) string {
	if first == last {
		return toks[first].raw[start:end]
	}
	var b strings.Builder
	b.WriteString(toks[first].raw[start:])
	for k := first + 1; k < last; k++ {
		if toks[k].text {
			b.WriteString(toks[k].raw)
		}
	}
	b.WriteString(toks[last].raw[:end])
	return b.String()
}

func excerpt(s string) string {
	s = html.UnescapeString(s)
	const max = 40
	if len([]rune(s)) > max {
		r := []rune(s)
		return string(r[:max]) + "…"
	}
	return s
}

// preserveSpace marks the <w:t> of every text token holding a tag with
// xml:space="preserve" so substituted leading/trailing spaces survive.
func preserveSpace(toks []token) {
	for _, tk := range toks {
		if !tk.text || tk.tOpen < 0 || !strings.Contains(tk.raw, "{") {
			continue
		}
		open := &toks[tk.tOpen]
		if strings.Contains(open.raw, "xml:space") {
			continue
		}
		open.raw = "<w:t" + ` xml:space="preserve"` + strings.TrimPrefix(open.raw, "<w:t")
	}
}
