package docx

import (
	"fmt"
	"html"
	"reflect"
	"strings"
)

type tagKind int

const (
	tagNone tagKind = iota
	tagVar
	tagOpen
	tagInvert
	tagClose
)

type node struct {
	raw       string
	tag       tagKind
	name      string
	elem      string
	closing   bool
	selfClose bool
	text      bool
	para      int
	row       int
	cell      int
}

// loopPlan is a section resolved to the range of nodes it replaces and the
// unit it repeats per item.
type loopPlan struct {
	name     string
	inverted bool
	start    int
	end      int
	unitLo   int
	unitHi   int
	skip     map[int]bool
	children []*loopPlan
}

type part struct {
	opts  Options
	nodes []node
	pairs map[int]int

	paraOpen, paraClose map[int]int
	rowOpen, rowClose   map[int]int

	roots []*loopPlan
}

// compile lexes one XML part. The returned errors cover every malformed tag
// and unbalanced section found.
func compile(src string, opts Options) (*part, []string) {
	toks := tokenize(src)
	if errs := mergeTags(toks); len(errs) > 0 {
		return nil, errs
	}
	preserveSpace(toks)

	p := &part{
		opts:      opts,
		pairs:     map[int]int{},
		paraOpen:  map[int]int{},
		paraClose: map[int]int{},
		rowOpen:   map[int]int{},
		rowClose:  map[int]int{},
	}
	var errs []string
	for _, tk := range toks {
		if !tk.text || !strings.Contains(tk.raw, "{") {
			p.nodes = append(p.nodes, node{
				raw: tk.raw, elem: tk.elem, closing: tk.closing, selfClose: tk.selfClose,
				text: tk.text, para: tk.para, row: tk.row, cell: tk.cell,
			})
			continue
		}
		rest := tk.raw
		for rest != "" {
			open := strings.IndexByte(rest, '{')
			if open < 0 {
				p.nodes = append(p.nodes, node{raw: rest, text: true, para: tk.para, row: tk.row, cell: tk.cell})
				break
			}
			if open > 0 {
				p.nodes = append(p.nodes, node{raw: rest[:open], text: true, para: tk.para, row: tk.row, cell: tk.cell})
			}
			end := strings.IndexByte(rest[open:], '}') + open
			n, err := parseTag(rest[open+1 : end])
			if err != "" {
				errs = append(errs, err)
			}
			n.para, n.row, n.cell = tk.para, tk.row, tk.cell
			p.nodes = append(p.nodes, n)
			rest = rest[end+1:]
		}
	}
	errs = append(errs, p.matchSections()...)
	if len(errs) > 0 {
		return nil, errs
	}

	for i, n := range p.nodes {
		if n.selfClose {
			continue
		}
		switch n.elem {
		case elemParagraph:
			if n.closing {
				p.paraClose[n.para] = i
			} else {
				p.paraOpen[n.para] = i
			}
		case elemRow:
			if n.closing {
				p.rowClose[n.row] = i
			} else {
				p.rowOpen[n.row] = i
			}
		}
	}
	p.roots = p.plan(0, len(p.nodes)-1, nil)
	return p, nil
}

func parseTag(raw string) (node, string) {
	body := strings.TrimSpace(html.UnescapeString(raw))
	if body == "" {
		return node{tag: tagVar}, "empty tag \"{}\""
	}
	n := node{tag: tagVar, name: body}
	switch body[0] {
	case '#':
		n.tag = tagOpen
	case '^':
		n.tag = tagInvert
	case '/':
		n.tag = tagClose
	}
	if n.tag != tagVar {
		n.name = strings.TrimSpace(body[1:])
		if n.name == "" && n.tag != tagClose {
			return n, fmt.Sprintf("section without name %q", "{"+body+"}")
		}
	}
	return n, ""
}

func (p *part) matchSections() []string {
	var errs []string
	var stack []int
	for i, n := range p.nodes {
		switch n.tag {
		case tagOpen, tagInvert:
			stack = append(stack, i)
		case tagClose:
			if len(stack) == 0 {
				errs = append(errs, fmt.Sprintf("unopened section %q", "{/"+n.name+"}"))
				continue
			}
			o := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if n.name != "" && n.name != p.nodes[o].name {
				errs = append(errs, fmt.Sprintf("section %q closed by %q", sectionTag(p.nodes[o]), "{/"+n.name+"}"))
				continue
			}
			p.pairs[o] = i
		}
	}
	for _, o := range stack {
		errs = append(errs, fmt.Sprintf("unclosed section %q", sectionTag(p.nodes[o])))
	}
	return errs
}

func sectionTag(n node) string {
	if n.tag == tagInvert {
		return "{^" + n.name + "}"
	}
	return "{#" + n.name + "}"
}

// plan resolves the sections whose open and close tags both lie in [lo, hi].
func (p *part) plan(lo, hi int, skip map[int]bool) []*loopPlan {
	var plans []*loopPlan
	floor := lo
	for i := lo; i <= hi; i++ {
		n := p.nodes[i]
		if skip[i] || (n.tag != tagOpen && n.tag != tagInvert) {
			continue
		}
		c, ok := p.pairs[i]
		if !ok || c > hi {
			continue
		}
		pl := p.planSection(i, c, floor, hi)
		plans = append(plans, pl)
		floor = pl.end + 1
		i = pl.end
	}
	return plans
}

func (p *part) planSection(o, c, floor, hi int) *loopPlan {
	a, b := p.nodes[o], p.nodes[c]
	pl := &loopPlan{
		name:     a.name,
		inverted: a.tag == tagInvert,
		start:    o,
		end:      c,
		unitLo:   o + 1,
		unitHi:   c - 1,
	}
	within := func(s, e int) bool { return s >= floor && e <= hi }
	switch {
	case a.para == b.para:
		// inline: repeat the text between the tags
	case a.row >= 0 && a.row == b.row && a.cell != b.cell:
		s, okS := p.rowOpen[a.row]
		e, okE := p.rowClose[a.row]
		if okS && okE && within(s, e) {
			pl.start, pl.end = s, e
			pl.unitLo, pl.unitHi = s, e
			pl.skip = map[int]bool{o: true, c: true}
		}
	case p.opts.ParagraphLoop && p.tagOnly(a.para, o) && p.tagOnly(b.para, c):
		s, okS := p.paraOpen[a.para]
		e, okE := p.paraClose[b.para]
		aEnd, okA := p.paraClose[a.para]
		bStart, okB := p.paraOpen[b.para]
		if okS && okE && okA && okB && within(s, e) {
			pl.start, pl.end = s, e
			pl.unitLo, pl.unitHi = aEnd+1, bStart-1
		}
	}
	pl.children = p.plan(pl.unitLo, pl.unitHi, pl.skip)
	return pl
}

// tagOnly reports whether the paragraph holds nothing but the tag at idx.
func (p *part) tagOnly(para, idx int) bool {
	s, okS := p.paraOpen[para]
	e, okE := p.paraClose[para]
	if !okS || !okE {
		return false
	}
	for k := s; k <= e; k++ {
		if k == idx {
			continue
		}
		n := p.nodes[k]
		if n.tag != tagNone {
			return false
		}
		if n.text && strings.TrimSpace(n.raw) != "" {
			return false
		}
	}
	return true
}

func (p *part) execute(data Data) string {
	var b strings.Builder
	p.render(&b, 0, len(p.nodes)-1, p.roots, nil, &scope{data: data})
	return b.String()
}

// fillEmptyCells gives every table cell left without a paragraph an empty
// one. Word refuses to open a document with a w:tc that holds no w:p, which
// happens when a paragraph loop filling a whole cell renders zero times.
func fillEmptyCells(src string) string {
	if !strings.Contains(src, "<"+elemCell) {
		return src
	}
	var (
		b     strings.Builder
		cells []bool // per open cell: holds a paragraph
		last  int
	)
	for i := 0; i < len(src); {
		if src[i] != '<' {
			j := strings.IndexByte(src[i:], '<')
			if j < 0 {
				break
			}
			i += j
			continue
		}
		end := markupEnd(src, i)
		elem, closing, selfClose := parseMarkup(src[i:end])
		switch elem {
		case elemCell:
			switch {
			case selfClose:
			case closing:
				if n := len(cells); n > 0 {
					if !cells[n-1] {
						b.WriteString(src[last:i])
						b.WriteString("<w:p/>")
						last = i
					}
					cells = cells[:n-1]
				}
			default:
				cells = append(cells, false)
			}
		case elemParagraph:
			if !closing && len(cells) > 0 {
				cells[len(cells)-1] = true
			}
		}
		i = end
	}
	if last == 0 {
		return src
	}
	b.WriteString(src[last:])
	return b.String()
}

func (p *part) render(b *strings.Builder, lo, hi int, plans []*loopPlan, skip map[int]bool, sc *scope) {
	k := 0
	for i := lo; i <= hi; i++ {
		if k < len(plans) && plans[k].start == i {
			p.renderSection(b, plans[k], sc)
			i = plans[k].end
			k++
			continue
		}
		if skip[i] {
			continue
		}
		n := p.nodes[i]
		switch n.tag {
		case tagNone:
			b.WriteString(n.raw)
		case tagVar:
			b.WriteString(p.format(sc.lookup(n.name)))
		}
	}
}

func (p *part) renderSection(b *strings.Builder, pl *loopPlan, sc *scope) {
	for _, item := range sections(sc.lookup(pl.name), pl.inverted) {
		p.render(b, pl.unitLo, pl.unitHi, pl.children, pl.skip, sc.push(item))
	}
}

const lineBreak = `</w:t><w:br/><w:t xml:space="preserve">`

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func (p *part) format(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		s = x
	case fmt.Stringer:
		s = x.String()
	default:
		s = fmt.Sprint(x)
	}
	s = strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if !p.opts.Linebreaks {
		return xmlEscaper.Replace(s)
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = xmlEscaper.Replace(l)
	}
	return strings.Join(lines, lineBreak)
}

type scope struct {
	data   Data
	item   any
	parent *scope
}

func (s *scope) push(item any) *scope {
	return &scope{data: toData(item), item: item, parent: s}
}

// lookup resolves name against the innermost scope first. "." is the
// current section item.
func (s *scope) lookup(name string) any {
	if name == "." {
		for c := s; c != nil; c = c.parent {
			if c.item != nil {
				return c.item
			}
		}
		return nil
	}
	for c := s; c != nil; c = c.parent {
		if v, ok := c.data[name]; ok {
			return v
		}
	}
	return nil
}

// sections returns the items a section iterates: each element of a list,
// the value itself when truthy, nothing otherwise. Inverted sections run
// once for falsy values.
func sections(v any, inverted bool) []any {
	if inverted {
		if truthy(v) {
			return nil
		}
		return []any{nil}
	}
	if v != nil {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			out := make([]any, rv.Len())
			for i := range out {
				out[i] = rv.Index(i).Interface()
			}
			return out
		}
	}
	if truthy(v) {
		return []any{v}
	}
	return nil
}

func truthy(v any) bool {
	if v == nil {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

func toData(item any) Data {
	switch x := item.(type) {
	case nil:
		return nil
	case Data:
		return x
	case map[string]any:
		return Data(x)
	case map[string]string:
		d := make(Data, len(x))
		for k, v := range x {
			d[k] = v
		}
		return d
	}
	rv := reflect.ValueOf(item)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil
	}
	d := make(Data, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		d[iter.Key().String()] = iter.Value().Interface()
	}
	return d
}
