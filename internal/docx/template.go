package docx

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

// ErrTemplate is wrapped by every merge-field syntax error.
var ErrTemplate = errors.New("malformed template")

// TemplateError describes a malformed merge field.
type TemplateError struct {
	Tag    string
	Reason string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template error: %s %q", e.Reason, e.Tag)
}

func (e *TemplateError) Unwrap() error {
	return ErrTemplate
}

// textElem matches a w:t element and captures its (escaped) character data.
var textElem = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Render merges data into the main document, headers and footers of a DOCX
// template and returns the new document.
//
// Supported fields:
//
//	{name}            value of name, empty when missing
//	{#name}...{/name} repeated for each item of a list, or once when truthy
//	{^name}...{/name} rendered once when name is missing, false or empty
//
// A section whose opening and closing tags each stand alone in a paragraph
// repeats the paragraphs between them; the marker paragraphs are dropped.
// Tags split across runs by the editor are joined before parsing.
func Render(template []byte, data map[string]any) ([]byte, error) {
	r, err := openArchive(template)
	if err != nil {
		return nil, err
	}

	replaced := make(map[string][]byte)
	for _, f := range templateParts(r) {
		raw, err := readFile(f)
		if err != nil {
			return nil, err
		}
		out, err := renderPart(string(raw), data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		replaced[f.Name] = []byte(out)
	}

	return writeArchive(r, replaced)
}

func renderPart(part string, data map[string]any) (string, error) {
	part = joinSplitTags(part)

	nodes, err := parseTemplate(part)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(part))
	if err := renderNodes(nodes, []map[string]any{data}, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

type span struct {
	start, end int
}

// leafParagraphs returns the spans of w:p elements that contain no nested
// paragraph, in document order.
func leafParagraphs(s string) []span {
	var (
		starts   []int
		hasChild []bool
		leaves   []span
	)

	i := 0
	for i < len(s) {
		openAt := strings.Index(s[i:], "<w:p")
		closeAt := strings.Index(s[i:], "</w:p>")
		if openAt < 0 && closeAt < 0 {
			break
		}

		if openAt >= 0 && (closeAt < 0 || openAt < closeAt) {
			pos := i + openAt
			after := pos + len("<w:p")
			if after >= len(s) || (s[after] != ' ' && s[after] != '>' && s[after] != '/') {
				// w:pPr, w:pStyle and friends
				i = after
				continue
			}
			gt := strings.IndexByte(s[after:], '>')
			if gt < 0 {
				break
			}
			tagEnd := after + gt + 1
			if s[tagEnd-2] == '/' {
				i = tagEnd
				continue
			}
			if n := len(hasChild); n > 0 {
				hasChild[n-1] = true
			}
			starts = append(starts, pos)
			hasChild = append(hasChild, false)
			i = tagEnd
			continue
		}

		end := i + closeAt + len("</w:p>")
		if n := len(starts); n > 0 {
			if !hasChild[n-1] {
				leaves = append(leaves, span{starts[n-1], end})
			}
			starts = starts[:n-1]
			hasChild = hasChild[:n-1]
		}
		i = end
	}

	return leaves
}

// joinSplitTags moves tag text that the editor split over several runs into
// the run where the tag starts.
func joinSplitTags(part string) string {
	var b strings.Builder
	last := 0
	for _, p := range leafParagraphs(part) {
		b.WriteString(part[last:p.start])
		b.WriteString(joinParagraphTags(part[p.start:p.end]))
		last = p.end
	}
	b.WriteString(part[last:])
	return b.String()
}

func joinParagraphTags(p string) string {
	locs := textElem.FindAllStringSubmatchIndex(p, -1)
	if len(locs) < 2 {
		return p
	}

	texts := make([]string, len(locs))
	for i, l := range locs {
		texts[i] = p[l[2]:l[3]]
	}

	changed := make([]bool, len(texts))
	merged := false
	for i := 0; i < len(texts); i++ {
		if unclosedBrace(texts[i]) < 0 {
			continue
		}
		for j := i + 1; j < len(texts); j++ {
			if texts[j] == "" {
				continue
			}
			changed[i], changed[j] = true, true
			merged = true
			if k := strings.IndexByte(texts[j], '}'); k >= 0 {
				texts[i] += texts[j][:k+1]
				texts[j] = texts[j][k+1:]
				break
			}
			texts[i] += texts[j]
			texts[j] = ""
		}
	}
	if !merged {
		return p
	}

	var b strings.Builder
	last := 0
	for i, l := range locs {
		b.WriteString(p[last:l[0]])
		if changed[i] {
			b.WriteString(`<w:t xml:space="preserve">`)
			b.WriteString(texts[i])
			b.WriteString(`</w:t>`)
		} else {
			b.WriteString(p[l[0]:l[1]])
		}
		last = l[1]
	}
	b.WriteString(p[last:])
	return b.String()
}

// unclosedBrace returns the index of a '{' not followed by '}', or -1.
func unclosedBrace(s string) int {
	open := -1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			open = i
		case '}':
			open = -1
		}
	}
	return open
}

type tagKind int

const (
	tagVar tagKind = iota
	tagOpen
	tagInverted
	tagClose
	tagCut // tag text moved elsewhere, renders nothing
)

type tag struct {
	kind  tagKind
	name  string
	raw   string
	start int
	end   int
	block bool // the tag owns its whole paragraph or row

	textStart, textEnd int // the braces in w:t
}

func findTags(part string) ([]tag, error) {
	var tags []tag
	for _, l := range textElem.FindAllStringSubmatchIndex(part, -1) {
		content := part[l[2]:l[3]]
		offset := l[2]

		i := 0
		for {
			o := strings.IndexByte(content[i:], '{')
			if o < 0 {
				break
			}
			o += i
			c := strings.IndexByte(content[o:], '}')
			if c < 0 {
				return nil, &TemplateError{Tag: content[o:], Reason: "unclosed tag"}
			}
			c += o

			inner := strings.TrimSpace(content[o+1 : c])
			if strings.ContainsRune(inner, '{') {
				return nil, &TemplateError{Tag: content[o : c+1], Reason: "unclosed tag"}
			}

			t := tag{raw: content[o : c+1], start: offset + o, end: offset + c + 1}
			t.textStart, t.textEnd = t.start, t.end
			switch {
			case strings.HasPrefix(inner, "#"):
				t.kind, t.name = tagOpen, strings.TrimSpace(inner[1:])
			case strings.HasPrefix(inner, "^"):
				t.kind, t.name = tagInverted, strings.TrimSpace(inner[1:])
			case strings.HasPrefix(inner, "/"):
				t.kind, t.name = tagClose, strings.TrimSpace(inner[1:])
			default:
				t.kind, t.name = tagVar, inner
			}
			if t.name == "" {
				return nil, &TemplateError{Tag: t.raw, Reason: "empty tag"}
			}

			tags = append(tags, t)
			i = c + 1
		}
	}
	return tags, nil
}

// promoteBlockTags widens section tags that are the only text of their
// paragraph to cover the whole paragraph.
func promoteBlockTags(part string, tags []tag) {
	paragraphs := leafParagraphs(part)
	pi := 0
	for i := range tags {
		t := &tags[i]
		if t.kind == tagVar {
			continue
		}
		for pi < len(paragraphs) && paragraphs[pi].end <= t.start {
			pi++
		}
		if pi == len(paragraphs) || paragraphs[pi].start > t.start {
			continue
		}
		p := paragraphs[pi]

		var text strings.Builder
		for _, m := range textElem.FindAllStringSubmatch(part[p.start:p.end], -1) {
			text.WriteString(m[1])
		}
		if strings.TrimSpace(text.String()) == t.raw {
			t.start, t.end, t.block = p.start, p.end, true
		}
	}
}

// expandRowSections turns a section whose open and close tags sit in
// different table cells into a row loop: the section covers the rows from
// the one holding the open tag to the one holding the close tag, and the tag
// text is cut from the cells, which keep their paragraphs.
func expandRowSections(part string, tags []tag) []tag {
	var (
		rows, cells []span
		stack       []int
		cuts        []tag
	)
	for i := range tags {
		switch tags[i].kind {
		case tagOpen, tagInverted:
			stack = append(stack, i)
			continue
		case tagClose:
		default:
			continue
		}
		n := len(stack)
		if n == 0 || tags[stack[n-1]].name != tags[i].name {
			// parseTemplate reports it
			return tags
		}
		o, c := &tags[stack[n-1]], &tags[i]
		stack = stack[:n-1]
		if o.end > c.start || wellFormed(part[o.end:c.start]) {
			continue
		}

		if rows == nil {
			rows, cells = elementSpans(part, "w:tr"), elementSpans(part, "w:tc")
		}
		oc, ok1 := innermost(cells, o.textStart)
		cc, ok2 := innermost(cells, c.textStart)
		if !ok1 || !ok2 || oc == cc {
			continue
		}
		first, ok1 := innermost(rows, o.textStart)
		last, ok2 := innermost(rows, c.textStart)
		if !ok1 || !ok2 || first.start > last.start || !wellFormed(part[first.start:last.end]) {
			continue
		}

		cuts = append(cuts,
			tag{kind: tagCut, raw: o.raw, start: o.textStart, end: o.textEnd},
			tag{kind: tagCut, raw: c.raw, start: c.textStart, end: c.textEnd})
		o.start, o.end, o.block = first.start, first.start, true
		c.start, c.end, c.block = last.end, last.end, true
	}
	if len(cuts) == 0 {
		return tags
	}

	tags = append(tags, cuts...)
	sort.SliceStable(tags, func(i, j int) bool { return tags[i].start < tags[j].start })
	return tags
}

// elementSpans returns the spans of all name elements, nested ones included.
func elementSpans(s, name string) []span {
	var (
		open     = "<" + name
		closeTag = "</" + name + ">"
		starts   []int
		spans    []span
	)
	i := 0
	for i < len(s) {
		openAt := strings.Index(s[i:], open)
		closeAt := strings.Index(s[i:], closeTag)
		if openAt < 0 && closeAt < 0 {
			break
		}

		if openAt >= 0 && (closeAt < 0 || openAt < closeAt) {
			pos := i + openAt
			after := pos + len(open)
			if after >= len(s) || (s[after] != ' ' && s[after] != '>' && s[after] != '/') {
				i = after
				continue
			}
			gt := strings.IndexByte(s[after:], '>')
			if gt < 0 {
				break
			}
			tagEnd := after + gt + 1
			if s[tagEnd-2] != '/' {
				starts = append(starts, pos)
			}
			i = tagEnd
			continue
		}

		end := i + closeAt + len(closeTag)
		if n := len(starts); n > 0 {
			spans = append(spans, span{starts[n-1], end})
			starts = starts[:n-1]
		}
		i = end
	}
	return spans
}

// innermost returns the smallest of spans containing pos.
func innermost(spans []span, pos int) (span, bool) {
	var (
		best span
		ok   bool
	)
	for _, sp := range spans {
		if sp.start <= pos && pos < sp.end && (!ok || sp.start > best.start) {
			best, ok = sp, true
		}
	}
	return best, ok
}

type node interface{}

type textNode string

type varNode string

type sectionNode struct {
	name     string
	inverted bool
	children []node
}

func parseTemplate(part string) ([]node, error) {
	tags, err := findTags(part)
	if err != nil {
		return nil, err
	}
	promoteBlockTags(part, tags)
	tags = expandRowSections(part, tags)

	type frame struct {
		section   *sectionNode
		open      tag
		nodes     []node
		bodyStart int
	}

	stack := []*frame{{}}
	pos := 0
	for _, t := range tags {
		cur := stack[len(stack)-1]
		if t.start > pos {
			cur.nodes = append(cur.nodes, textNode(part[pos:t.start]))
		}

		switch t.kind {
		case tagVar:
			cur.nodes = append(cur.nodes, varNode(t.name))
		case tagCut:
		case tagOpen, tagInverted:
			stack = append(stack, &frame{
				section:   &sectionNode{name: t.name, inverted: t.kind == tagInverted},
				open:      t,
				bodyStart: t.end,
			})
		case tagClose:
			if cur.section == nil {
				return nil, &TemplateError{Tag: t.raw, Reason: "closing tag without opening tag"}
			}
			if cur.section.name != t.name {
				return nil, &TemplateError{Tag: t.raw, Reason: "closing tag does not match " + cur.open.raw}
			}
			if cur.open.block != t.block {
				return nil, &TemplateError{Tag: cur.open.raw, Reason: "section must open and close at the same level"}
			}
			if t.block && !wellFormed(part[cur.bodyStart:t.start]) {
				return nil, &TemplateError{Tag: cur.open.raw, Reason: "section crosses element boundaries"}
			}
			cur.section.children = cur.nodes
			stack = stack[:len(stack)-1]
			parent := stack[len(stack)-1]
			parent.nodes = append(parent.nodes, cur.section)
		}
		pos = t.end
	}

	if len(stack) > 1 {
		return nil, &TemplateError{Tag: stack[len(stack)-1].open.raw, Reason: "unclosed section"}
	}

	root := stack[0]
	if pos < len(part) {
		root.nodes = append(root.nodes, textNode(part[pos:]))
	}
	return root.nodes, nil
}

// wellFormed reports whether fragment is a balanced sequence of elements.
func wellFormed(fragment string) bool {
	dec := xml.NewDecoder(strings.NewReader("<fragment>" + fragment + "</fragment>"))
	for {
		if _, err := dec.Token(); err != nil {
			return err == io.EOF
		}
	}
}

func renderNodes(nodes []node, scopes []map[string]any, b *strings.Builder) error {
	for _, n := range nodes {
		switch n := n.(type) {
		case textNode:
			b.WriteString(string(n))
		case varNode:
			b.WriteString(xmlEscaper.Replace(formatValue(lookup(scopes, string(n)))))
		case *sectionNode:
			items, truthy := sectionItems(lookup(scopes, n.name))
			if n.inverted {
				if !truthy {
					if err := renderNodes(n.children, scopes, b); err != nil {
						return err
					}
				}
				continue
			}
			if !truthy {
				continue
			}
			if items == nil {
				if err := renderNodes(n.children, scopes, b); err != nil {
					return err
				}
				continue
			}
			for _, item := range items {
				if err := renderNodes(n.children, append(scopes, item), b); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("unknown template node %T", n)
		}
	}
	return nil
}

func lookup(scopes []map[string]any, name string) any {
	for i := len(scopes) - 1; i >= 0; i-- {
		if v, ok := scopes[i][name]; ok {
			return v
		}
	}
	return nil
}

// sectionItems returns the scopes a section iterates over. A nil slice with
// truthy set means "render once in the current scope".
func sectionItems(v any) ([]map[string]any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case bool:
		return nil, x
	case string:
		return nil, x != ""
	case int:
		return nil, x != 0
	case map[string]any:
		return []map[string]any{x}, true
	case []map[string]any:
		if len(x) == 0 {
			return nil, false
		}
		return x, true
	case []any:
		if len(x) == 0 {
			return nil, false
		}
		items := make([]map[string]any, len(x))
		for i, item := range x {
			if m, ok := item.(map[string]any); ok {
				items[i] = m
			} else {
				items[i] = map[string]any{}
			}
		}
		return items, true
	default:
		return nil, true
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
