package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Align is a paragraph alignment.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// Run is a piece of text with uniform formatting.
type Run struct {
	Text string
	Bold bool
	Size int // points, 0 keeps the default
}

// PageSetup describes the page size and margins in twentieths of a point.
type PageSetup struct {
	Width, Height            int
	Top, Bottom, Left, Right int
}

// A4 is an A4 portrait page with 2 cm top/bottom, 3 cm left and 1.5 cm right margins.
var A4 = PageSetup{Width: 11906, Height: 16838, Top: 1134, Bottom: 1134, Left: 1701, Right: 851}

// Builder assembles a minimal DOCX document paragraph by paragraph.
type Builder struct {
	body strings.Builder
	page PageSetup
}

// NewBuilder returns a builder for an A4 document.
func NewBuilder() *Builder {
	return &Builder{page: A4}
}

// Page sets the page geometry.
func (b *Builder) Page(p PageSetup) *Builder {
	b.page = p
	return b
}

// Text adds a paragraph with a single plain run. An empty string adds an
// empty paragraph.
func (b *Builder) Text(text string) *Builder {
	if text == "" {
		return b.Paragraph(AlignLeft)
	}
	return b.Paragraph(AlignLeft, Run{Text: text})
}

// Paragraph adds a paragraph made of runs.
func (b *Builder) Paragraph(align Align, runs ...Run) *Builder {
	b.body.WriteString("<w:p>")
	if align != "" && align != AlignLeft {
		b.body.WriteString(`<w:pPr><w:jc w:val="` + string(align) + `"/></w:pPr>`)
	}
	for _, r := range runs {
		b.body.WriteString("<w:r>")
		if r.Bold || r.Size > 0 {
			b.body.WriteString("<w:rPr>")
			if r.Bold {
				b.body.WriteString("<w:b/>")
			}
			if r.Size > 0 {
				b.body.WriteString(`<w:sz w:val="` + strconv.Itoa(r.Size*2) + `"/>`)
			}
			b.body.WriteString("</w:rPr>")
		}
		b.body.WriteString(`<w:t xml:space="preserve">`)
		b.body.WriteString(xmlEscaper.Replace(r.Text))
		b.body.WriteString("</w:t></w:r>")
	}
	b.body.WriteString("</w:p>")
	return b
}

// Table adds a table with one plain paragraph per cell.
func (b *Builder) Table(rows ...[]string) *Builder {
	b.body.WriteString(`<w:tbl><w:tblPr><w:tblW w:w="0" w:type="auto"/></w:tblPr><w:tblGrid>`)
	if len(rows) > 0 {
		for range rows[0] {
			b.body.WriteString(`<w:gridCol/>`)
		}
	}
	b.body.WriteString(`</w:tblGrid>`)
	for _, row := range rows {
		b.body.WriteString("<w:tr>")
		for _, cell := range row {
			b.body.WriteString("<w:tc>")
			b.Text(cell)
			b.body.WriteString("</w:tc>")
		}
		b.body.WriteString("</w:tr>")
	}
	b.body.WriteString("</w:tbl>")
	return b
}

// Bytes packs the document into a DOCX archive.
func (b *Builder) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	parts := []struct{ name, content string }{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", rootRelsXML},
		{mainPart, b.documentXML()},
	}
	for _, p := range parts {
		fw, err := w.CreateHeader(&zip.FileHeader{Name: p.name, Method: zip.Deflate, Modified: time.Now()})
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", p.name, err)
		}
		if _, err := fw.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("writing %s: %w", p.name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	return buf.Bytes(), nil
}

func (b *Builder) documentXML() string {
	var s strings.Builder
	s.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	s.WriteString(`<w:document xmlns:w="` + wordNamespace + `"><w:body>`)
	s.WriteString(b.body.String())
	fmt.Fprintf(&s, `<w:sectPr><w:pgSz w:w="%d" w:h="%d"/><w:pgMar w:top="%d" w:right="%d" w:bottom="%d" w:left="%d" w:header="708" w:footer="708" w:gutter="0"/></w:sectPr>`,
		b.page.Width, b.page.Height, b.page.Top, b.page.Right, b.page.Bottom, b.page.Left)
	s.WriteString(`</w:body></w:document>`)
	return s.String()
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`</Types>`

const rootRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
	`</Relationships>`
