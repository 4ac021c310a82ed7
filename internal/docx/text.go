package docx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const wordNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// ExtractText returns the text of the main document, one paragraph per line.
// Tabs and line breaks inside a paragraph are kept as '\t' and '\n'.
func ExtractText(data []byte) (string, error) {
	r, err := openArchive(data)
	if err != nil {
		return "", err
	}

	raw, err := readFile(findFile(r, mainPart))
	if err != nil {
		return "", err
	}

	paragraphs, err := paragraphTexts(raw)
	if err != nil {
		return "", err
	}
	return strings.Join(paragraphs, "\n"), nil
}

func isWord(name xml.Name) bool {
	return name.Space == wordNamespace || name.Space == "w"
}

func paragraphTexts(raw []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))

	var (
		paragraphs []string
		open       []*strings.Builder
		inText     bool
	)

	current := func() *strings.Builder {
		if len(open) == 0 {
			return nil
		}
		return open[len(open)-1]
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !isWord(t.Name) {
				continue
			}
			switch t.Name.Local {
			case "p":
				open = append(open, &strings.Builder{})
			case "t":
				inText = true
			case "tab":
				if b := current(); b != nil {
					b.WriteByte('\t')
				}
			case "br", "cr":
				if b := current(); b != nil {
					b.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if !isWord(t.Name) {
				continue
			}
			switch t.Name.Local {
			case "p":
				if n := len(open); n > 0 {
					paragraphs = append(paragraphs, open[n-1].String())
					open = open[:n-1]
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if b := current(); inText && b != nil {
				b.Write(t)
			}
		}
	}

	return paragraphs, nil
}
