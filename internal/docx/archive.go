// Package docx reads, renders and builds WordprocessingML (.docx) documents.
//
// Only the parts needed by the protocol service are handled: the main
// document, headers and footers. Everything else in the package is copied
// through untouched.
package docx

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

const mainPart = "word/document.xml"

// ErrNotDocx is returned when the input is not a readable DOCX archive.
var ErrNotDocx = errors.New("not a docx document")

func openArchive(data []byte) (*zip.Reader, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDocx, err)
	}
	if findFile(r, mainPart) == nil {
		return nil, fmt.Errorf("%w: missing %s", ErrNotDocx, mainPart)
	}
	return r, nil
}

func findFile(r *zip.Reader, name string) *zip.File {
	for _, f := range r.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Name, err)
	}
	return data, nil
}

// templateParts returns the parts that may carry merge fields.
func templateParts(r *zip.Reader) []*zip.File {
	var parts []*zip.File
	for _, f := range r.File {
		name := f.Name
		if name == mainPart ||
			(strings.HasSuffix(name, ".xml") &&
				(strings.HasPrefix(name, "word/header") || strings.HasPrefix(name, "word/footer"))) {
			parts = append(parts, f)
		}
	}
	return parts
}

// writeArchive copies r into a new archive, replacing the named parts.
func writeArchive(r *zip.Reader, replaced map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	for _, f := range r.File {
		data, ok := replaced[f.Name]
		if !ok {
			if err := w.Copy(f); err != nil {
				return nil, fmt.Errorf("copying %s: %w", f.Name, err)
			}
			continue
		}

		fw, err := w.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: f.Modified,
		})
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", f.Name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return nil, fmt.Errorf("writing %s: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	return buf.Bytes(), nil
}
