// Package generator merges analyzed records into the active DOCX template.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/feniks/backend/internal/client"
	"github.com/feniks/backend/internal/docx"
	"github.com/feniks/backend/internal/models"
	"github.com/feniks/backend/internal/storage"
)

// DefaultFilePrefix starts every generated file name unless configured otherwise.
const DefaultFilePrefix = "Заседание"

// DefaultMaxProtocols caps the protocol count of one document.
const DefaultMaxProtocols = 1000

var (
	// ErrTemplateNotFound means there is no template to generate from.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrTooManyProtocols is returned when the requested count exceeds the cap.
	ErrTooManyProtocols = errors.New("too many protocols requested")
)

// TemplateSource provides the binary of the active template.
type TemplateSource interface {
	ActiveTemplate(ctx context.Context) ([]byte, error)
}

// StoreSource reads the active template from a local TemplateStore.
type StoreSource struct {
	Store storage.TemplateStore
}

func (s StoreSource) ActiveTemplate(ctx context.Context) ([]byte, error) {
	_, content, err := s.Store.Active(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, ErrTemplateNotFound
	}
	return content, nil
}

// ActiveFetcher is implemented by client.Client.
type ActiveFetcher interface {
	FetchActiveTemplate(ctx context.Context) ([]byte, error)
}

// RemoteSource fetches the active template from another server.
type RemoteSource struct {
	Fetcher ActiveFetcher
}

func (s RemoteSource) ActiveTemplate(ctx context.Context) ([]byte, error) {
	content, err := s.Fetcher.FetchActiveTemplate(ctx)
	if errors.Is(err, client.ErrNotFound) {
		return nil, ErrTemplateNotFound
	}
	return content, err
}

// StaticSource always returns the same template, e.g. one read from disk.
type StaticSource []byte

func (s StaticSource) ActiveTemplate(context.Context) ([]byte, error) {
	if len(s) == 0 {
		return nil, ErrTemplateNotFound
	}
	return s, nil
}

// Document is a generated protocol file.
type Document struct {
	Name      string
	Content   []byte
	Protocols int
}

// Generator produces meeting documents.
type Generator struct {
	source       TemplateSource
	prefix       string
	maxProtocols int
	logger       *zap.Logger
}

// New creates a generator. An empty prefix selects DefaultFilePrefix.
func New(source TemplateSource, prefix string, logger *zap.Logger) *Generator {
	if prefix == "" {
		prefix = DefaultFilePrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{source: source, prefix: prefix, maxProtocols: DefaultMaxProtocols, logger: logger}
}

// WithMaxProtocols sets the largest accepted protocol count. Values below 1
// keep DefaultMaxProtocols.
func (g *Generator) WithMaxProtocols(n int) *Generator {
	if n >= 1 {
		g.maxProtocols = n
	}
	return g
}

// Generate renders the protocols for form and records. It either returns a
// complete document or an error, never partial output.
func (g *Generator) Generate(ctx context.Context, form models.MeetingForm, records []models.AnalyzedRecord) (*Document, error) {
	count := ParseCount(form.ProtocolCount)
	if count > g.maxProtocols {
		return nil, fmt.Errorf("%w: %d, limit is %d", ErrTooManyProtocols, count, g.maxProtocols)
	}
	first := ParseCount(form.FirstProtocolNumber)

	template, err := g.source.ActiveTemplate(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch template: %w", err)
	}

	protocols := BuildProtocols(records, count, first)

	content, err := docx.Render(template, MergeData(form, protocols))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	doc := &Document{
		Name:      FileName(g.prefix, form),
		Content:   content,
		Protocols: len(protocols),
	}
	g.logger.Info("document generated",
		zap.String("name", doc.Name),
		zap.Int("protocols", doc.Protocols),
		zap.Int("records", len(records)),
		zap.Int("size", len(content)))
	return doc, nil
}

// ParseCount parses a form number. Empty, non-numeric and values below 1
// all become 1.
func ParseCount(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// BuildProtocols returns exactly count protocols numbered from first. The
// first min(count, len(records)) carry record data; failed records and the
// padding keep their number with empty fields.
func BuildProtocols(records []models.AnalyzedRecord, count, first int) []models.Protocol {
	if count < 0 {
		count = 0
	}
	protocols := make([]models.Protocol, count)
	for i := range protocols {
		protocols[i].Number = first + i
		if i < len(records) && !records[i].Failed() {
			protocols[i].RecordFields = records[i].RecordFields
		}
	}
	return protocols
}

// MergeData builds the template variables.
func MergeData(form models.MeetingForm, protocols []models.Protocol) map[string]any {
	items := make([]map[string]any, len(protocols))
	for i, p := range protocols {
		items[i] = p.MergeFields()
	}
	return map[string]any{
		"date":          form.Date,
		"meetingNumber": form.MeetingNumber,
		"protocolCount": len(protocols),
		"protocols":     items,
	}
}

var fileNameReplacer = strings.NewReplacer(
	"/", "-", "\\", "-",
	":", "_", "*", "_", "?", "_", `"`, "_", "<", "_", ">", "_", "|", "_",
)

// FileName returns "<prefix>_<meetingNumber>_<date>.docx" with characters
// that are unsafe in file names replaced.
func FileName(prefix string, form models.MeetingForm) string {
	name := fmt.Sprintf("%s_%s_%s", prefix, strings.TrimSpace(form.MeetingNumber), strings.TrimSpace(form.Date))
	return fileNameReplacer.Replace(name) + ".docx"
}
