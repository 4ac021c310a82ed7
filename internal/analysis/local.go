package analysis

import (
	"context"
	"fmt"
	"sync"

	"github.com/feniks/backend/internal/docx"
	"github.com/feniks/backend/internal/models"
)

// LocalAnalyzer extracts fields from DOCX content in-process.
type LocalAnalyzer struct {
	mu  sync.RWMutex
	ext *Extractor
}

// NewLocalAnalyzer compiles rules into a ready analyzer.
func NewLocalAnalyzer(rules *Rules) (*LocalAnalyzer, error) {
	ext, err := NewExtractor(rules)
	if err != nil {
		return nil, err
	}
	return &LocalAnalyzer{ext: ext}, nil
}

// SetRules swaps the rule set. The previous rules stay active on error.
func (a *LocalAnalyzer) SetRules(rules *Rules) error {
	ext, err := NewExtractor(rules)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.ext = ext
	a.mu.Unlock()
	return nil
}

// Analyze reads the document text and applies the current rules.
func (a *LocalAnalyzer) Analyze(ctx context.Context, fileName string, content []byte) (models.RecordFields, error) {
	if err := ctx.Err(); err != nil {
		return models.RecordFields{}, err
	}
	text, err := docx.ExtractText(content)
	if err != nil {
		return models.RecordFields{}, fmt.Errorf("read %s: %w", fileName, err)
	}
	return a.AnalyzeText(text), nil
}

// AnalyzeText applies the current rules to already extracted text.
func (a *LocalAnalyzer) AnalyzeText(text string) models.RecordFields {
	a.mu.RLock()
	ext := a.ext
	a.mu.RUnlock()
	return ext.Extract(text)
}
