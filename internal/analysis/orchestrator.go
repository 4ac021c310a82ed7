// Package analysis turns uploaded documents into AnalyzedRecords.
package analysis

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/feniks/backend/internal/models"
)

// Analyzer extracts record fields from one document.
type Analyzer interface {
	Analyze(ctx context.Context, fileName string, content []byte) (models.RecordFields, error)
}

// FileReader returns the stored content of an uploaded file.
type FileReader interface {
	ReadFile(id string) ([]byte, error)
}

// ProgressFunc is called after each file with the number processed so far.
// With MaxConcurrent > 1 it is called from several goroutines.
type ProgressFunc func(processed, total int)

// Options tune an Orchestrator.
type Options struct {
	// MaxConcurrent files in flight; values below 2 mean sequential.
	MaxConcurrent int
	// RequestTimeout bounds a single Analyze call. Zero means no limit.
	RequestTimeout time.Duration
}

// Orchestrator runs an Analyzer over a file set.
type Orchestrator struct {
	analyzer Analyzer
	files    FileReader
	opts     Options
	logger   *zap.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(analyzer Analyzer, files FileReader, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{analyzer: analyzer, files: files, opts: opts, logger: logger}
}

// AnalyzeAll returns exactly one record per file, in input order.
// A file that cannot be read or analyzed yields a failed record; the batch continues.
func (o *Orchestrator) AnalyzeAll(ctx context.Context, files []models.FileInfo, progress ProgressFunc) []models.AnalyzedRecord {
	records := make([]models.AnalyzedRecord, len(files))
	total := len(files)
	var processed atomic.Int64

	done := func() {
		n := int(processed.Add(1))
		if progress != nil {
			progress(n, total)
		}
	}

	if o.opts.MaxConcurrent < 2 {
		for i, f := range files {
			records[i] = o.analyzeOne(ctx, f)
			done()
		}
		return records
	}

	// Each goroutine owns its slot; nothing returns an error so Wait only joins.
	var g errgroup.Group
	g.SetLimit(o.opts.MaxConcurrent)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			records[i] = o.analyzeOne(ctx, f)
			done()
			return nil
		})
	}
	_ = g.Wait()
	return records
}

func (o *Orchestrator) analyzeOne(ctx context.Context, f models.FileInfo) models.AnalyzedRecord {
	fields, err := o.analyzeFile(ctx, f)
	if err != nil {
		o.logger.Warn("analysis failed",
			zap.String("file", f.Name),
			zap.String("fileId", f.ID),
			zap.Error(err))
		return models.NewFailedRecord(f.Name, models.AnalysisFailed)
	}
	return models.AnalyzedRecord{FileName: f.Name, RecordFields: fields}
}

func (o *Orchestrator) analyzeFile(ctx context.Context, f models.FileInfo) (models.RecordFields, error) {
	content, err := o.files.ReadFile(f.ID)
	if err != nil {
		return models.RecordFields{}, fmt.Errorf("read upload: %w", err)
	}
	if o.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RequestTimeout)
		defer cancel()
	}
	return o.analyzer.Analyze(ctx, f.Name, content)
}
