package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/feniks/backend/internal/analysis"
	"github.com/feniks/backend/internal/models"
)

// pathReader serves files by path; FileInfo.ID holds the path.
type pathReader struct{}

func (pathReader) ReadFile(id string) ([]byte, error) {
	return os.ReadFile(id)
}

func fileInfos(paths []string) ([]models.FileInfo, error) {
	files := make([]models.FileInfo, 0, len(paths))
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if st.IsDir() {
			return nil, fmt.Errorf("%s is a directory", p)
		}
		files = append(files, models.FileInfo{
			ID:         p,
			Name:       filepath.Base(p),
			Size:       st.Size(),
			UploadedAt: st.ModTime(),
		})
	}
	return files, nil
}

type analyzeOptions struct {
	rules       string
	concurrency int
}

func (a analyzeOptions) analyzer(root *rootOptions) (analysis.Analyzer, error) {
	if root.server != "" {
		return analysis.NewRemoteAnalyzer(strings.TrimRight(root.server, "/")+"/api/analyze", root.timeout), nil
	}
	rules, err := analysis.LoadRules(a.rules)
	if err != nil {
		return nil, err
	}
	local, err := analysis.NewLocalAnalyzer(rules)
	if err != nil {
		return nil, err
	}
	return local, nil
}

// analyzeFiles runs the selected analyzer over paths in input order.
func analyzeFiles(ctx context.Context, root *rootOptions, a analyzeOptions, paths []string) ([]models.AnalyzedRecord, error) {
	files, err := fileInfos(paths)
	if err != nil {
		return nil, err
	}
	analyzer, err := a.analyzer(root)
	if err != nil {
		return nil, err
	}
	orch := analysis.NewOrchestrator(analyzer, pathReader{}, analysis.Options{
		MaxConcurrent:  a.concurrency,
		RequestTimeout: root.timeout,
	}, root.logger)
	return orch.AnalyzeAll(ctx, files, nil), nil
}

func (a *analyzeOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.rules, "rules", "", "YAML extraction rules merged over the built-in ones")
	cmd.Flags().IntVarP(&a.concurrency, "concurrency", "j", 1, "files analyzed in parallel")
}

func newAnalyzeCommand(root *rootOptions) *cobra.Command {
	var (
		opts   analyzeOptions
		format string
	)
	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Extract record fields from DOCX documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := analyzeFiles(cmd.Context(), root, opts, args)
			if err != nil {
				return err
			}
			return writeRecords(cmd.OutOrStdout(), records, format)
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVarP(&format, "output", "o", "json", "output format (json, yaml)")
	return cmd
}

func writeRecords(w io.Writer, records []models.AnalyzedRecord, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "yaml":
		// Round-trip through JSON so YAML keys match the API field names.
		data, err := json.Marshal(records)
		if err != nil {
			return err
		}
		var generic []map[string]any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
