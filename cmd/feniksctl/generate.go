package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/feniks/backend/internal/docx"
	"github.com/feniks/backend/internal/generator"
	"github.com/feniks/backend/internal/models"
)

type generateOptions struct {
	analyze  analyzeOptions
	form     models.MeetingForm
	template string
	prefix   string
	outDir   string
	maxCount int
}

// templateSource picks, in order: --template file, the server's active
// template, the built-in default.
func (g generateOptions) templateSource(root *rootOptions) (generator.TemplateSource, error) {
	switch {
	case g.template != "":
		data, err := os.ReadFile(g.template)
		if err != nil {
			return nil, err
		}
		return generator.StaticSource(data), nil
	case root.server != "":
		c, err := root.client()
		if err != nil {
			return nil, err
		}
		return generator.RemoteSource{Fetcher: c}, nil
	default:
		data, err := docx.DefaultTemplate()
		if err != nil {
			return nil, err
		}
		return generator.StaticSource(data), nil
	}
}

func newGenerateCommand(root *rootOptions) *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "generate [FILE...]",
		Short: "Build a meeting protocol document from source documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var records []models.AnalyzedRecord
			if len(args) > 0 {
				var err error
				records, err = analyzeFiles(ctx, root, opts.analyze, args)
				if err != nil {
					return err
				}
			}

			source, err := opts.templateSource(root)
			if err != nil {
				return err
			}
			doc, err := generator.New(source, opts.prefix, root.logger).WithMaxProtocols(opts.maxCount).Generate(ctx, opts.form, records)
			if err != nil {
				return err
			}

			path := filepath.Join(opts.outDir, doc.Name)
			if err := os.WriteFile(path, doc.Content, 0o644); err != nil {
				return err
			}
			root.logger.Info("written", zap.String("path", path))
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d protocols)\n", path, doc.Protocols)
			return nil
		},
	}

	opts.analyze.bind(cmd)
	f := cmd.Flags()
	f.StringVar(&opts.form.Date, "date", "", "meeting date")
	f.StringVar(&opts.form.MeetingNumber, "meeting", "", "meeting number")
	f.StringVarP(&opts.form.ProtocolCount, "count", "n", "1", "number of protocols")
	f.StringVar(&opts.form.FirstProtocolNumber, "first", "1", "number of the first protocol")
	f.StringVarP(&opts.template, "template", "t", "", "DOCX template file")
	f.StringVar(&opts.prefix, "prefix", generator.DefaultFilePrefix, "output file name prefix")
	f.StringVarP(&opts.outDir, "out", "O", ".", "output directory")
	f.IntVar(&opts.maxCount, "max-protocols", generator.DefaultMaxProtocols, "largest accepted protocol count")
	return cmd
}
