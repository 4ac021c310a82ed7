// Command feniksctl analyzes source documents, generates meeting protocols
// and manages templates from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/feniks/backend/internal/client"
	"github.com/feniks/backend/internal/logging"
)

var Version = "dev"

type rootOptions struct {
	server   string
	timeout  time.Duration
	logLevel string
	logger   *zap.Logger
}

func (o *rootOptions) client() (*client.Client, error) {
	if o.server == "" {
		return nil, fmt.Errorf("--server is required for this command")
	}
	return client.New(o.server, o.timeout), nil
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "feniksctl",
		Short:         "Meeting protocol toolkit",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(opts.logLevel)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.server, "server", os.Getenv("FENIKS_SERVER"), "base URL of a running server")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newAnalyzeCommand(opts),
		newGenerateCommand(opts),
		newTemplatesCommand(opts),
	)
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
