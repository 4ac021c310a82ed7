package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/feniks/backend/internal/analysis"
	"github.com/feniks/backend/internal/api"
	"github.com/feniks/backend/internal/client"
	"github.com/feniks/backend/internal/config"
	"github.com/feniks/backend/internal/generator"
	"github.com/feniks/backend/internal/logging"
	"github.com/feniks/backend/internal/storage"
	"github.com/feniks/backend/internal/wizard"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:          "feniks-server",
		Short:        "Meeting protocol service",
		Version:      Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "configuration file (default: "+config.DefaultFileName+" next to the executable)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	if configPath == "" {
		// Get the executable's directory for config resolution
		exePath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}
		configPath = filepath.Join(filepath.Dir(exePath), config.DefaultFileName)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	logger, err := logging.New(cfg.Advanced.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Initialize storage
	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	templates, err := storage.OpenTemplateStore(cfg.Storage.TemplateDriver, cfg.Storage.TemplateDatabase)
	if err != nil {
		return fmt.Errorf("failed to open template store: %w", err)
	}
	defer templates.Close()

	g, ctx := errgroup.WithContext(ctx)

	analyzer, err := newAnalyzer(ctx, g, cfg, logger.Named("rules"))
	if err != nil {
		return err
	}

	orchestrator := analysis.NewOrchestrator(analyzer, fileStore, analysis.Options{
		MaxConcurrent:  cfg.Analysis.MaxConcurrent,
		RequestTimeout: time.Duration(cfg.Analysis.RequestTimeoutSeconds) * time.Second,
	}, logger.Named("analysis"))

	gen := generator.New(newTemplateSource(cfg, templates), cfg.Generation.FilePrefix, logger.Named("generator")).
		WithMaxProtocols(cfg.Generation.MaxProtocols)

	// Initialize session manager
	opts := wizard.Options{
		MaxSessions: cfg.Processing.MaxSessions,
		MaxAge:      time.Duration(cfg.Processing.SessionTimeoutMinutes) * time.Minute,
	}
	if cfg.Storage.EnablePersistence {
		opts.Snapshots, err = wizard.NewSnapshotStore(cfg.Storage.SessionsDirectory)
		if err != nil {
			return fmt.Errorf("failed to initialize session snapshots: %w", err)
		}
	}
	sessions := wizard.NewManager(fileStore, orchestrator, gen, opts, logger.Named("wizard"))
	defer sessions.Close()

	if n, err := sessions.Restore(); err != nil {
		logger.Warn("failed to restore sessions", zap.Error(err))
	} else if n > 0 {
		logger.Info("sessions restored", zap.Int("count", n))
	}

	// Background session cleanup
	g.Go(func() error {
		interval := time.Duration(cfg.Processing.CleanupIntervalMinutes) * time.Minute
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := sessions.CleanupOldSessions(); n > 0 {
					logger.Info("expired sessions removed", zap.Int("count", n))
				}
			case <-ctx.Done():
				return nil
			}
		}
	})

	e := newEcho(cfg, logger)
	api.SetupMiddleware(e, logger.Named("http"), logging.ParseLevel(cfg.Advanced.LogLevel) == zap.DebugLevel)
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Templates:             templates,
		Sessions:              sessions,
		Analyzer:              analyzer,
		AllowTemplateDeletion: cfg.Security.AllowTemplateDeletion,
		Version:               Version,
		Logger:                logger,
		Client: api.ClientConfig{
			AcceptedFileTypes:     cfg.AcceptedFileTypes(),
			FilePrefix:            cfg.Generation.FilePrefix,
			MaxConcurrent:         cfg.Analysis.MaxConcurrent,
			AllowTemplateDeletion: cfg.Security.AllowTemplateDeletion,
		},
	}))

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath, analyzerMode(cfg))

	g.Go(func() error {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newAnalyzer returns the remote analyzer when configured, else the built-in
// extractor. The rules file is watched when enabled.
func newAnalyzer(ctx context.Context, g *errgroup.Group, cfg *config.AppConfig, logger *zap.Logger) (analysis.Analyzer, error) {
	if cfg.Analysis.RemoteURL != "" {
		timeout := time.Duration(cfg.Analysis.RequestTimeoutSeconds) * time.Second
		return analysis.NewRemoteAnalyzer(cfg.Analysis.RemoteURL, timeout), nil
	}

	rules, err := analysis.LoadRules(cfg.Analysis.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load extraction rules: %w", err)
	}
	local, err := analysis.NewLocalAnalyzer(rules)
	if err != nil {
		return nil, fmt.Errorf("invalid extraction rules: %w", err)
	}

	if cfg.Analysis.WatchRules && cfg.Analysis.RulesFile != "" {
		g.Go(func() error {
			if err := analysis.WatchRules(ctx, cfg.Analysis.RulesFile, local.SetRules, logger); err != nil {
				logger.Warn("rules watcher stopped", zap.Error(err))
			}
			return nil
		})
	}
	return local, nil
}

func newTemplateSource(cfg *config.AppConfig, templates storage.TemplateStore) generator.TemplateSource {
	if cfg.Generation.TemplateURL != "" {
		timeout := time.Duration(cfg.Generation.TemplateTimeoutSeconds) * time.Second
		return generator.RemoteSource{Fetcher: client.NewTemplateFetcher(cfg.Generation.TemplateURL, timeout)}
	}
	return generator.StoreSource{Store: templates}
}

func analyzerMode(cfg *config.AppConfig) string {
	if cfg.Analysis.RemoteURL != "" {
		return "remote"
	}
	return "built-in"
}

func newEcho(cfg *config.AppConfig, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	isStream := func(c echo.Context) bool {
		path := c.Request().URL.Path
		return strings.HasSuffix(path, "/progress") ||
			strings.HasSuffix(path, "/ws") ||
			c.Request().Header.Get("Accept") == "text/event-stream"
	}

	// Configure middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			return isStream(c) || c.Request().URL.Path == "/api/health"
		},
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("request", fields...)
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("panic recovered", zap.Error(err), zap.ByteString("stack", stack))
			return err
		},
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			return isStream(c) || strings.HasSuffix(c.Request().URL.Path, "/files")
		},
		ErrorMessage: "Request timeout",
	}))

	// Compression middleware
	if cfg.Processing.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level:   cfg.Processing.CompressionLevel,
			Skipper: isStream,
		}))
	}

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:  origins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			ExposeHeaders: []string{echo.HeaderContentDisposition, "X-Protocol-Count"},
		}))
	}

	return e
}

func printBanner(cfg *config.AppConfig, configPath, analyzer string) {
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           ФЕНИКС Protocol Server                          ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Analyzer:   %-45s║\n", analyzer)
	fmt.Printf("║  Templates:  %-45s║\n", cfg.Storage.TemplateDriver)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
