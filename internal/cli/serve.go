package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/filetable/backend/internal/api"
	"github.com/filetable/backend/internal/config"
	"github.com/filetable/backend/internal/decode"
	"github.com/filetable/backend/internal/logger"
	"github.com/filetable/backend/internal/session"
	"github.com/filetable/backend/internal/storage"
	"github.com/filetable/backend/internal/upload"
)

// shutdownTimeout bounds how long in-flight requests get after a signal.
const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions, info BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the file picker on a local port",
		Long: `Start the HTTP server with the file picker page.

Configuration is read from filetable.config (created with defaults on first
run) and may be overridden with environment variables or a .env file next to it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootOpts, info)
		},
	}
	return cmd
}

func runServe(cmd *cobra.Command, rootOpts *RootOptions, info BuildInfo) error {
	configPath, err := resolveConfigPath(rootOpts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to locate config", err)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return WrapExitError(ExitCommandError, "failed to create directories", err)
	}

	log := logger.Setup(cfg.Env, cmd.ErrOrStderr(), rootOpts.Verbose)
	slog.SetDefault(log)

	staging, err := storage.NewLocalStore(cfg.Storage.StagingDirectory)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize staging", err)
	}

	decoder, err := decode.New(decode.Mode(cfg.Processing.DecodeMode), cfg.Processing.StripBOM)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid decode mode", err)
	}

	sessions := session.NewManager(cfg.Processing.MaxSessions, log,
		upload.WithDecoder(decoder),
		upload.WithLogger(log),
		upload.WithMaxConcurrent(cfg.Processing.MaxConcurrentReads),
	)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := NewServer(ctx, cfg, sessions, staging, log, info.Version)
	srv := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cmd.OutOrStdout(), info, configPath, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server listening", slog.String("addr", srv.Addr))
		if err := e.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		runCleanupLoop(gctx, cfg.CleanupInterval(), cfg.SessionTimeout(), sessions, staging, log)
		return nil
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server stopped with an error", err)
	}
	log.Info("server stopped")
	return nil
}

// NewServer builds the echo instance with middleware and routes. Reads started
// by selections are bound to ctx.
func NewServer(ctx context.Context, cfg *config.AppConfig, sessions *session.Manager, staging storage.Store, log *slog.Logger, version string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	api.SetupMiddleware(e, api.MiddlewareConfig{
		Logger:         log,
		RequestLogging: cfg.Advanced.EnableRequestLogging,
		BodyLimit:      cfg.Server.BodyLimit,
	})

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		BaseContext: ctx,
		Sessions:    sessions,
		Staging:     staging,
		MaxFileSize: cfg.Storage.MaxFileSize,
		WSReadLimit: int64(cfg.Advanced.WebSocketMaxMessageSize) * 1024,
		Version:     version,
		Logger:      log,
	}))

	return e
}

// purger drops staged files older than maxAge.
type purger interface {
	Purge(maxAge time.Duration) int
}

func runCleanupLoop(ctx context.Context, interval, maxAge time.Duration, sessions *session.Manager, staging purger, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleanupOnce(maxAge, sessions, staging, log)
		}
	}
}

func cleanupOnce(maxAge time.Duration, sessions *session.Manager, staging purger, log *slog.Logger) {
	expired := sessions.CleanupOldSessions(maxAge)
	purged := staging.Purge(maxAge)
	if expired > 0 || purged > 0 {
		log.Info("cleanup", slog.Int("sessions", expired), slog.Int("staged", purged))
	}
}

// resolveConfigPath defaults to filetable.config next to the executable.
func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(exePath), config.DefaultFileName), nil
}

func printBanner(w io.Writer, info BuildInfo, configPath string, cfg *config.AppConfig) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║  FileTable                                                ║\n")
	fmt.Fprintf(w, "╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║  Version:    %-45s║\n", info.Version)
	fmt.Fprintf(w, "║  Build Time: %-45s║\n", info.BuildTime)
	fmt.Fprintf(w, "║  Config:     %-45s║\n", configPath)
	fmt.Fprintf(w, "║  Listen:     http://%-38s║\n", cfg.GetServerAddr())
	fmt.Fprintf(w, "║  Staging:    %-45s║\n", cfg.Storage.StagingDirectory)
	fmt.Fprintf(w, "╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Fprintf(w, "\n")
}
