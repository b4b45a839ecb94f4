package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/draganddrop/backend/internal/api"
	"github.com/draganddrop/backend/internal/config"
	"github.com/draganddrop/backend/internal/logging"
	"github.com/draganddrop/backend/internal/upload"
	"github.com/draganddrop/backend/internal/web"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("server", flag.ContinueOnError)
	configPath := flags.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	writeConfig := flags.String("write-config", "", "write the effective config to this path and exit")
	envFile := flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", *envFile, err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if *writeConfig != "" {
		return cfg.Save(*writeConfig)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, stdout)
	if err != nil {
		return err
	}

	e := newServer(cfg, logger)
	return serve(ctx, e, cfg, logger)
}

func newServer(cfg *config.AppConfig, logger zerolog.Logger) *echo.Echo {
	classifier := upload.NewClassifier(
		upload.WithMaxFileSize(cfg.Upload.MaxFileSize),
		upload.WithDroppedSuffixes(cfg.Upload.DroppedSuffixes...),
		upload.WithLogger(logger.With().Str("component", "classifier").Logger()),
	)

	e := api.NewServer(cfg, logger, &api.Dependencies{
		Classifier: classifier,
		Version:    Version,
	})

	if web.HasEmbeddedFiles() {
		assets, err := web.Assets()
		if err != nil {
			logger.Warn().Err(err).Msg("failed to open embedded frontend")
		} else {
			web.RegisterStaticRoutes(e, assets)
			logger.Info().Msg("serving embedded frontend from binary")
		}
	}
	return e
}

func serve(ctx context.Context, e *echo.Echo, cfg *config.AppConfig, logger zerolog.Logger) error {
	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("addr", cfg.GetServerAddr()).
		Str("cors_mode", cfg.CORS.Mode).
		Strs("allowed_origins", cfg.CORS.Origins()).
		Msg("starting upload server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(cfg.GetServerAddr())
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
