package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"time"

	"github.com/MeKo-Tech/ocrbench/internal/config"
	"github.com/MeKo-Tech/ocrbench/internal/engine"
	"github.com/MeKo-Tech/ocrbench/internal/engine/docai"
	"github.com/MeKo-Tech/ocrbench/internal/engine/tesseract"
	"github.com/MeKo-Tech/ocrbench/internal/server"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the reference OCR endpoint",
		Long: `Start an HTTP server implementing the OCR endpoint contract that evaluate
and benchmark drive.

The server provides the following endpoints:
  POST /ocr     - Recognize uploaded images (multipart field "files")
  GET  /ws/ocr  - WebSocket variant, one image per message
  GET  /health  - Health check endpoint
  GET  /models  - List available models
  GET  /metrics - Prometheus metrics

Engines are initialized on first use. Tesseract requires a build with
-tags tesseract; Document AI requires a configured processor.

Examples:
  ocrbench serve
  ocrbench serve --port 8080 --engines tesseract,oracle --oracle-ground-truth gt.json
  ocrbench serve --host 0.0.0.0 --engines documentai`,
		RunE: runServe,
	}

	f := cmd.Flags()
	f.StringP("host", "H", "localhost", "server host")
	f.IntP("port", "p", 8080, "server port")
	f.String("cors-origin", "*", "CORS allowed origins")
	f.Int("max-upload-size", 100, "maximum size of one uploaded file in MB")
	f.Int("max-request-size", server.DefaultMaxRequestMB, "maximum size of one request body in MB")
	f.Int("timeout", 300, "request timeout in seconds")
	f.Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	f.StringSlice("engines", []string{tesseract.Name}, "engines to register, in order")
	f.String("default-engine", "", "engine used when a request names no model (first engine when empty)")
	f.String("oracle-ground-truth", "", "ground-truth file replayed by the oracle engine")
	f.StringSlice("tesseract-languages", []string{"eng"}, "tesseract languages")
	return cmd
}

// applyServeFlags copies changed flags over the loaded configuration.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Server.Host, _ = f.GetString("host")
	}
	if f.Changed("port") {
		cfg.Server.Port, _ = f.GetInt("port")
	}
	if f.Changed("cors-origin") {
		cfg.Server.CORSOrigin, _ = f.GetString("cors-origin")
	}
	if f.Changed("max-upload-size") {
		cfg.Server.MaxUploadMB, _ = f.GetInt("max-upload-size")
	}
	if f.Changed("max-request-size") {
		cfg.Server.MaxRequestMB, _ = f.GetInt("max-request-size")
	}
	if f.Changed("timeout") {
		cfg.Server.TimeoutSec, _ = f.GetInt("timeout")
	}
	if f.Changed("shutdown-timeout") {
		cfg.Server.ShutdownTimeout, _ = f.GetInt("shutdown-timeout")
	}
	if f.Changed("engines") {
		cfg.Engines.Enabled, _ = f.GetStringSlice("engines")
	}
	if f.Changed("default-engine") {
		cfg.Engines.Default, _ = f.GetString("default-engine")
	}
	if f.Changed("oracle-ground-truth") {
		cfg.Engines.Oracle.GroundTruth, _ = f.GetString("oracle-ground-truth")
	}
	if f.Changed("tesseract-languages") {
		cfg.Engines.Tesseract.Languages, _ = f.GetStringSlice("tesseract-languages")
	}
}

// buildRegistry registers the enabled engines without initializing them.
func buildRegistry(cfg *config.Config, logger *slog.Logger) (*engine.Registry, error) {
	reg := engine.NewRegistry(logger)
	for _, name := range cfg.Engines.Enabled {
		var factory engine.Factory
		switch name {
		case tesseract.Name:
			factory = tesseract.Factory(cfg.TesseractOptions(), logger)
		case docai.Name:
			factory = docai.Factory(cfg.DocumentAIOptions(), logger)
		case engine.OracleName:
			factory = engine.OracleFactory(cfg.Engines.Oracle.GroundTruth)
		default:
			return nil, &engine.UnsupportedModelError{Name: name, Supported: config.EngineNames}
		}
		if err := reg.Register(name, factory); err != nil {
			return nil, err
		}
	}
	if cfg.Engines.Default != "" {
		if err := reg.SetDefault(cfg.Engines.Default); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// checkEngines refuses a default engine that is not compiled in and warns
// about any other enabled engine that will fail on use.
func checkEngines(cfg *config.Config, logger *slog.Logger) error {
	if tesseract.Available() || !slices.Contains(cfg.Engines.Enabled, tesseract.Name) {
		return nil
	}
	def := cfg.Engines.Default
	if def == "" && len(cfg.Engines.Enabled) > 0 {
		def = cfg.Engines.Enabled[0]
	}
	if def == tesseract.Name {
		return fmt.Errorf("default engine %q is not compiled in (build with -tags tesseract or pass --engines)",
			tesseract.Name)
	}
	logger.Warn("Engine not compiled in; requests for it will fail",
		"engine", tesseract.Name, "build_tag", "tesseract")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	loaded, err := configFrom(cmd)
	if err != nil {
		return err
	}
	cfg := *loaded
	applyServeFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.Default()
	if err := checkEngines(&cfg, logger); err != nil {
		return err
	}
	registry, err := buildRegistry(&cfg, logger)
	if err != nil {
		return err
	}

	serverConfig := cfg.ServerOptions()
	serverConfig.Logger = logger
	ocrServer, err := server.NewServer(serverConfig, registry)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	mux := http.NewServeMux()
	ocrServer.SetupRoutes(mux)

	timeout := time.Duration(cfg.Server.TimeoutSec) * time.Second
	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		_ = ocrServer.Close()
		return fmt.Errorf("failed to listen on %s: %w", httpServer.Addr, err)
	}
	logger.Info("Starting OCR server",
		"addr", listener.Addr().String(),
		"engines", registry.Names(),
		"default", registry.Default())

	return serveUntilDone(ctx, httpServer, listener, ocrServer,
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second, logger)
}

// serveUntilDone serves on listener until ctx ends or the server fails, then
// shuts the HTTP server down and releases the engines.
func serveUntilDone(ctx context.Context, httpServer *http.Server, listener net.Listener,
	ocrServer *server.Server, shutdownTimeout time.Duration, logger *slog.Logger,
) error {
	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err, ok := <-serveErr:
		if ok {
			logger.Error("Server error", "error", err)
			runErr = err
		}
	}

	logger.Info("Starting graceful shutdown", "timeout", shutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := ocrServer.Close(); err != nil {
		logger.Error("Server cleanup error", "error", err)
	}
	logger.Info("Graceful shutdown completed")
	return runErr
}
