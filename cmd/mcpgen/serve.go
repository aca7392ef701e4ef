package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/genmedia/mcpgen/internal/config"
	"github.com/genmedia/mcpgen/internal/fetch"
	"github.com/genmedia/mcpgen/internal/genai"
	"github.com/genmedia/mcpgen/internal/mcp"
	"github.com/genmedia/mcpgen/internal/metrics"
	"github.com/genmedia/mcpgen/internal/secrets"
	"github.com/genmedia/mcpgen/internal/server"
	"github.com/genmedia/mcpgen/internal/storage"
	"github.com/genmedia/mcpgen/internal/tools"
)

const shutdownTimeout = 30 * time.Second

var envFiles []string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long:  `Loads configuration from the environment (and .env), then serves /mcp, /health, /static, /metrics and /swagger until SIGINT or SIGTERM.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringSliceVar(&envFiles, "env-file", nil, "Env file(s) to load instead of .env")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load(envFiles...)
	config.SetDebug(cfg.IsDebug())

	if err := loadSecrets(cmd.Context(), cfg); err != nil {
		return err
	}
	for _, w := range cfg.Warnings() {
		log.Printf("WARN: %s", w)
	}

	m := metrics.New()

	resolver := storage.NewResolver(cfg.Storage)
	defer func() {
		if err := resolver.Close(); err != nil {
			log.Printf("storage close: %v", err)
		}
	}()
	if backend, err := resolver.Backend(); err != nil {
		log.Printf("WARN: storage: %v", err)
	} else {
		log.Printf("storage backend: %s", backend)
	}

	svc := tools.New(
		genai.New(cfg.Gemini, cfg.HTTPTimeout),
		resolver,
		fetch.New(cfg.HTTPTimeout, cfg.MaxImageDownloadBytes),
		cfg.Gemini,
		tools.WithObserver(m),
	)
	mcpHandler := mcp.NewHandler(svc, tools.Definitions(), mcp.ServerInfo{Name: "mcpgen", Version: version})

	srv := server.New(cfg, server.NewRouter(server.Options{
		Config:  cfg,
		MCP:     mcpHandler,
		Metrics: m,
	}))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s (base url %s)", srv.Addr, cfg.BaseURL)
		log.Printf("swagger UI at %s/swagger/index.html", cfg.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}
	log.Println("shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	log.Println("server stopped")
	return nil
}

// loadSecrets replaces API keys with Secret Manager values when configured.
func loadSecrets(ctx context.Context, cfg *config.Config) error {
	if !secrets.Needed(cfg) {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sm, err := secrets.NewClient(ctx, cfg.Storage.CredentialsFile)
	if err != nil {
		return fmt.Errorf("secret manager: %w", err)
	}
	defer sm.Close()

	if err := secrets.Apply(ctx, cfg, sm); err != nil {
		return fmt.Errorf("load secrets: %w", err)
	}
	return nil
}
