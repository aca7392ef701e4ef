// Package server assembles the HTTP surface: health, static files, API docs,
// the MCP endpoint and metrics, behind CORS and the API-key gate.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/genmedia/mcpgen/internal/config"
	"github.com/genmedia/mcpgen/internal/mcp"
	"github.com/genmedia/mcpgen/internal/metrics"
	appMiddleware "github.com/genmedia/mcpgen/internal/middleware"

	_ "github.com/genmedia/mcpgen/docs/swagger"
)

// Generation calls (video especially) run for minutes, so the write timeout
// has to cover the longest tool.
const (
	readTimeout  = 60 * time.Second
	writeTimeout = 15 * time.Minute
	idleTimeout  = 120 * time.Second
)

// Options wires the router.
type Options struct {
	Config  *config.Config
	MCP     http.Handler
	Metrics *metrics.Metrics // nil disables /metrics
}

// NewRouter builds the chi router.
func NewRouter(opts Options) http.Handler {
	cfg := opts.Config

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(cfg.IsDebug()))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Content-Type", "X-Request-ID",
			appMiddleware.APIKeyHeader, mcp.SessionHeader, "Mcp-Protocol-Version", "Last-Event-ID",
		},
		ExposedHeaders: []string{mcp.SessionHeader},
		MaxAge:         300,
	}))

	var observe func(appMiddleware.Decision)
	if opts.Metrics != nil {
		m := opts.Metrics
		observe = func(d appMiddleware.Decision) {
			if !d.Allowed {
				m.ObserveAuthDenied(d.Missing)
			}
		}
	}
	r.Use(appMiddleware.RequireAPIKey(cfg.APIKey, appMiddleware.DefaultExemptions, observe))

	r.Get("/health", health)

	r.Get("/static/*", staticFiles(cfg.Storage.LocalBaseDir))

	// Swagger UI at /swagger/index.html
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Handle("/mcp", opts.MCP)

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	return r
}

// New returns an *http.Server for handler listening on cfg.Addr().
func New(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// health godoc
//
//	@Summary	Liveness probe
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Router		/health [get]
func health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// staticFiles serves generated media from dir without directory listings.
func staticFiles(dir string) http.HandlerFunc {
	fs := http.StripPrefix("/static/", http.FileServer(http.Dir(dir)))
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	}
}
