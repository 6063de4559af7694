package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloo-solutions/citadoc/internal/api"
	"github.com/cloo-solutions/citadoc/internal/api/handlers"
	"github.com/cloo-solutions/citadoc/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// multipartOverhead is allowed on top of the file size limit for form framing.
const multipartOverhead int64 = 1 << 20

const maxJSONBodyBytes int64 = 1 << 20

type RouterConfig struct {
	DocumentHandler *handlers.DocumentHandler
	ChatHandler     *handlers.ChatHandler
	// HealthCheck reports whether the database is reachable. Optional.
	HealthCheck    func(ctx context.Context) error
	MaxUploadBytes int64
	CORSOrigins    []string
	// FilesDir, when set, is served read-only under /files/.
	FilesDir string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins(cfg.CORSOrigins),
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok", "db": "ok"}
		if cfg.HealthCheck != nil {
			if err := cfg.HealthCheck(r.Context()); err != nil {
				status["status"] = "degraded"
				status["db"] = "unavailable"
				api.Success(w, http.StatusServiceUnavailable, status)
				return
			}
		}
		api.Success(w, http.StatusOK, status)
	})

	uploadLimit := int64(0)
	if cfg.MaxUploadBytes > 0 {
		uploadLimit = cfg.MaxUploadBytes + multipartOverhead
	}

	r.Route("/documents", func(r chi.Router) {
		r.With(middleware.MaxBodyBytes(uploadLimit)).Post("/", cfg.DocumentHandler.Upload)
		r.Get("/", cfg.DocumentHandler.List)
		r.Get("/{id}", cfg.DocumentHandler.Get)
		r.With(middleware.MaxBodyBytes(uploadLimit)).Put("/{id}", cfg.DocumentHandler.Replace)
		r.Delete("/{id}", cfg.DocumentHandler.Delete)
		r.Get("/{id}/chunks", cfg.DocumentHandler.Chunks)
		r.Get("/{id}/download", cfg.DocumentHandler.Download)
	})

	r.Route("/chat", func(r chi.Router) {
		r.With(middleware.MaxBodyBytes(maxJSONBodyBytes)).Post("/query", cfg.ChatHandler.Query)
		r.Get("/conversations", cfg.ChatHandler.ListConversations)
		r.Get("/conversations/{id}/messages", cfg.ChatHandler.Messages)
	})

	if cfg.FilesDir != "" {
		fileServer := http.StripPrefix("/files/", http.FileServer(http.Dir(cfg.FilesDir)))
		r.Get("/files/*", fileServer.ServeHTTP)
	}

	return r
}

func corsOrigins(origins []string) []string {
	var out []string
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
