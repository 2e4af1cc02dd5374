package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"notes-gateway/internal/config"
	"notes-gateway/internal/logging"
	"notes-gateway/internal/server"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/unrolled/secure"
)

// Exemplo: o gate embutido direto no webserver, sem proxy.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "example-server: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, SetDefault: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "example-server: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv, err := server.New(ctx, cfg, logger, newRouter(cfg.CORS.AllowedOrigins))
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// newRouter é o dispatcher de exemplo; só roda depois que o gate admitiu.
// Headers de segurança, compressão e CORS valem para toda rota.
func newRouter(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(secureHeaders().Handler)
	r.Use(middleware.Compress(5))
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Api-Key", "X-Request-ID"},
			ExposedHeaders: []string{"Retry-After", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, "ok\n")
	})
	r.Get("/hello/{name}", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, fmt.Sprintf("hello, %s\n", chi.URLParam(r, "name")))
	})
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, "ok\n")
	})
	return r
}

func secureHeaders() *secure.Secure {
	return secure.New(secure.Options{
		FrameDeny:            true,
		ContentTypeNosniff:   true,
		BrowserXssFilter:     true,
		ReferrerPolicy:       "no-referrer",
		STSSeconds:           15552000,
		STSIncludeSubdomains: true,
	})
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
