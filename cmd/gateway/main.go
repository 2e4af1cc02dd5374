package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"notes-gateway/internal/config"
	"notes-gateway/internal/logging"
	"notes-gateway/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Server.UpstreamURL == "" {
		return fmt.Errorf("%w: UPSTREAM_URL is required", config.ErrInvalid)
	}
	target, err := url.Parse(cfg.Server.UpstreamURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return fmt.Errorf("%w: invalid UPSTREAM_URL %q", config.ErrInvalid, cfg.Server.UpstreamURL)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, SetDefault: true})
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}

	proxy := newProxy(target, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv, err := server.New(ctx, cfg, logger, proxy)
	if err != nil {
		return err
	}

	logger.Info("gateway starting",
		"listen", cfg.Server.ListenAddr,
		"upstream", target.String(),
		"algorithm", cfg.Rate.Algorithm,
		"limit", cfg.Rate.Limit,
		"window", cfg.Rate.Window(),
		"retention", cfg.Rate.EffectiveRetention(),
		"key_header", cfg.Rate.KeyHeader,
		"trust_xff", cfg.Rate.TrustXFF,
		"fail_closed", cfg.Rate.FailClosed,
		"concurrency_max", cfg.Concurrency.Max,
		"stats_redis", cfg.Stats.Enabled,
		"metrics_addr", cfg.Metrics.Addr,
	)
	return srv.Run(ctx)
}

// newProxy repassa para o upstream; falha de conexão vira 502.
func newProxy(target *url.URL, logger *slog.Logger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Error("proxy error", "path", r.URL.Path, "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}
	return proxy
}
