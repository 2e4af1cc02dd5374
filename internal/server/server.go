// Package server monta o gate de admissão na frente de um handler downstream
// e cuida do ciclo de vida: sweeper, métricas, estatísticas e shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"notes-gateway/internal/config"
	"notes-gateway/middleware/ratelimit"
	"notes-gateway/middleware/ratelimit/application"
	"notes-gateway/middleware/ratelimit/domain"
	"notes-gateway/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 2 * time.Second

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	clock  func() time.Time

	handler  http.Handler
	registry *prometheus.Registry
	sweeper  *application.Sweeper
	pool     domain.SlotPool

	rdb   redis.UniversalClient
	async *infra.AsyncStats
}

type Option func(*Server)

// WithClock troca o relógio do gate e do sweeper.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithRedisClient usa rdb para as estatísticas em vez de abrir um cliente a
// partir da configuração. O Server passa a ser dono do cliente.
func WithRedisClient(rdb redis.UniversalClient) Option {
	return func(s *Server) { s.rdb = rdb }
}

// New valida dependências externas (Redis) e monta a cadeia:
// request log -> rate limit -> concorrência -> downstream.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, downstream http.Handler, opts ...Option) (*Server, error) {
	if downstream == nil {
		return nil, errors.New("server: nil downstream handler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		clock:    time.Now,
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom, err := infra.NewPrometheusStats(s.registry, cfg.Metrics.Namespace)
	if err != nil {
		return nil, fmt.Errorf("register gate metrics: %w", err)
	}

	policy, target := buildPolicy(cfg.Rate)
	s.sweeper = &application.Sweeper{
		Target:    target,
		Interval:  cfg.Rate.EffectiveSweepEvery(),
		Retention: cfg.Rate.EffectiveRetention(),
		Clock:     s.clock,
		Logger:    logger,
		Observer:  prom,
	}

	sinks := infra.MultiStats{prom}
	if cfg.Stats.Enabled {
		redisStats, err := s.openRedisStats(ctx)
		if err != nil {
			return nil, err
		}
		s.async = infra.NewAsyncStats(redisStats,
			infra.WithQueueSize(cfg.Stats.QueueSize),
			infra.WithStatsLogger(logger),
		)
		sinks = append(sinks, s.async)
	}

	keyFn := ratelimit.DefaultKeyFunc(cfg.Rate.KeyHeader, cfg.Rate.TrustXFF)

	h := downstream
	if cfg.Concurrency.Max > 0 {
		s.pool = infra.NewChanPool(cfg.Concurrency.Max)
		if err := infra.RegisterPoolGauges(s.registry, cfg.Metrics.Namespace, s.pool); err != nil {
			_ = s.closeStats(ctx)
			return nil, fmt.Errorf("register pool metrics: %w", err)
		}
		h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
			Pool:           s.pool,
			AcquireTimeout: cfg.Concurrency.Timeout,
			Stats:          sinks,
			KeyFn:          keyFn,
			Clock:          s.clock,
		})(h)
	}
	h = ratelimit.Middleware(ratelimit.Options{
		Policy:              policy,
		Stats:               sinks,
		KeyFn:               keyFn,
		RetryAfter:          cfg.Rate.RetryAfter,
		AddRateLimitHeaders: cfg.Rate.AddHeaders,
		FailClosed:          cfg.Rate.FailClosed,
		Clock:               s.clock,
		Logger:              logger,
	})(h)
	s.handler = withRequestLog(logger, keyFn, h)

	return s, nil
}

func buildPolicy(rc config.RateConfig) (domain.Policy, domain.Sweepable) {
	pc := domain.PolicyConfig{Limit: rc.Limit, Window: rc.Window()}
	if rc.Algorithm == config.AlgorithmToken {
		tb := infra.NewTokenBucket(pc)
		return tb, tb
	}
	store := infra.NewStore(infra.WithShards(rc.Shards))
	return application.NewFixedWindow(store, pc), store
}

func (s *Server) openRedisStats(ctx context.Context) (*infra.RedisStatsStore, error) {
	sc := s.cfg.Stats
	if s.rdb == nil {
		s.rdb = redis.NewClient(&redis.Options{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
		})
	}

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := s.rdb.Ping(pingCtx).Err(); err != nil {
		_ = s.rdb.Close()
		s.rdb = nil
		return nil, fmt.Errorf("redis stats ping: %w", err)
	}

	return infra.NewRedisStatsStore(s.rdb,
		infra.WithStatsPrefix(sc.Prefix),
		infra.WithStatsTTL(sc.TTL),
		infra.WithStatsBucket(sc.Bucket),
		infra.WithStatsTrackKeys(sc.TrackKeys),
	), nil
}

// Handler é a cadeia completa, pronta para http.Server ou httptest.
func (s *Server) Handler() http.Handler { return s.handler }

// MetricsHandler serve o registry próprio do gate.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// Run escuta em LISTEN_ADDR até ctx ser cancelado.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve atende em ln (e em METRICS_ADDR, se configurado) até ctx ser
// cancelado ou um listener falhar. Sempre faz shutdown gracioso e fecha as
// estatísticas antes de retornar.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sweepDone := s.sweeper.Start(runCtx)

	servers := []*http.Server{newHTTPServer(s.handler)}
	listeners := []net.Listener{ln}
	if addr := s.cfg.Metrics.Addr; addr != "" {
		mln, err := net.Listen("tcp", addr)
		if err != nil {
			_ = ln.Close()
			cancel()
			<-sweepDone
			_ = s.closeStats(context.Background())
			return fmt.Errorf("listen metrics %s: %w", addr, err)
		}
		mux := http.NewServeMux()
		mux.Handle(s.cfg.Metrics.Path, s.MetricsHandler())
		servers = append(servers, newHTTPServer(mux))
		listeners = append(listeners, mln)
	}

	errCh := make(chan error, len(servers))
	for i, srv := range servers {
		s.logger.Info("http listening", "addr", listeners[i].Addr().String())
		go func() {
			if err := srv.Serve(listeners[i]); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		s.logger.Error("http server failed", "error", runErr)
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), s.shutdownTimeout())
	defer stop()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown", "error", err)
		}
	}
	<-sweepDone
	if err := s.closeStats(shutdownCtx); err != nil {
		s.logger.Warn("stats shutdown", "error", err)
	}

	s.logger.Info("server stopped")
	return runErr
}

// Close libera as estatísticas quando o Server foi usado só via Handler.
func (s *Server) Close(ctx context.Context) error {
	return s.closeStats(ctx)
}

func (s *Server) closeStats(ctx context.Context) error {
	var errs []error
	if s.async != nil {
		if err := s.async.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain stats: %w", err))
		}
		if n := s.async.Dropped(); n > 0 {
			s.logger.Warn("stats events dropped", "count", n)
		}
		s.async = nil
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			errs = append(errs, err)
		}
		s.rdb = nil
	}
	return errors.Join(errs...)
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.Server.ShutdownTimeout > 0 {
		return s.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

// Sweeper expõe o sweeper para passadas manuais.
func (s *Server) Sweeper() *application.Sweeper { return s.sweeper }

func newHTTPServer(h http.Handler) *http.Server {
	return &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}
