// Package config centraliza o carregamento da configuração dos binários.
//
// Os valores vêm do ambiente (opcionalmente de um .env) e são fixos durante a
// vida do processo. Configuração inválida é fatal: os binários não sobem.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrInvalid envolve todo erro de configuração.
var ErrInvalid = errors.New("invalid configuration")

const (
	AlgorithmFixed = "fixed"
	AlgorithmToken = "token"
)

// maxWindowMillis é o maior RATE_WINDOW_MS que ainda cabe num time.Duration.
const maxWindowMillis = math.MaxInt64 / int64(time.Millisecond)

type Config struct {
	Server      ServerConfig
	Rate        RateConfig
	Concurrency ConcurrencyConfig
	Stats       StatsConfig
	Metrics     MetricsConfig
	CORS        CORSConfig
	Log         LogConfig
}

type ServerConfig struct {
	ListenAddr      string        `env:"LISTEN_ADDR" envDefault:":8080"`
	UpstreamURL     string        `env:"UPSTREAM_URL"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type RateConfig struct {
	Limit        int    `env:"RATE_LIMIT" envDefault:"60"`
	WindowMillis int    `env:"RATE_WINDOW_MS" envDefault:"60000"`
	Algorithm    string `env:"RATE_ALGORITHM" envDefault:"fixed"`
	// Retention 0 => 2× a janela.
	Retention time.Duration `env:"RATE_RETENTION"`
	// SweepEvery 0 => uma janela.
	SweepEvery time.Duration `env:"RATE_SWEEP_EVERY"`
	Shards     int           `env:"RATE_SHARDS" envDefault:"32"`

	KeyHeader  string        `env:"RATE_KEY_HEADER"`
	TrustXFF   bool          `env:"TRUST_XFF"`
	AddHeaders bool          `env:"ADD_RATELIMIT_HEADERS"`
	FailClosed bool          `env:"RATE_FAIL_CLOSED"`
	RetryAfter time.Duration `env:"RETRY_AFTER" envDefault:"1s"`
}

func (r RateConfig) Window() time.Duration {
	return time.Duration(r.WindowMillis) * time.Millisecond
}

func (r RateConfig) EffectiveRetention() time.Duration {
	if r.Retention > 0 {
		return r.Retention
	}
	w := r.Window()
	if w > math.MaxInt64/2 {
		return time.Duration(math.MaxInt64)
	}
	return 2 * w
}

func (r RateConfig) EffectiveSweepEvery() time.Duration {
	if r.SweepEvery > 0 {
		return r.SweepEvery
	}
	return r.Window()
}

type ConcurrencyConfig struct {
	Max     int           `env:"CONCURRENCY_MAX" envDefault:"100"`
	Timeout time.Duration `env:"CONCURRENCY_TIMEOUT" envDefault:"5s"`
}

// StatsConfig liga a gravação de contadores de decisão no Redis.
type StatsConfig struct {
	Enabled       bool          `env:"RATE_STATS_ENABLED"`
	RedisAddr     string        `env:"RATE_STATS_REDIS_ADDR"`
	RedisPassword string        `env:"RATE_STATS_REDIS_PASSWORD"`
	RedisDB       int           `env:"RATE_STATS_REDIS_DB"`
	Prefix        string        `env:"RATE_STATS_PREFIX" envDefault:"notes-gateway:stats"`
	TTL           time.Duration `env:"RATE_STATS_TTL" envDefault:"24h"`
	Bucket        string        `env:"RATE_STATS_BUCKET" envDefault:"minute"`
	TrackKeys     bool          `env:"RATE_STATS_TRACK_KEYS"`
	QueueSize     int           `env:"RATE_STATS_QUEUE" envDefault:"1024"`
}

type MetricsConfig struct {
	// Addr vazio desliga o listener de métricas.
	Addr      string `env:"METRICS_ADDR"`
	Path      string `env:"METRICS_PATH" envDefault:"/metrics"`
	Namespace string `env:"METRICS_NAMESPACE" envDefault:"notes"`
}

// CORSConfig vale para o router de exemplo. Lista vazia não instala CORS.
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load lê o .env (se existir) e o ambiente do processo.
func Load() (Config, error) {
	_ = godotenv.Load()
	return parse(env.Options{})
}

// FromMap faz o mesmo que Load usando só as variáveis de m.
func FromMap(m map[string]string) (Config, error) {
	return parse(env.Options{Environment: m})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	cfg.Rate.Algorithm = strings.ToLower(strings.TrimSpace(cfg.Rate.Algorithm))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate junta todos os problemas encontrados num único erro.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Rate.Limit <= 0 {
		add("RATE_LIMIT must be > 0, got %d", c.Rate.Limit)
	}
	if c.Rate.WindowMillis <= 0 {
		add("RATE_WINDOW_MS must be > 0, got %d", c.Rate.WindowMillis)
	} else if int64(c.Rate.WindowMillis) > maxWindowMillis {
		add("RATE_WINDOW_MS must be <= %d, got %d", maxWindowMillis, c.Rate.WindowMillis)
	}
	switch c.Rate.Algorithm {
	case AlgorithmFixed, AlgorithmToken:
	default:
		add("RATE_ALGORITHM must be %q or %q, got %q", AlgorithmFixed, AlgorithmToken, c.Rate.Algorithm)
	}
	if c.Rate.Retention < 0 {
		add("RATE_RETENTION must be >= 0")
	} else if c.Rate.Retention > 0 && c.Rate.Window() > 0 && c.Rate.Retention < c.Rate.Window() {
		add("RATE_RETENTION (%s) must be >= the window (%s)", c.Rate.Retention, c.Rate.Window())
	}
	if c.Rate.SweepEvery < 0 {
		add("RATE_SWEEP_EVERY must be >= 0")
	}
	if c.Rate.Shards <= 0 {
		add("RATE_SHARDS must be > 0, got %d", c.Rate.Shards)
	}
	if c.Rate.RetryAfter <= 0 {
		add("RETRY_AFTER must be > 0")
	}
	if c.Concurrency.Max < 0 {
		add("CONCURRENCY_MAX must be >= 0")
	}
	if c.Concurrency.Timeout < 0 {
		add("CONCURRENCY_TIMEOUT must be >= 0")
	}
	for _, o := range c.CORS.AllowedOrigins {
		if strings.TrimSpace(o) == "" {
			add("CORS_ALLOWED_ORIGINS must not contain empty entries")
			break
		}
	}
	if c.Stats.Enabled && strings.TrimSpace(c.Stats.RedisAddr) == "" {
		add("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	if c.Metrics.Addr != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		add("METRICS_PATH must start with /")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
