package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"notes-gateway/middleware/ratelimit/application"
	"notes-gateway/middleware/ratelimit/domain"
)

const rateLimitedMessage = "Too many requests"

type Options struct {
	// Policy decide ALLOW/DENY. Nil libera tudo.
	Policy domain.Policy
	// Stats recebe um evento por decisão (best-effort).
	Stats domain.StatsStore

	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool

	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
	// FailClosed troca o fail-open padrão por DENY quando a policy falha.
	FailClosed bool

	// Clock é injetável para testes; padrão time.Now.
	Clock  func() time.Time
	Logger *slog.Logger
}

// Middleware é o gate de admissão: roda antes de qualquer roteamento.
//
// ALLOW repassa w e r intocados para next. DENY escreve a rejeição e para,
// sem chamar next.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	svc := application.Service{
		Policy:     opts.Policy,
		FailClosed: opts.FailClosed,
		RetryAfter: opts.RetryAfter,
		Logger:     opts.Logger,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := domain.Key(strings.TrimSpace(opts.KeyFn(r)))
			if key == "" {
				key = domain.UnknownKey
			}

			now := opts.Clock()
			dec := svc.Decide(key, now)

			if opts.Stats != nil {
				reason := domain.ReasonRate
				if dec.Degraded {
					reason = domain.ReasonFault
				}
				if err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     key,
					Allowed: dec.Allowed,
					Reason:  reason,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      now,
				}); err != nil {
					opts.Logger.Debug("rate limit stats failed", "error", err)
				}
			}

			if opts.AddRateLimitHeaders && !dec.Degraded {
				h := w.Header()
				h.Set("X-RateLimit-Key", string(key))
				h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
				h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
				if !dec.ResetAt.IsZero() {
					h.Set("X-RateLimit-Reset", strconv.FormatInt(dec.ResetAt.Unix(), 10))
				}
			}

			if !dec.Allowed {
				opts.Logger.Warn("rate limit exceeded",
					"key", string(key),
					"method", r.Method,
					"path", r.URL.Path,
					"limit", dec.Limit,
					"retry_after", dec.RetryAfter,
				)
				w.Header().Set("Retry-After", formatRetryAfter(dec.RetryAfter))
				writeRejection(w, opts.RejectStatus, rateLimitedMessage)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
