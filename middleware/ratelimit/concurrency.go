package ratelimit

import (
	"net/http"
	"time"

	"notes-gateway/middleware/ratelimit/application"
	"notes-gateway/middleware/ratelimit/domain"
	"notes-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	// Max é o número de requisições admitidas rodando ao mesmo tempo.
	// <= 0 desliga o limite.
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// Pool substitui o semáforo padrão (ex: para expor métricas do mesmo pool).
	Pool  domain.SlotPool
	Stats domain.StatsStore
	KeyFn KeyFunc
	// Clock marca o instante dos eventos de estatística; padrão time.Now.
	Clock func() time.Time
}

// ConcurrencyMiddleware segura a requisição até haver vaga no downstream.
// Sem vaga dentro do timeout responde 503 em JSON.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 && opts.Pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Pool == nil {
		opts.Pool = infra.NewChanPool(opts.Max)
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc("", false)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	svc := application.ConcurrencyService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				if opts.Stats != nil {
					_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
						Key:    domain.Key(opts.KeyFn(r)),
						Reason: domain.ReasonConcurrency,
						Method: r.Method,
						Path:   r.URL.Path,
						At:     opts.Clock(),
					})
				}
				writeRejection(w, opts.RejectStatus, http.StatusText(opts.RejectStatus))
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
