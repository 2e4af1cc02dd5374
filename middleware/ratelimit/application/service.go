package application

import (
	"fmt"
	"log/slog"
	"time"

	"notes-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Nenhuma falha da policy sobe como erro: erro ou panic viram a decisão da
// política de falha. Padrão é fail-open (ALLOW), para que um defeito interno
// não vire negação de serviço; FailClosed=true inverte para DENY.
type Service struct {
	Policy     domain.Policy
	FailClosed bool
	// RetryAfter é usado quando a policy nega sem sugerir espera,
	// e nas negações por fail-closed.
	RetryAfter time.Duration
	Logger     *slog.Logger
}

func (s Service) Decide(key domain.Key, now time.Time) (dec domain.Decision) {
	if s.Policy == nil {
		return domain.Decision{Allowed: true}
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	defer func() {
		if r := recover(); r != nil {
			dec = s.degrade(key, fmt.Errorf("policy panic: %v", r))
		}
	}()

	d, err := s.Policy.Decide(key, now)
	if err != nil {
		return s.degrade(key, err)
	}
	if !d.Allowed && d.RetryAfter <= 0 {
		d.RetryAfter = s.RetryAfter
	}
	return d
}

func (s Service) degrade(key domain.Key, err error) domain.Decision {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("rate limit decision failed", "key", string(key), "fail_closed", s.FailClosed, "error", err)

	if s.FailClosed {
		return domain.Decision{Allowed: false, RetryAfter: s.RetryAfter, Degraded: true}
	}
	return domain.Decision{Allowed: true, Degraded: true}
}
