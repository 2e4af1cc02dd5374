package application

import (
	"context"
	"time"

	"notes-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService concentra a regra de aquisição/liberação de vagas do
// dispatcher downstream, sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
// - Se `AcquireTimeout <= 0`, espera até o ctx da requisição cancelar.
// - Se `AcquireTimeout > 0`, espera no máximo o timeout.
// Retorna (release, ok). Se ok=false, nenhuma vaga foi adquirida e release é no-op.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(ctx)
	if !ok || release == nil {
		return func() {}, false
	}
	return release, true
}
