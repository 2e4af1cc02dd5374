package application

import (
	"context"
	"log/slog"
	"time"

	"notes-gateway/middleware/ratelimit/domain"
)

// Sweeper remove periodicamente o estado de clientes inativos, para que a
// memória acompanhe os clientes recentes e não todos que já apareceram.
//
// Roda em goroutine própria, fora do caminho das requisições.
type Sweeper struct {
	Target domain.Sweepable
	// Interval entre passadas. <= 0 desliga o loop (SweepOnce continua valendo).
	Interval time.Duration
	// Retention: entradas mais velhas que isso são removidas.
	Retention time.Duration

	Clock    func() time.Time
	Logger   *slog.Logger
	Observer domain.SweepObserver
}

// DefaultRetention é 2× a janela.
func DefaultRetention(window time.Duration) time.Duration { return 2 * window }

// SweepOnce faz uma passada e retorna quantas entradas removeu.
func (s *Sweeper) SweepOnce(now time.Time) int {
	if s.Target == nil {
		return 0
	}
	removed := s.Target.Sweep(s.Retention, now)
	remaining := s.Target.Len()

	if s.Observer != nil {
		s.Observer.ObserveSweep(removed, remaining)
	}
	s.logger().Debug("rate limit sweep", "removed", removed, "remaining", remaining, "retention", s.Retention)
	return removed
}

// Start inicia uma goroutine que varre o store periodicamente.
// Pare cancelando o contexto; o canal retornado fecha quando o loop termina.
func (s *Sweeper) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if s.Interval <= 0 || s.Target == nil {
		close(done)
		return done
	}

	t := time.NewTicker(s.Interval)
	go func() {
		defer close(done)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.SweepOnce(s.now())
			}
		}
	}()
	return done
}

func (s *Sweeper) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Sweeper) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
