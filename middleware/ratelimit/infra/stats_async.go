package infra

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"notes-gateway/middleware/ratelimit/domain"
)

// AsyncStats tira a gravação de estatística do caminho da requisição.
//
// Record só enfileira; um worker repassa para o StatsStore de destino.
// Com a fila cheia o evento é descartado e contado em Dropped.
type AsyncStats struct {
	next    domain.StatsStore
	queue   chan domain.StatsEvent
	timeout time.Duration
	logger  *slog.Logger

	dropped atomic.Int64
	closeMu sync.RWMutex
	closed  bool
	done    chan struct{}
}

type AsyncStatsOption func(*AsyncStats)

// WithQueueSize define o tamanho da fila (padrão 1024).
func WithQueueSize(n int) AsyncStatsOption {
	return func(a *AsyncStats) {
		if n > 0 {
			a.queue = make(chan domain.StatsEvent, n)
		}
	}
}

// WithRecordTimeout limita cada chamada ao StatsStore de destino (padrão 2s).
func WithRecordTimeout(d time.Duration) AsyncStatsOption {
	return func(a *AsyncStats) { a.timeout = d }
}

func WithStatsLogger(l *slog.Logger) AsyncStatsOption {
	return func(a *AsyncStats) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAsyncStats cria o wrapper e inicia o worker.
// Chame Close para drenar a fila e parar o worker.
func NewAsyncStats(next domain.StatsStore, opts ...AsyncStatsOption) *AsyncStats {
	a := &AsyncStats{
		next:    next,
		queue:   make(chan domain.StatsEvent, 1024),
		timeout: 2 * time.Second,
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	go a.run()
	return a
}

// ErrStatsClosed é retornado por Record depois de Close.
var ErrStatsClosed = errors.New("stats: closed")

// Record implementa domain.StatsStore sem bloquear.
func (a *AsyncStats) Record(_ context.Context, ev domain.StatsEvent) error {
	a.closeMu.RLock()
	defer a.closeMu.RUnlock()
	if a.closed {
		return ErrStatsClosed
	}

	select {
	case a.queue <- ev:
	default:
		a.dropped.Add(1)
	}
	return nil
}

func (a *AsyncStats) Dropped() int64 { return a.dropped.Load() }

func (a *AsyncStats) run() {
	defer close(a.done)
	for ev := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Record(ctx, ev); err != nil {
			a.logger.Debug("stats record failed", "error", err)
		}
		cancel()
	}
}

// Close para de aceitar eventos e espera a fila esvaziar ou ctx encerrar.
func (a *AsyncStats) Close(ctx context.Context) error {
	a.closeMu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.closeMu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MultiStats repassa cada evento para todos os stores, mesmo quando um falha.
type MultiStats []domain.StatsStore

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
