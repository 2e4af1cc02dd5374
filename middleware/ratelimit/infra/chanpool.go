package infra

import (
	"context"

	"notes-gateway/middleware/ratelimit/domain"
)

// chanPool é um semáforo baseado em channel: cada vaga é um slot do buffer.
type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool com capacidade `max`.
func NewChanPool(max int) domain.SlotPool {
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	// caminho rápido: não depende do ctx se já houver vaga
	select {
	case p.sem <- struct{}{}:
		return p.release(), true
	default:
	}

	select {
	case p.sem <- struct{}{}:
		return p.release(), true
	case <-ctx.Done():
		return nil, false
	}
}

func (p *chanPool) release() func() {
	done := false
	return func() {
		if done {
			return
		}
		done = true
		<-p.sem
	}
}

func (p *chanPool) InUse() int { return len(p.sem) }
func (p *chanPool) Cap() int   { return cap(p.sem) }
