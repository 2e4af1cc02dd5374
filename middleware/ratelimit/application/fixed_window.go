package application

import (
	"time"

	"notes-gateway/middleware/ratelimit/domain"
)

// FixedWindow é a policy padrão: janela fixa reiniciada na expiração.
//
// O(1) de memória e de custo por decisão. Na virada da janela um cliente
// pode passar até 2×Limit requisições em sequência; isso é aceito.
type FixedWindow struct {
	Store  domain.RecordStore
	Config domain.PolicyConfig
}

var _ domain.Policy = FixedWindow{}

func NewFixedWindow(store domain.RecordStore, cfg domain.PolicyConfig) FixedWindow {
	return FixedWindow{Store: store, Config: cfg}
}

// Decide implementa domain.Policy. Leitura, reset e incremento acontecem
// dentro de um único Mutate, então dois pedidos simultâneos da mesma chave
// com Count == Limit-1 nunca são ambos admitidos.
//
// Um WindowStart no futuro de até uma janela vale como janela corrente: o
// cliente fica negado no máximo até WindowStart+Window, ou seja, menos de
// duas janelas depois de now. Mais longe que isso, reinicia na hora.
func (p FixedWindow) Decide(key domain.Key, now time.Time) (domain.Decision, error) {
	if p.Store == nil {
		return domain.Decision{}, domain.ErrNoStore
	}
	if key == "" {
		return domain.Decision{}, domain.ErrEmptyKey
	}

	if p.Config.Window <= 0 {
		return domain.Decision{}, domain.ErrInvalidWindow
	}

	limit := p.Config.Limit
	if limit <= 0 {
		return domain.Decision{Allowed: false, Limit: 0, ResetAt: now}, nil
	}

	var dec domain.Decision
	p.Store.Mutate(key, func(rec *domain.Record, exists bool) bool {
		// Inversões pequenas (goroutines que leram o relógio fora de ordem)
		// contam na janela atual. Um WindowStart mais de uma janela à frente
		// só acontece com o relógio voltando: trata como janela nova.
		if !exists || now.Sub(rec.WindowStart) >= p.Config.Window || rec.WindowStart.Sub(now) > p.Config.Window {
			rec.Count = 0
			rec.WindowStart = now
		}

		resetAt := rec.WindowStart.Add(p.Config.Window)
		dec = domain.Decision{Limit: limit, ResetAt: resetAt}

		if rec.Count < limit {
			rec.Count++
			dec.Allowed = true
			dec.Remaining = limit - rec.Count
			return true
		}

		// negado: record fica como está
		dec.RetryAfter = resetAt.Sub(now)
		return false
	})
	return dec, nil
}
