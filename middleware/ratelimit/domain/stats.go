package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão do gate.
//
// Method/Path são strings genéricas, o pacote continua sem net/http.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Key     Key
	Allowed bool
	// Reason é "rate" (rate limit), "concurrency" (sem vaga) ou "fault"
	// (decisão tomada pela política de falha).
	Reason string

	Method string
	Path   string

	At time.Time
}

const (
	ReasonRate        = "rate"
	ReasonConcurrency = "concurrency"
	ReasonFault       = "fault"
)

// StatsStore é a estratégia de persistência para estatísticas do gate.
//
// O middleware trata erro como best-effort (não derruba request).
// Implementações com I/O devem ser embrulhadas em infra.AsyncStats.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
