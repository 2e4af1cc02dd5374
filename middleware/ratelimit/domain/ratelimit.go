package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"errors"
	"time"
)

// Key identifica o cliente (IP, API key, ...). Vazia nunca chega na policy:
// o gate troca por UnknownKey.
type Key string

// UnknownKey é a chave usada quando não há endereço utilizável na requisição.
const UnknownKey Key = "unknown"

var (
	// ErrNoStore indica uma policy montada sem store de contagem.
	ErrNoStore = errors.New("ratelimit: record store is not configured")
	// ErrEmptyKey indica uma chave vazia vinda de um KeyFunc customizado.
	ErrEmptyKey = errors.New("ratelimit: empty client key")
	// ErrInvalidWindow indica uma policy com janela <= 0.
	ErrInvalidWindow = errors.New("ratelimit: window must be positive")
)

// PolicyConfig é fixada no startup e não muda em runtime.
type PolicyConfig struct {
	// Limit é o máximo de requisições admitidas por janela. 0 nega tudo.
	Limit int
	// Window é o tamanho da janela.
	Window time.Duration
}

// Record é o consumo de um cliente na janela atual.
//
// Count >= 0 sempre. Um Record só é alterado dentro de Store.Mutate.
type Record struct {
	Count       int
	WindowStart time.Time
}

// Decision é o resultado de uma avaliação de admissão.
type Decision struct {
	Allowed bool

	Limit     int
	Remaining int
	// ResetAt é quando a janela (ou o bucket) volta ao estado cheio.
	ResetAt time.Time
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
	// Degraded indica que a policy falhou e a decisão veio da política de
	// falha (fail-open/fail-closed), não da contagem.
	Degraded bool
}

// Policy decide ALLOW/DENY para uma chave no instante now.
//
// O tempo é sempre injetado; implementações não leem o relógio.
type Policy interface {
	Decide(key Key, now time.Time) (Decision, error)
}

// RecordStore guarda um Record por chave.
//
// Mutate executa fn com exclusão mútua para a chave. rec aponta para uma cópia
// zerada quando exists=false. Se fn retornar true o record é persistido.
// O ponteiro não pode ser retido depois que fn retorna.
type RecordStore interface {
	Mutate(key Key, fn func(rec *Record, exists bool) bool)
	Get(key Key) (Record, bool)
	Sweepable
}

// Sweepable é qualquer estado por chave que pode ser compactado pelo Sweeper.
type Sweepable interface {
	// Sweep remove entradas mais velhas que olderThan em relação a now
	// e retorna quantas removeu.
	Sweep(olderThan time.Duration, now time.Time) int
	// Len retorna quantas chaves estão sendo rastreadas.
	Len() int
}

// SweepObserver recebe o resultado de cada passada do Sweeper.
type SweepObserver interface {
	ObserveSweep(removed, remaining int)
}
