package infra

import (
	"context"
	"maps"
	"sync"

	"notes-gateway/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed int64
	Denied  int64
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
		return
	}
	c.Denied++
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração: com WithTrackKeys(true) cresce com o número de clientes.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    Counters
	byReason map[string]Counters
	byRoute  map[string]Counters
	byKey    map[domain.Key]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byReason: make(map[string]Counters),
		byRoute:  make(map[string]Counters),
		byKey:    make(map[domain.Key]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Allowed)

	c := s.byReason[ev.Reason]
	c.add(ev.Allowed)
	s.byReason[ev.Reason] = c

	r := s.byRoute[route]
	r.add(ev.Allowed)
	s.byRoute[route] = r

	if s.trackKeys {
		k := s.byKey[ev.Key]
		k.add(ev.Allowed)
		s.byKey[ev.Key] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByReason() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byReason)
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byRoute)
}

func (s *MemoryStatsStore) ByKey() map[domain.Key]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byKey)
}
