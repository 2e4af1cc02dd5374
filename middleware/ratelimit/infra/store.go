package infra

import (
	"sync"
	"time"

	"notes-gateway/middleware/ratelimit/domain"

	"github.com/cespare/xxhash/v2"
)

// DefaultShards é o número de shards quando nenhum é configurado.
const DefaultShards = 32

// Store guarda um domain.Record por chave, particionado em shards.
//
// Cada shard tem seu próprio mutex: decisões para a mesma chave são
// serializadas e chaves em shards diferentes não disputam lock.
type Store struct {
	shards []*shard
}

type shard struct {
	mu      sync.Mutex
	records map[domain.Key]*domain.Record
}

var _ domain.RecordStore = (*Store)(nil)

type StoreOption func(*storeConfig)

type storeConfig struct {
	shards int
}

// WithShards define o número de shards. Valores <= 0 são ignorados.
func WithShards(n int) StoreOption {
	return func(c *storeConfig) {
		if n > 0 {
			c.shards = n
		}
	}
}

func NewStore(opts ...StoreOption) *Store {
	cfg := storeConfig{shards: DefaultShards}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Store{shards: make([]*shard, cfg.shards)}
	for i := range s.shards {
		s.shards[i] = &shard{records: make(map[domain.Key]*domain.Record)}
	}
	return s
}

func (s *Store) shardFor(key domain.Key) *shard {
	return s.shards[xxhash.Sum64String(string(key))%uint64(len(s.shards))]
}

// Mutate implementa domain.RecordStore.
func (s *Store) Mutate(key domain.Key, fn func(rec *domain.Record, exists bool) bool) {
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	cur, ok := sh.records[key]
	var rec domain.Record
	if ok {
		rec = *cur
	}
	if !fn(&rec, ok) {
		return
	}
	if ok {
		*cur = rec
		return
	}
	sh.records[key] = &rec
}

// Get retorna uma cópia do record da chave.
func (s *Store) Get(key domain.Key) (domain.Record, bool) {
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[key]
	if !ok {
		return domain.Record{}, false
	}
	return *rec, true
}

// Sweep remove records cuja janela começou antes de now-olderThan.
// Trava um shard por vez; requisições em outros shards seguem normalmente.
func (s *Store) Sweep(olderThan time.Duration, now time.Time) int {
	cutoff := now.Add(-olderThan)
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, rec := range sh.records {
			if rec.WindowStart.Before(cutoff) {
				delete(sh.records, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.records)
		sh.mu.Unlock()
	}
	return n
}

func (s *Store) Shards() int { return len(s.shards) }
