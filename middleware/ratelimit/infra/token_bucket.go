package infra

import (
	"math"
	"sync"
	"time"

	"notes-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// TokenBucket é a policy alternativa ao fixed window: um token bucket por
// chave (x/time/rate) com taxa Limit/Window e burst Limit.
//
// Diferente do fixed window não permite 2×Limit na virada da janela, mas o
// custo por chave é maior (um rate.Limiter com mutex próprio).
type TokenBucket struct {
	mu      sync.Mutex
	entries map[domain.Key]*bucketEntry
	rps     rate.Limit
	burst   int
	window  time.Duration
}

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

var (
	_ domain.Policy    = (*TokenBucket)(nil)
	_ domain.Sweepable = (*TokenBucket)(nil)
)

func NewTokenBucket(cfg domain.PolicyConfig) *TokenBucket {
	tb := &TokenBucket{
		entries: make(map[domain.Key]*bucketEntry),
		burst:   cfg.Limit,
		window:  cfg.Window,
	}
	if cfg.Limit > 0 && cfg.Window > 0 {
		tb.rps = rate.Limit(float64(cfg.Limit) / cfg.Window.Seconds())
	}
	return tb
}

func (tb *TokenBucket) RPS() float64 { return float64(tb.rps) }
func (tb *TokenBucket) Burst() int   { return tb.burst }

// limiter devolve o bucket da chave, criando cheio se não existir.
// O lock do mapa é curto; a decisão em si usa o mutex do rate.Limiter.
func (tb *TokenBucket) limiter(key domain.Key, now time.Time) *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if ent, ok := tb.entries[key]; ok {
		if now.After(ent.lastSeen) {
			ent.lastSeen = now
		}
		return ent.lim
	}

	lim := rate.NewLimiter(tb.rps, tb.burst)
	tb.entries[key] = &bucketEntry{lim: lim, lastSeen: now}
	return lim
}

// Decide implementa domain.Policy.
func (tb *TokenBucket) Decide(key domain.Key, now time.Time) (domain.Decision, error) {
	if key == "" {
		return domain.Decision{}, domain.ErrEmptyKey
	}
	if tb.burst <= 0 {
		return domain.Decision{Allowed: false, Limit: 0, ResetAt: now}, nil
	}

	lim := tb.limiter(key, now)
	allowed := lim.AllowN(now, 1)

	tokens := lim.TokensAt(now)
	dec := domain.Decision{
		Allowed:   allowed,
		Limit:     tb.burst,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		ResetAt:   now.Add(tb.refill(float64(tb.burst) - tokens)),
	}
	if !allowed {
		dec.RetryAfter = tb.refill(1 - tokens)
	}
	return dec, nil
}

// refill é quanto tempo leva para acumular n tokens.
func (tb *TokenBucket) refill(n float64) time.Duration {
	if n <= 0 || tb.rps <= 0 {
		return 0
	}
	return time.Duration(n / float64(tb.rps) * float64(time.Second))
}

// Sweep remove buckets sem uso há mais de olderThan. Com olderThan >= Window
// o bucket removido já estaria cheio, então recriá-lo não muda a decisão.
func (tb *TokenBucket) Sweep(olderThan time.Duration, now time.Time) int {
	cutoff := now.Add(-olderThan)

	tb.mu.Lock()
	defer tb.mu.Unlock()

	removed := 0
	for k, ent := range tb.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(tb.entries, k)
			removed++
		}
	}
	return removed
}

func (tb *TokenBucket) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.entries)
}
