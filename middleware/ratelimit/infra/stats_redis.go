package infra

import (
	"context"
	"strings"
	"time"

	"notes-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava contadores de decisão em hashes do Redis.
//
// É apenas estatística: o estado de rate limit continua em memória no processo.
// Faz I/O, então no gate deve ser usado atrás de AsyncStats.
type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix string
	// ttl aplica apenas em chaves de série temporal / por key.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "notes-gateway:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// statsIncr é um HINCRBY planejado; expire indica que a chave recebe TTL.
type statsIncr struct {
	key    string
	field  string
	expire bool
}

// plan monta os incrementos de um evento, sem tocar no Redis.
func (s *RedisStatsStore) plan(ev domain.StatsEvent, at time.Time) []statsIncr {
	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	out := []statsIncr{{key: s.prefix + ":total", field: field}}

	if s.bucket == "minute" {
		out = append(out, statsIncr{
			key:    s.prefix + ":minute:" + at.UTC().Format("200601021504"),
			field:  field,
			expire: true,
		})
	}

	if reason := strings.TrimSpace(ev.Reason); reason != "" {
		out = append(out, statsIncr{key: s.prefix + ":reason", field: reason + ":" + field})
	}

	routeField := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path))
	if routeField != "" {
		out = append(out, statsIncr{key: s.prefix + ":route", field: routeField + ":" + field})
	}

	if s.trackKeys {
		if k := strings.TrimSpace(string(ev.Key)); k != "" {
			out = append(out, statsIncr{key: s.prefix + ":key:" + k, field: field, expire: true})
		}
	}
	return out
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	pipe := s.rdb.Pipeline()
	for _, inc := range s.plan(ev, at) {
		pipe.HIncrBy(ctx, inc.key, inc.field, 1)
		if inc.expire && s.ttl > 0 {
			pipe.Expire(ctx, inc.key, s.ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}
