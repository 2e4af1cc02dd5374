package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"notes-gateway/middleware/ratelimit/domain"
)

// KeyFunc extrai a chave do cliente. Nunca falha: sem dado utilizável
// devolve domain.UnknownKey.
type KeyFunc func(r *http.Request) string

// DefaultKeyFunc resolve a chave nesta ordem:
//
//  1. header keyHeader, se configurado e presente (ex: X-Api-Key)
//  2. primeiro IP válido do X-Forwarded-For, só se trustXFF
//  3. host do RemoteAddr (sem porta)
//  4. RemoteAddr cru
//  5. "unknown"
//
// Só ligue trustXFF atrás de um proxy que sobrescreve o header, senão o
// cliente escolhe a própria chave.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			if ip := firstForwardedIP(r.Header.Get("X-Forwarded-For")); ip != "" {
				return ip
			}
		}

		addr := strings.TrimSpace(r.RemoteAddr)
		host, _, err := net.SplitHostPort(addr)
		if err == nil && host != "" {
			return normalizeIP(host)
		}
		if addr != "" {
			return normalizeIP(addr)
		}
		return string(domain.UnknownKey)
	}
}

// firstForwardedIP pega o primeiro IP parseável do X-Forwarded-For
// (cliente original); entradas lixo são puladas.
func firstForwardedIP(xff string) string {
	if xff == "" {
		return ""
	}
	for part := range strings.SplitSeq(xff, ",") {
		if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
			return ip.String()
		}
	}
	return ""
}

// normalizeIP devolve a forma canônica quando s é um IP, para que
// "::ffff:10.0.0.1" e "10.0.0.1" caiam na mesma chave.
func normalizeIP(s string) string {
	if ip := net.ParseIP(s); ip != nil {
		return ip.String()
	}
	return s
}
