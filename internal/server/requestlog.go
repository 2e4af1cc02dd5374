package server

import (
	"log/slog"
	"net/http"
	"time"

	"notes-gateway/middleware/ratelimit"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

// Unwrap deixa http.ResponseController chegar ao writer original (flush do proxy).
func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func withRequestLog(logger *slog.Logger, keyFn ratelimit.KeyFunc, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// O ID gerado vai num clone: a requisição de quem chamou não muda, e
		// o gate repassa este clone intocado para o downstream.
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r = r.Clone(r.Context())
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)

		sr := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(sr, r)

		if sr.status == 0 {
			sr.status = http.StatusOK
		}
		attrs := []any{
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.status,
			"bytes", sr.bytes,
			"client", keyFn(r),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if r.URL.RawQuery != "" {
			attrs = append(attrs, "query", r.URL.RawQuery)
		}
		logger.Log(r.Context(), levelForStatus(sr.status), "http request", attrs...)
	})
}

func levelForStatus(code int) slog.Level {
	if code >= 500 {
		return slog.LevelError
	}
	if code >= 400 {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
