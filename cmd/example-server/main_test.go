package main

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRouter(t *testing.T) {
	h := newRouter(nil)

	tests := []struct {
		path string
		code int
		body string
	}{
		{"/", http.StatusOK, "ok\n"},
		{"/healthz", http.StatusOK, "ok\n"},
		{"/hello/ana", http.StatusOK, "hello, ana\n"},
		{"/missing", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestNewRouter_SecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter(nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
}

func TestNewRouter_CompressesWhenAccepted(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/hello/ana", nil)
	r.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	newRouter(nil).ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "hello, ana\n", string(body))
}

func TestNewRouter_CORSAllowsOnlyConfiguredOrigins(t *testing.T) {
	h := newRouter([]string{"https://seen.red"})

	send := func(origin string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		r.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, "https://seen.red", send("https://seen.red").Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, send("https://evil.example").Header().Get("Access-Control-Allow-Origin"))

	pre := httptest.NewRequest(http.MethodOptions, "/healthz", nil)
	pre.Header.Set("Origin", "https://seen.red")
	pre.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, pre)
	assert.Equal(t, "https://seen.red", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewRouter_NoCORSWithoutOrigins(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set("Origin", "https://seen.red")
	w := httptest.NewRecorder()
	newRouter(nil).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
