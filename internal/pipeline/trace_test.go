package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracingMiddleware(t *testing.T) {
	var seen string
	h := TracingMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
	}))

	cases := []struct {
		name   string
		header map[string]string
		want   string
	}{
		{"explicit", map[string]string{"X-Trace-ID": "t-1"}, "t-1"},
		{"traceparent", map[string]string{"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}, "4bf92f3577b34da6a3ce929d0e0e4736"},
		{"explicit wins", map[string]string{"X-Trace-ID": "t-2", "traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}, "t-2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, seen)
			assert.Equal(t, tc.want, rec.Header().Get("X-Trace-ID"))
		})
	}

	// Нулевой trace-id невалиден, генерируется новый
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", "00-00000000000000000000000000000000-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "00000000000000000000000000000000", seen)
	assert.Equal(t, seen, rec.Header().Get("X-Trace-ID"))
}

func TestTraceIDFallback(t *testing.T) {
	ctx := WithTraceID(context.Background(), "fixed")
	assert.Equal(t, "fixed", TraceID(ctx))
	assert.NotEmpty(t, TraceID(context.Background()))
}
