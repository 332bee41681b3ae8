package pipeline

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const traceHeader = "X-Trace-ID"

type traceKey struct{}

// WithTraceID кладёт trace id в контекст. Вложенные запуски агентов наследуют его.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID достаёт trace id; запуск без входящего id (CLI, тесты) получает новый.
func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// TracingMiddleware связывает HTTP-запрос с журналами запусков, которые он породил.
// Порядок: X-Trace-ID, затем trace-id из W3C traceparent, иначе новый id.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(traceHeader)
		if id == "" {
			id = fromTraceparent(r.Header.Get("traceparent"))
		}
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(traceHeader, id)
		next.ServeHTTP(w, r.WithContext(WithTraceID(r.Context(), id)))
	})
}

// fromTraceparent: "00-<32 hex trace-id>-<16 hex parent>-<flags>".
func fromTraceparent(h string) string {
	parts := strings.Split(strings.TrimSpace(h), "-")
	if len(parts) != 4 || len(parts[1]) != 32 || strings.Trim(parts[1], "0") == "" {
		return ""
	}
	return parts[1]
}
