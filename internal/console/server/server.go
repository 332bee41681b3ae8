package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/console/handler"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/infra/auth"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/pipeline"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Проверка RS256 токенов; nil — API открыт (локальный запуск)
	authValidator auth.TokenValidator
	metrics       prometheus.Gatherer

	agentHandler *handler.AgentHandler // /v1/agents
	eventHandler *handler.EventHandler // /v1/events, /v1/dashboard
}

// NewConsoleServer инициализирует HTTP API со всеми зависимостями
func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	metrics prometheus.Gatherer,
	agentH *handler.AgentHandler,
	eventH *handler.EventHandler,
) *ConsoleServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ConsoleServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("console-api"),
		authValidator: validator,
		metrics:       metrics,
		agentHandler:  agentH,
		eventHandler:  eventH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(pipeline.TracingMiddleware)
	r.Use(s.accessLog)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		if s.metrics != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
		}
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР ---
	r.Group(func(r chi.Router) {
		if s.authValidator != nil {
			r.Use(auth.NewMiddleware(s.authValidator, s.logger))
		}

		r.Route("/v1/agents", func(r chi.Router) {
			r.With(auth.RequireScope(domain.ScopeAgentsRead)).Get("/", s.agentHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(auth.RequireScope(domain.ScopeAgentsRead))
					r.Get("/", s.agentHandler.Get)
					r.Get("/modules/{index}/inputs", s.agentHandler.Inputs)
					r.Get("/runs", s.agentHandler.Runs)
				})

				// Редактирование цепочки модулей
				r.Group(func(r chi.Router) {
					r.Use(auth.RequireScope(domain.ScopeAgentsWrite))
					r.Put("/", s.agentHandler.Put)
					r.Post("/modules", s.agentHandler.AddModule)
					r.Patch("/modules/{moduleID}", s.agentHandler.PatchModule)
					r.Delete("/modules/{moduleID}", s.agentHandler.DeleteModule)
					r.Post("/modules/{moduleID}/move", s.agentHandler.MoveModule)
				})

				// Запуск и управление состоянием
				r.Group(func(r chi.Router) {
					r.Use(auth.RequireScope(domain.ScopeAgentsRun))
					r.Post("/run", s.agentHandler.Run)
					r.Post("/pause", s.agentHandler.Pause)
					r.Post("/resume", s.agentHandler.Resume)
					r.Post("/dry-run", s.agentHandler.SetDryRun)
				})
			})
		})

		r.With(auth.RequireScope(domain.ScopeAgentsRun)).Post("/v1/events", s.eventHandler.Ingest)
		r.With(auth.RequireScope(domain.ScopeAgentsRead)).Get("/v1/dashboard", s.eventHandler.Dashboard)
	})
}

// accessLog пишет каждый запрос в zap; /health и /metrics только на debug.
func (s *ConsoleServer) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		level := zap.InfoLevel
		switch {
		case ww.Status() >= http.StatusInternalServerError:
			level = zap.ErrorLevel
		case r.URL.Path == "/health" || r.URL.Path == "/metrics":
			level = zap.DebugLevel
		}
		if ce := s.logger.Check(level, "http request"); ce != nil {
			ce.Write(
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("trace_id", ww.Header().Get("X-Trace-ID")),
			)
		}
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
