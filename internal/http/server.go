// Package http exposes the ledger, its reports and the advisor as a JSON API.
package http

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"financas/internal/core"
	applog "financas/internal/log"
	"financas/internal/middleware/ratelimit"
	"financas/internal/middleware/security"
	"financas/internal/middleware/trace"
	"financas/internal/services"
)

const defaultAdviceTimeout = 2 * time.Minute

// Advisor streams advice for a question about data.
type Advisor interface {
	Advise(ctx context.Context, data core.FinancialData, question string) (iter.Seq2[string, error], error)
}

// Options configures NewServer. Ledger is required.
type Options struct {
	Addr               string
	Ledger             *services.Ledger
	Advisor            Advisor
	AdviceTimeout      time.Duration
	RateLimitPerMinute int
	Logger             *applog.Logger
}

type Server struct {
	http.Server
	ledger        *services.Ledger
	advisor       Advisor
	adviceTimeout time.Duration
	logs          *applog.StructuredLogger

	tracer   *trace.Middleware
	detector *security.Detector
	limiter  *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	adviceTimeout := opts.AdviceTimeout
	if adviceTimeout <= 0 {
		adviceTimeout = defaultAdviceTimeout
	}

	limiterCfg := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		limiterCfg.RequestsPerMinute = opts.RateLimitPerMinute
	}

	detector := security.NewDetector()
	s := &Server{
		ledger:        opts.Ledger,
		advisor:       opts.Advisor,
		adviceTimeout: adviceTimeout,
		logs:          applog.NewStructuredLogger(logger),
		tracer:        trace.NewMiddleware(detector.ExtractClientIP),
		detector:      detector,
		limiter:       ratelimit.NewLimiter(limiterCfg),
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})
	r.Use(
		s.tracer.Middleware,
		detector.Middleware,
		security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware,
		applog.Middleware(logger),
		applog.RequestIDMiddleware(func(r *http.Request) string { return trace.GetRequestID(r.Context()) }),
	)

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		slog.DebugContext(r.Context(), "Rate limit exceeded",
			applog.FieldComponent, applog.ComponentRateLimit,
			applog.FieldClientIP, detector.ExtractClientIP(r),
			applog.FieldPath, r.URL.Path)
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded, try again later"})
	}))

	api.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/report", s.handleReport).Methods(http.MethodGet)

	api.HandleFunc("/incomes", s.handleCreateIncome).Methods(http.MethodPost)
	api.HandleFunc("/incomes/{id}", s.handleUpdateIncome).Methods(http.MethodPut)
	api.HandleFunc("/incomes/{id}", s.handleDeleteIncome).Methods(http.MethodDelete)

	api.HandleFunc("/fixed-expenses", s.handleCreateFixedExpense).Methods(http.MethodPost)
	api.HandleFunc("/fixed-expenses/{id}", s.handleUpdateFixedExpense).Methods(http.MethodPut)
	api.HandleFunc("/fixed-expenses/{id}", s.handleDeleteFixedExpense).Methods(http.MethodDelete)
	api.HandleFunc("/fixed-expenses/{id}/toggle", s.handleToggleFixedExpense).Methods(http.MethodPost)

	api.HandleFunc("/cards", s.handleCreateCard).Methods(http.MethodPost)
	api.HandleFunc("/cards/{cardID}", s.handleUpdateCard).Methods(http.MethodPut)
	api.HandleFunc("/cards/{cardID}", s.handleDeleteCard).Methods(http.MethodDelete)

	api.HandleFunc("/cards/{cardID}/purchases", s.handleCreatePurchase).Methods(http.MethodPost)
	api.HandleFunc("/cards/{cardID}/purchases/{purchaseID}", s.handleUpdatePurchase).Methods(http.MethodPut)
	api.HandleFunc("/cards/{cardID}/purchases/{purchaseID}", s.handleDeletePurchase).Methods(http.MethodDelete)
	api.HandleFunc("/cards/{cardID}/purchases/{purchaseID}/installments/{period}/toggle", s.handleToggleInstallment).Methods(http.MethodPost)

	api.HandleFunc("/advice", s.handleAdvice).Methods(http.MethodPost)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "ledger not loaded"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type metricsResponse struct {
	Requests  trace.Metrics             `json:"requests"`
	RateLimit ratelimit.Metrics         `json:"rateLimit"`
	Security  security.DetectionMetrics `json:"security"`
	Marker    string                    `json:"lastProcessedMonth"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metricsResponse{
		Requests:  s.tracer.GetMetrics(),
		RateLimit: s.limiter.GetMetrics(),
		Security:  s.detector.GetMetrics(),
		Marker:    s.ledger.LastProcessedMonth(),
	})
}
