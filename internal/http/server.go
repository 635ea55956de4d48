package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "homeledger/internal/log"
	"homeledger/internal/metrics"
	"homeledger/internal/middleware/ratelimit"
	"homeledger/internal/middleware/security"
	"homeledger/internal/middleware/trace"
	"homeledger/internal/services"
)

// HealthChecker reports whether the store answers.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the API server. Metrics and Logger may be nil.
type Deps struct {
	Ledger    *services.LedgerService
	Health    HealthChecker
	Metrics   *metrics.Metrics
	Logger    *applog.Logger
	RateLimit ratelimit.Config
}

type Server struct {
	http.Server
	ledger    *services.LedgerService
	sessions  SessionResolver
	health    HealthChecker
	metrics   *metrics.Metrics
	logger    *applog.Logger
	limiter   *ratelimit.Limiter
	clientIPs *security.ClientIPResolver
	startedAt time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.FromContext(context.Background()).WithComponent(applog.ComponentHTTP)
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		ledger:    deps.Ledger,
		sessions:  deps.Ledger,
		health:    deps.Health,
		metrics:   deps.Metrics,
		logger:    logger,
		limiter:   ratelimit.NewLimiter(deps.RateLimit),
		clientIPs: security.NewClientIPResolver(),
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	s.routes(mux)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(logger, s.clientIPs.ClientIP, deps.Metrics)
	limit := s.limiter.Middleware(s.clientIPs.ClientIP, s.onRateLimited)

	s.Handler = headers.Middleware(tracer.Middleware(limit(mux)))
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("POST /api/users", s.handleCreateUser)
	mux.HandleFunc("PATCH /api/users/me", requireUser(s.handleRenameUser))
	mux.HandleFunc("GET /api/households", requireUser(s.handleListHouseholds))
	mux.HandleFunc("POST /api/households", requireUser(s.handleOnboard))

	mux.HandleFunc("GET /api/household", s.requireSession(s.handleHousehold))
	mux.HandleFunc("GET /api/household/members", s.requireSession(s.handleListMembers))
	mux.HandleFunc("POST /api/household/members", s.requireSession(s.handleAddMember))

	mux.HandleFunc("GET /api/categories", s.requireSession(s.handleListCategories))
	mux.HandleFunc("POST /api/categories", s.requireSession(s.handleCreateCategory))
	mux.HandleFunc("DELETE /api/categories/{id}", s.requireSession(s.handleDeleteCategory))

	mux.HandleFunc("GET /api/goals", s.requireSession(s.handleListGoals))
	mux.HandleFunc("POST /api/goals", s.requireSession(s.handleCreateGoal))
	mux.HandleFunc("DELETE /api/goals/{id}", s.requireSession(s.handleDeleteGoal))
	mux.HandleFunc("POST /api/goals/{id}/contributions", s.requireSession(s.handleContribute))

	mux.HandleFunc("GET /api/bills", s.requireSession(s.handleListBills))
	mux.HandleFunc("GET /api/bills/upcoming", s.requireSession(s.handleUpcomingBills))
	mux.HandleFunc("POST /api/bills", s.requireSession(s.handleCreateBill))
	mux.HandleFunc("DELETE /api/bills/{id}", s.requireSession(s.handleDeleteBill))
	mux.HandleFunc("POST /api/bills/{id}/settle", s.requireSession(s.handleSettleBill))

	mux.HandleFunc("POST /api/payments", s.requireSession(s.handleRecordPayment))
	mux.HandleFunc("GET /api/settlements", s.requireSession(s.handleListSettlements))

	mux.HandleFunc("GET /api/transactions", s.requireSession(s.handleRecentTransactions))
	mux.HandleFunc("GET /api/spending", s.requireSession(s.handleSpending))
	mux.HandleFunc("GET /api/spending/me", s.requireSession(s.handleMySpending))
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.ObserveRateLimited()
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.clientIPs.ClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
