// Package http serves the ledger as a JSON API with server-sent event
// streams for live collections.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"moneytracker/internal/auth"
	"moneytracker/internal/ledger"
	"moneytracker/internal/log"
	"moneytracker/internal/middleware/ratelimit"
	"moneytracker/internal/middleware/security"
	"moneytracker/internal/middleware/trace"
)

const (
	maxBodyBytes      = 1 << 20
	streamHeartbeat   = 25 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// ReadyFunc reports whether the backing store can serve requests.
type ReadyFunc func(ctx context.Context) error

type Deps struct {
	Ledger  *ledger.Store
	Auth    *auth.Service
	Logger  *log.Logger
	Limiter *ratelimit.Limiter
	Ready   ReadyFunc
}

type Server struct {
	http.Server
	ledger  *ledger.Store
	auth    *auth.Service
	logger  *log.Logger
	limiter *ratelimit.Limiter
	ready   ReadyFunc

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}

	s := &Server{
		ledger:  deps.Ledger,
		auth:    deps.Auth,
		logger:  logger.WithComponent(log.ComponentHTTP),
		limiter: limiter,
		ready:   deps.Ready,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/auth/signup", s.handleSignUp)
	mux.HandleFunc("POST /api/auth/signin", s.handleSignIn)
	mux.HandleFunc("POST /api/auth/google", s.handleGoogle)

	mux.Handle("GET /api/budgets", s.authed(s.handleListBudgets))
	mux.Handle("POST /api/budgets", s.authed(s.handleCreateBudget))
	mux.Handle("POST /api/budgets/recompute", s.authed(s.handleRecompute))
	mux.Handle("PUT /api/budgets/{id}", s.authed(s.handleUpdateBudget))
	mux.Handle("DELETE /api/budgets/{id}", s.authed(s.handleDeleteBudget))
	mux.Handle("GET /api/budgets/stream", s.authed(stream(s, s.ledger.SubscribeBudgets)))

	mux.Handle("GET /api/expenses", s.authed(s.handleListExpenses))
	mux.Handle("POST /api/expenses", s.authed(s.handleCreateExpense))
	mux.Handle("PUT /api/expenses/{id}", s.authed(s.handleUpdateExpense))
	mux.Handle("DELETE /api/expenses/{id}", s.authed(s.handleDeleteExpense))
	mux.Handle("GET /api/expenses/stream", s.authed(stream(s, s.ledger.SubscribeExpenses)))

	mux.Handle("GET /api/incomes", s.authed(s.handleListIncomes))
	mux.Handle("POST /api/incomes", s.authed(s.handleCreateIncome))
	mux.Handle("PUT /api/incomes/{id}", s.authed(s.handleUpdateIncome))
	mux.Handle("DELETE /api/incomes/{id}", s.authed(s.handleDeleteIncome))
	mux.Handle("GET /api/incomes/stream", s.authed(stream(s, s.ledger.SubscribeIncomes)))

	mux.Handle("GET /api/goals", s.authed(s.handleListGoals))
	mux.Handle("POST /api/goals", s.authed(s.handleCreateGoal))
	mux.Handle("PUT /api/goals/{id}", s.authed(s.handleUpdateGoal))
	mux.Handle("DELETE /api/goals/{id}", s.authed(s.handleDeleteGoal))
	mux.Handle("POST /api/goals/{id}/funds", s.authed(s.handleAddFunds))
	mux.Handle("GET /api/goals/stream", s.authed(stream(s, s.ledger.SubscribeGoals)))

	ips := security.NewIPResolver()
	tracer := trace.NewMiddleware(s.logger, ips.ClientIP)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := limiter.Middleware(ips.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, ips.ClientIP(r),
			log.FieldPath, r.URL.Path)
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
	})

	var handler http.Handler = mux
	handler = limit(handler)
	handler = headers.Middleware(handler)
	handler = log.Middleware(s.logger, trace.FromRequest)(handler)
	handler = tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Shutdown stops the limiter and drains the HTTP server once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// authed resolves the bearer token into the request's user.
func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
			return
		}
		userID, err := s.auth.Tokens().Parse(token)
		if err != nil {
			log.FromContext(r.Context()).DebugContext(r.Context(), "Rejected bearer token", log.FieldError, err)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid token"})
			return
		}
		next(w, r.WithContext(auth.WithUser(r.Context(), userID)))
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
