package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"spendly/internal/auth"
	"spendly/internal/log"
	"spendly/internal/middleware/ratelimit"
	"spendly/internal/middleware/security"
	"spendly/internal/middleware/trace"
	"spendly/internal/services"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the services the API exposes.
type Dependencies struct {
	Store    Pinger
	Expenses *services.ExpenseService
	Stats    *services.StatsService
	Insights *services.InsightService
	Sync     *services.SyncReconciler
	Accounts *services.AccountService
	Tokens   auth.TokenParser
	Logger   *log.Logger

	// Location interprets bare dates in query parameters.
	Location           *time.Location
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	deps Dependencies

	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware
	started     time.Time

	shutdownOnce sync.Once
}

// NewServer builds the API server listening on addr. Call Shutdown to stop
// it together with its background goroutines.
func NewServer(addr string, deps Dependencies) *Server {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}

	detector := security.NewDetector()
	s := &Server{
		deps:        deps,
		detector:    detector,
		tracer:      trace.NewMiddleware(detector.ExtractClientIP),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		started:     time.Now(),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.tracer.Middleware)
	r.Use(log.Middleware(s.deps.Logger))
	r.Use(log.RequestIDMiddleware(trace.RequestIDFromRequest))
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusNotFound, "not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		MethodNotAllowedError().Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, _ *http.Request) {
				TooManyRequestsError().Write(w)
			}))

			r.Route("/auth", func(r chi.Router) {
				r.Use(log.ComponentMiddleware(log.ComponentAuth))
				r.Post("/register", s.handleRegister)
				r.Post("/login", s.handleLogin)

				r.Group(func(r chi.Router) {
					r.Use(s.requireAuth)
					r.Get("/me", s.handleMe)
					r.Put("/profile", s.handleUpdateProfile)
					r.Put("/change-password", s.handleChangePassword)
				})
			})

			r.Route("/expenses", func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Group(func(r chi.Router) {
					r.Use(log.ComponentMiddleware(log.ComponentExpense))
					r.Post("/", s.handleCreateExpense)
					r.Get("/", s.handleListExpenses)
					r.Get("/{id}", s.handleGetExpense)
					r.Put("/{id}", s.handleUpdateExpense)
					r.Delete("/{id}", s.handleDeleteExpense)
				})
				r.Route("/stats", func(r chi.Router) {
					r.Use(log.ComponentMiddleware(log.ComponentStats))
					r.Get("/daily", s.handleDailyStats)
					r.Get("/monthly", s.handleMonthlyStats)
					r.Get("/categories", s.handleCategoryStats)
					r.Get("/insights", s.handleInsights)
				})
				r.With(log.ComponentMiddleware(log.ComponentSync)).Post("/sync", s.handleSync)
			})
		})
	})

	return r
}

// requireAuth resolves the bearer token and adds the owner to the request
// logger.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	withOwner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, _ := auth.OwnerFromContext(r.Context())
		logger := log.FromContext(r.Context()).With(log.FieldOwnerID, owner)
		next.ServeHTTP(w, r.WithContext(log.NewContext(r.Context(), logger)))
	})
	return auth.Middleware(s.deps.Tokens, func(w http.ResponseWriter, _ *http.Request) {
		UnauthorizedError("unauthorized").Write(w)
	})(withOwner)
}

// ownerID returns the authenticated user. requireAuth guarantees it is set.
func ownerID(r *http.Request) string {
	id, _ := auth.OwnerFromContext(r.Context())
	return id
}

func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
