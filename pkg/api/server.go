package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/gymledger/pkg/auth"
	"github.com/platinummonkey/gymledger/pkg/catalog"
	"github.com/platinummonkey/gymledger/pkg/expenses"
	"github.com/platinummonkey/gymledger/pkg/httputil"
	"github.com/platinummonkey/gymledger/pkg/ledger"
	"github.com/platinummonkey/gymledger/pkg/middleware"
	"github.com/platinummonkey/gymledger/pkg/observability"
	"github.com/platinummonkey/gymledger/pkg/reports"
)

// DashboardService computes the month-scoped dashboard
type DashboardService interface {
	Dashboard(ctx context.Context, ownerID int64, now time.Time) (*reports.Dashboard, error)
}

// Options wires the server's collaborators
type Options struct {
	Plans         catalog.Service
	Members       ledger.Service
	Expenses      expenses.Service
	Dashboards    DashboardService
	Authenticator auth.Authenticator

	// Limiter is optional; nil disables rate limiting
	Limiter middleware.Limiter

	Metrics      *observability.Metrics
	Logger       *observability.Logger
	CORSOrigins  []string
	MaxBodyBytes int64
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a new API server with every route registered
func NewServer(opts Options) *Server {
	s := &Server{router: mux.NewRouter()}

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	// Route-scoped middleware: runs only for matched routes, so metrics see
	// the route template
	s.router.Use(observability.HTTPMetricsMiddleware(opts.Metrics))
	s.router.Use(httputil.ContentTypeMiddleware)
	s.router.Use(httputil.MaxBytesMiddleware(maxBody))
	// The IP limit runs before auth so failed credentials are throttled too
	if opts.Limiter != nil {
		limit := middleware.NewRateLimitMiddleware(opts.Limiter)
		s.router.Use(limit.ClientIPHandler)
		s.router.Use(middleware.NewAuthMiddleware(opts.Authenticator).Handler)
		s.router.Use(limit.Handler)
	} else {
		s.router.Use(middleware.NewAuthMiddleware(opts.Authenticator).Handler)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "route not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.RegisterRoutes(NewPlanHandlers(opts.Plans))
	s.RegisterRoutes(NewMemberHandlers(opts.Members))
	s.RegisterRoutes(NewPaymentHandlers(opts.Members))
	s.RegisterRoutes(NewExpenseHandlers(opts.Expenses))
	s.RegisterRoutes(NewDashboardHandlers(opts.Dashboards))

	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	// CORS sits outside the router so preflight requests never need a route
	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(opts.CORSOrigins),
	)
	s.handler = otelhttp.NewHandler(chain(s.router), "gymledger.api")

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}

// ownerOrError returns the authenticated owner or writes a 401
func ownerOrError(w http.ResponseWriter, r *http.Request) (int64, bool) {
	ownerID, ok := middleware.OwnerID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return 0, false
	}
	return ownerID, true
}
