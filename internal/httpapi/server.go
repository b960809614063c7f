// Package httpapi wires the HTTP surface of the service.
// It keeps handlers thin, delegating business rules to the service layer.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/alpenhaus/alpenhaus/internal/service/auth"
	"github.com/alpenhaus/alpenhaus/internal/service/expense"
	"github.com/alpenhaus/alpenhaus/internal/service/house"
	"github.com/alpenhaus/alpenhaus/internal/service/stay"
)

// ReadyChecker is implemented by stores that can report readiness.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// Server wires handlers and middleware using Chi.
// It composes read (repo) and write (writer) dependencies through services.
type Server struct {
	authSvc    auth.Service
	houseSvc   house.Service
	expenseSvc expense.Service
	staySvc    stay.Service
	tokens     *auth.JWTManager
	ready      []ReadyChecker
	log        *slog.Logger
	rt         *chi.Mux
}

// Deps carries everything the server needs. Services are constructed by the
// caller so storage and optional collaborators stay out of this package.
type Deps struct {
	Auth    auth.Service
	Houses  house.Service
	Expense expense.Service
	Stays   stay.Service
	Tokens  *auth.JWTManager
	// Ready lists backends readyz should probe: the store, the cache.
	Ready []ReadyChecker
}

// New constructs the HTTP server with routes and middleware.
// The logger is used by basic request/response logging and panic recovery.
func New(deps Deps, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)

	s := &Server{
		authSvc:    deps.Auth,
		houseSvc:   deps.Houses,
		expenseSvc: deps.Expense,
		staySvc:    deps.Stays,
		tokens:     deps.Tokens,
		ready:      deps.Ready,
		rt:         r,
		log:        logger,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }
