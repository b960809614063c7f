package httpapi

import chi "github.com/go-chi/chi/v5"

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes() {
	// Auth (unauthenticated)
	s.rt.Post("/v1/auth/register", s.register)
	s.rt.Post("/v1/auth/login", s.login)

	// Everything below requires a valid bearer token.
	s.rt.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		// Houses
		r.Post("/v1/houses", s.postHouse)
		r.Get("/v1/houses", s.listHouses)
		r.Get("/v1/houses/{id}/members", s.listMembers)
		r.Post("/v1/houses/{id}/invites", s.postInvite)
		r.Post("/v1/houses/{id}/invites/accept", s.acceptInvite)

		// Expenses
		r.With(s.validatePostExpense()).Post("/v1/expenses", s.postExpense)
		r.With(s.validateListExpenses()).Get("/v1/expenses", s.listExpenses)
		r.Get("/v1/expenses/{id}", s.getExpense)
		r.With(s.validateUpdateExpense()).Patch("/v1/expenses/{id}", s.updateExpense)
		r.Delete("/v1/expenses/{id}", s.deleteExpense)

		// Receipts
		r.Post("/v1/expenses/{id}/receipt", s.uploadReceipt)
		r.Get("/v1/expenses/{id}/receipt", s.downloadReceipt)
		r.Delete("/v1/expenses/{id}/receipt", s.deleteReceipt)

		// Settlement
		r.Post("/v1/splits/{id}/settle", s.settleSplit)
		r.Post("/v1/splits/{id}/unsettle", s.unsettleSplit)
		r.Post("/v1/houses/{id}/settle-all", s.settleAll)

		// Balances
		r.Get("/v1/houses/{id}/balances", s.getBalances)

		// Stays
		r.With(s.validateStayInput()).Post("/v1/stays", s.postStay)
		r.Get("/v1/stays", s.listStays)
		r.With(s.validateStayInput()).Patch("/v1/stays/{id}", s.updateStay)
		r.Delete("/v1/stays/{id}", s.deleteStay)
	})

	// Health and metrics (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Handle("/metrics", metricsHandler())
}
