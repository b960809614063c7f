package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/alpenhaus/alpenhaus/internal/lodge"
	"github.com/alpenhaus/alpenhaus/internal/service/expense"
)

const ctxKeyPostExpense ctxKey = "validatedPostExpense"
const ctxKeyUpdateExpense ctxKey = "validatedUpdateExpense"
const ctxKeyListExpenses ctxKey = "validatedListExpenses"

// validatePostExpense decodes and sanity-checks the POST /expenses body and
// stores the service input in the request context for the handler to use.
func (s *Server) validatePostExpense() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireJSON(w, r) {
				return
			}
			var req postExpenseRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				badRequest(w, "invalid JSON: "+err.Error())
				return
			}
			if req.HouseID == uuid.Nil {
				badRequest(w, "house_id is required")
				return
			}
			in := expense.CreateInput{
				HouseID:     req.HouseID,
				Title:       req.Title,
				Description: req.Description,
				AmountMinor: req.AmountMinor,
				Category:    req.Category,
				Date:        req.Date,
				SplitMode:   req.SplitMode,
				Members:     req.Members,
				Splits:      toSplitInputs(req.Splits),
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostExpense, in)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) validateUpdateExpense() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireJSON(w, r) {
				return
			}
			var req updateExpenseRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				badRequest(w, "invalid JSON: "+err.Error())
				return
			}
			in := expense.UpdateInput{
				Title:       req.Title,
				Description: req.Description,
				AmountMinor: req.AmountMinor,
				Category:    req.Category,
				Date:        req.Date,
				SplitMode:   req.SplitMode,
				Members:     req.Members,
				Splits:      toSplitInputs(req.Splits),
			}
			ctx := context.WithValue(r.Context(), ctxKeyUpdateExpense, in)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateListExpenses parses query params for GET /expenses.
func (s *Server) validateListExpenses() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			raw := q.Get("house_id")
			if raw == "" {
				badRequest(w, "house_id is required")
				return
			}
			houseID, err := uuid.Parse(raw)
			if err != nil {
				badRequest(w, "invalid house_id")
				return
			}
			query := expense.ListQuery{HouseID: houseID}
			if c := q.Get("category"); c != "" {
				cat := lodge.Category(c)
				if !cat.Valid() {
					badRequest(w, "invalid category")
					return
				}
				query.Category = cat
			}
			if raw := q.Get("limit"); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n < 1 {
					badRequest(w, "invalid limit")
					return
				}
				query.Limit = n
			}
			if raw := q.Get("offset"); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n < 0 {
					badRequest(w, "invalid offset")
					return
				}
				query.Offset = n
			}
			ctx := context.WithValue(r.Context(), ctxKeyListExpenses, query)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func toSplitInputs(in []splitInputDTO) []expense.SplitInput {
	if len(in) == 0 {
		return nil
	}
	out := make([]expense.SplitInput, 0, len(in))
	for _, sp := range in {
		out = append(out, expense.SplitInput{UserID: sp.UserID, AmountMinor: sp.AmountMinor})
	}
	return out
}

func (s *Server) postExpense(w http.ResponseWriter, r *http.Request) {
	in := r.Context().Value(ctxKeyPostExpense).(expense.CreateInput)
	e, err := s.expenseSvc.Create(r.Context(), userID(r), in)
	if err != nil {
		serviceError(s, w, err)
		return
	}
	toJSON(w, http.StatusCreated, toExpenseResponse(e))
}

func (s *Server) listExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.Context().Value(ctxKeyListExpenses).(expense.ListQuery)
	expenses, hasMore, err := s.expenseSvc.List(r.Context(), userID(r), q)
	if err != nil {
		serviceError(s, w, err)
		return
	}
	resp := listExpensesResponse{Items: make([]expenseResponse, 0, len(expenses)), HasMore: hasMore}
	for _, e := range expenses {
		resp.Items = append(resp.Items, toExpenseResponse(e))
	}
	toJSON(w, http.StatusOK, resp)
}

func (s *Server) getExpense(w http.ResponseWriter, r *http.Request) {
	expenseID, ok := pathID(w, r)
	if !ok {
		return
	}
	e, err := s.expenseSvc.Get(r.Context(), userID(r), expenseID)
	if err != nil {
		serviceError(s, w, err)
		return
	}
	toJSON(w, http.StatusOK, toExpenseResponse(e))
}

func (s *Server) updateExpense(w http.ResponseWriter, r *http.Request) {
	expenseID, ok := pathID(w, r)
	if !ok {
		return
	}
	in := r.Context().Value(ctxKeyUpdateExpense).(expense.UpdateInput)
	e, err := s.expenseSvc.Update(r.Context(), userID(r), expenseID, in)
	if err != nil {
		serviceError(s, w, err)
		return
	}
	toJSON(w, http.StatusOK, toExpenseResponse(e))
}

func (s *Server) deleteExpense(w http.ResponseWriter, r *http.Request) {
	expenseID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.expenseSvc.Delete(r.Context(), userID(r), expenseID); err != nil {
		serviceError(s, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
