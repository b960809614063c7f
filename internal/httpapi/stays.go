package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/alpenhaus/alpenhaus/internal/service/stay"
)

const ctxKeyStayInput ctxKey = "validatedStayInput"

// validateStayInput decodes the stay body shared by create and update.
func (s *Server) validateStayInput() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireJSON(w, r) {
				return
			}
			var req stayRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				badRequest(w, "invalid JSON: "+err.Error())
				return
			}
			in := stay.Input{
				HouseID:    req.HouseID,
				CheckIn:    req.CheckIn,
				CheckOut:   req.CheckOut,
				Notes:      req.Notes,
				GuestCount: req.GuestCount,
			}
			ctx := context.WithValue(r.Context(), ctxKeyStayInput, in)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) postStay(w http.ResponseWriter, r *http.Request) {
	in := r.Context().Value(ctxKeyStayInput).(stay.Input)
	if in.HouseID == uuid.Nil {
		badRequest(w, "house_id is required")
		return
	}
	st, err := s.staySvc.Create(r.Context(), userID(r), in)
	if err != nil {
		serviceError(s, w, err)
		return
	}
	toJSON(w, http.StatusCreated, toStayResponse(st))
}

func (s *Server) listStays(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("house_id")
	if raw == "" {
		badRequest(w, "house_id is required")
		return
	}
	houseID, err := uuid.Parse(raw)
	if err != nil {
		badRequest(w, "invalid house_id")
		return
	}
	stays, err := s.staySvc.List(r.Context(), userID(r), houseID)
	if err != nil {
		serviceError(s, w, err)
		return
	}
	out := make([]stayResponse, 0, len(stays))
	for _, st := range stays {
		out = append(out, toStayResponse(st))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) updateStay(w http.ResponseWriter, r *http.Request) {
	stayID, ok := pathID(w, r)
	if !ok {
		return
	}
	in := r.Context().Value(ctxKeyStayInput).(stay.Input)
	st, err := s.staySvc.Update(r.Context(), userID(r), stayID, in)
	if err != nil {
		serviceError(s, w, err)
		return
	}
	toJSON(w, http.StatusOK, toStayResponse(st))
}

func (s *Server) deleteStay(w http.ResponseWriter, r *http.Request) {
	stayID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.staySvc.Delete(r.Context(), userID(r), stayID); err != nil {
		serviceError(s, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
