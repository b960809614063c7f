package httpapi

import (
	"encoding/json"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/alpenhaus/alpenhaus/internal/service/house"
)

// pathID parses the {id} URL parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) postHouse(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	var req postHouseRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	h, err := s.houseSvc.Create(r.Context(), userID(r), house.CreateInput{
		Name:                  req.Name,
		Currency:              req.Currency,
		GuestNightlyRateMinor: req.GuestNightlyRateMinor,
	})
	if err != nil {
		serviceError(s, w, err)
		return
	}
	toJSON(w, http.StatusCreated, toHouseResponse(h))
}

func (s *Server) listHouses(w http.ResponseWriter, r *http.Request) {
	houses, err := s.houseSvc.List(r.Context(), userID(r))
	if err != nil {
		serviceError(s, w, err)
		return
	}
	out := make([]houseResponse, 0, len(houses))
	for _, h := range houses {
		out = append(out, toHouseResponse(h))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	houseID, ok := pathID(w, r)
	if !ok {
		return
	}
	members, err := s.houseSvc.Members(r.Context(), userID(r), houseID)
	if err != nil {
		serviceError(s, w, err)
		return
	}
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberResponse(m))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) postInvite(w http.ResponseWriter, r *http.Request) {
	houseID, ok := pathID(w, r)
	if !ok {
		return
	}
	if !requireJSON(w, r) {
		return
	}
	var req inviteRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	m, err := s.houseSvc.Invite(r.Context(), userID(r), houseID, req.Email)
	if err != nil {
		serviceError(s, w, err)
		return
	}
	toJSON(w, http.StatusCreated, toMembershipResponse(m))
}

func (s *Server) acceptInvite(w http.ResponseWriter, r *http.Request) {
	houseID, ok := pathID(w, r)
	if !ok {
		return
	}
	m, err := s.houseSvc.Accept(r.Context(), userID(r), houseID)
	if err != nil {
		serviceError(s, w, err)
		return
	}
	toJSON(w, http.StatusOK, toMembershipResponse(m))
}
