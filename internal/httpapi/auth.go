package httpapi

import (
	"encoding/json"
	"net/http"
)

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	var req registerRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	u, err := s.authSvc.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		serviceError(s, w, err)
		return
	}
	toJSON(w, http.StatusCreated, toUserResponse(u))
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	var req loginRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	u, token, err := s.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		serviceError(s, w, err)
		return
	}
	toJSON(w, http.StatusOK, loginResponse{Token: token, User: toUserResponse(u)})
}
