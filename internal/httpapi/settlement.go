package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

func (s *Server) settleSplit(w http.ResponseWriter, r *http.Request) {
	splitID, ok := pathID(w, r)
	if !ok {
		return
	}
	sp, err := s.expenseSvc.Settle(r.Context(), userID(r), splitID)
	if err != nil {
		serviceError(s, w, err)
		return
	}
	toJSON(w, http.StatusOK, toSplitResponse(sp))
}

func (s *Server) unsettleSplit(w http.ResponseWriter, r *http.Request) {
	splitID, ok := pathID(w, r)
	if !ok {
		return
	}
	sp, err := s.expenseSvc.Unsettle(r.Context(), userID(r), splitID)
	if err != nil {
		serviceError(s, w, err)
		return
	}
	toJSON(w, http.StatusOK, toSplitResponse(sp))
}

func (s *Server) settleAll(w http.ResponseWriter, r *http.Request) {
	houseID, ok := pathID(w, r)
	if !ok {
		return
	}
	if !requireJSON(w, r) {
		return
	}
	var req settleAllRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if req.CounterpartyID == uuid.Nil {
		badRequest(w, "counterparty_id is required")
		return
	}
	n, err := s.expenseSvc.SettleAllWith(r.Context(), userID(r), houseID, req.CounterpartyID)
	if err != nil {
		serviceError(s, w, err)
		return
	}
	toJSON(w, http.StatusOK, settleAllResponse{Settled: n})
}

func (s *Server) getBalances(w http.ResponseWriter, r *http.Request) {
	houseID, ok := pathID(w, r)
	if !ok {
		return
	}
	balances, summary, err := s.expenseSvc.Balances(r.Context(), userID(r), houseID)
	if err != nil {
		serviceError(s, w, err)
		return
	}
	toJSON(w, http.StatusOK, toBalancesResponse(balances, summary))
}
