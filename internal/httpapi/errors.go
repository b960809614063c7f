package httpapi

import (
	"errors"
	"net/http"

	"github.com/alpenhaus/alpenhaus/internal/errs"
	"github.com/alpenhaus/alpenhaus/internal/receipt"
	"github.com/alpenhaus/alpenhaus/internal/service/auth"
	"github.com/alpenhaus/alpenhaus/internal/service/expense"
	"github.com/alpenhaus/alpenhaus/internal/service/house"
	"github.com/alpenhaus/alpenhaus/internal/service/stay"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) { writeErr(w, http.StatusBadRequest, msg, "") }
func unauthorized(w http.ResponseWriter) {
	writeErr(w, http.StatusUnauthorized, "Not authenticated", "unauthenticated")
}

// serviceError maps service and storage errors onto HTTP statuses with a
// stable machine-readable code. Unknown errors become an opaque 500.
func serviceError(s *Server, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not found", "not_found")
	case errors.Is(err, expense.ErrNotCreator),
		errors.Is(err, expense.ErrNotDeletable),
		errors.Is(err, expense.ErrNotPayer),
		errors.Is(err, stay.ErrNotBooker),
		errors.Is(err, house.ErrNotAdmin):
		writeErr(w, http.StatusForbidden, err.Error(), "forbidden")
	case errors.Is(err, expense.ErrNotMember), errors.Is(err, errs.ErrForbidden):
		writeErr(w, http.StatusForbidden, err.Error(), "forbidden")
	case errors.Is(err, auth.ErrEmailTaken), errors.Is(err, house.ErrAlreadyMember), errors.Is(err, errs.ErrConflict):
		writeErr(w, http.StatusConflict, err.Error(), "conflict")
	case errors.Is(err, auth.ErrBadCredentials):
		writeErr(w, http.StatusUnauthorized, err.Error(), "bad_credentials")
	case errors.Is(err, errs.ErrUnauthenticated):
		unauthorized(w)
	case errors.Is(err, receipt.ErrUnsupportedType):
		writeErr(w, http.StatusUnsupportedMediaType, err.Error(), "unsupported_media_type")
	case errors.Is(err, stay.ErrNoAdmin), errors.Is(err, expense.ErrNoSplits), errors.Is(err, errs.ErrUnprocessable):
		writeErr(w, http.StatusUnprocessableEntity, err.Error(), "unprocessable")
	case errors.Is(err, house.ErrNoInvite), errors.Is(err, errs.ErrInvalid):
		writeErr(w, http.StatusBadRequest, err.Error(), "invalid")
	default:
		s.log.Error("internal error", "err", err)
		writeErr(w, http.StatusInternalServerError, "internal error", "internal")
	}
}
