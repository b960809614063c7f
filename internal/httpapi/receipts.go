package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/alpenhaus/alpenhaus/internal/receipt"
)

// uploadReceipt accepts a multipart form with a single "file" part and
// attaches it to the expense. Oversized uploads are rejected before the
// body is fully read.
func (s *Server) uploadReceipt(w http.ResponseWriter, r *http.Request) {
	expenseID, ok := pathID(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, receipt.MaxSize+1024)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErr(w, http.StatusRequestEntityTooLarge, "receipt exceeds the size limit", "too_large")
			return
		}
		badRequest(w, "multipart form with a 'file' part is required")
		return
	}
	defer file.Close()

	object, err := s.expenseSvc.AttachReceipt(r.Context(), userID(r), expenseID, header.Header.Get("Content-Type"), file)
	if err != nil {
		serviceError(s, w, err)
		return
	}
	toJSON(w, http.StatusCreated, map[string]string{"receipt": object})
}

func (s *Server) downloadReceipt(w http.ResponseWriter, r *http.Request) {
	expenseID, ok := pathID(w, r)
	if !ok {
		return
	}
	rc, contentType, err := s.expenseSvc.OpenReceipt(r.Context(), userID(r), expenseID)
	if err != nil {
		serviceError(s, w, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.log.Warn("receipt stream interrupted", "expense_id", expenseID, "err", err)
	}
}

func (s *Server) deleteReceipt(w http.ResponseWriter, r *http.Request) {
	expenseID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.expenseSvc.RemoveReceipt(r.Context(), userID(r), expenseID); err != nil {
		serviceError(s, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
