package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/apperr"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/auth"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/middleware"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the apperr kinds to HTTP statuses. Anything unclassified is logged and
// reported as a 500 without its details.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		log.Error("unhandled error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
		return
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrInsufficientBalance):
		status = http.StatusPaymentRequired
	case errors.Is(err, apperr.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed", "code", ae.Code, "error", err)
		writeJSON(w, status, errorBody{Error: ae.Code, Message: "internal error"})
		return
	}
	writeJSON(w, status, errorBody{Error: ae.Code, Message: ae.Message})
}

// decode reads a JSON body. An empty body leaves v untouched.
func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation(apperr.CodeInvalidRequest, "invalid JSON body")
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation(apperr.CodeInvalidRequest, "invalid id")
	}
	return id, nil
}

func caller(r *http.Request) (auth.Identity, bool) {
	return middleware.IdentityFromCtx(r.Context())
}

func unauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "authentication required"})
}

// Health handles GET /api/health.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
