package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/apperr"
)

// MaxBodyBytes caps request bodies read by ValidateBody.
const MaxBodyBytes = 64 << 10

// BodyValidator checks a raw JSON body against a named schema.
type BodyValidator interface {
	Validate(name string, body []byte) error
}

// ValidateBody rejects bodies that do not match the named JSON schema before the handler runs.
// It reads the body, then replaces r.Body so downstream handlers can re-read it.
func ValidateBody(v BodyValidator, schema string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
			r.Body.Close()
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, apperr.CodeInvalidRequest, "request body too large")
					return
				}
				writeError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "failed to read body")
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			if err := v.Validate(schema, bodyBytes); err != nil {
				var ae *apperr.Error
				if errors.As(err, &ae) {
					writeError(w, http.StatusBadRequest, ae.Code, ae.Message)
					return
				}
				writeError(w, http.StatusInternalServerError, "internal", "request validation unavailable")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
