// Package handlers provides the HTTP request handlers of the medical data
// service: the reference data listings, the keyed lookups, the composite
// disease view and the health report.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/medpricing/medical-data-service/data"
	"github.com/medpricing/medical-data-service/logging"
	"github.com/medpricing/medical-data-service/resolver"
	"github.com/medpricing/medical-data-service/validation"
)

// ErrorResponse is the body of every error answer
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// RespondWithJSON writes payload as a JSON response
func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		logging.Warn("Failed to write response", "error", err)
	}
}

// RespondWithError writes a JSON error response
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
}

// respondWithStoreError maps a lookup failure to its HTTP answer
func respondWithStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *validation.ValidationError
	switch {
	case errors.As(err, &validationErr):
		RespondWithError(w, http.StatusBadRequest, validationErr.Error())

	case errors.Is(err, resolver.ErrNotFound):
		RespondWithError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, data.ErrStoreUnavailable):
		logging.Warn("Record store unavailable",
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		RespondWithError(w, http.StatusServiceUnavailable, "Reference data is not available yet")

	default:
		logging.Error("Request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
