package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(r.Context(), nil).Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, r, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError maps the domain error kinds onto HTTP statuses. Anything
// unclassified is a persistence or infrastructure failure and its details are
// only logged.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var code string

	switch {
	case errors.Is(err, domain.ErrValidation):
		status, code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrGateway):
		status, code = http.StatusBadRequest, "payment_verification_failed"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrDuplicate):
		status, code = http.StatusConflict, "already_exists"
	case errors.Is(err, domain.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	default:
		logger.FromContext(r.Context(), nil).Error("request failed", zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	respondError(w, r, status, code, err.Error())
}

func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
