package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"shortener/pkg/logging"
	"shortener/pkg/service"
)

type errorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string, details ...string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code, Details: details})
}

// writeServiceError maps a service error to its HTTP form. Unclassified
// errors are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", ve.Error())
	case errors.Is(err, service.ErrInvalidKeyFormat):
		writeError(w, http.StatusBadRequest, "INVALID_KEY_FORMAT", err.Error())
	case errors.Is(err, service.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, "INVALID_URL", err.Error())
	case errors.Is(err, service.ErrKeyAlreadyTaken):
		writeError(w, http.StatusConflict, "KEY_TAKEN", err.Error())
	case service.IsLinkUnavailable(err), errors.Is(err, service.ErrAccessDenied):
		// Other owners' links are indistinguishable from missing ones.
		writeError(w, http.StatusNotFound, "NOT_FOUND", "link not found or expired")
	case errors.Is(err, service.ErrOwnerRequired):
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
	case errors.Is(err, service.ErrKeySpaceExhausted):
		logger.Error(r.Context(), "key allocation failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "KEY_SPACE_EXHAUSTED", "could not allocate a short key, please retry later")
	default:
		logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
