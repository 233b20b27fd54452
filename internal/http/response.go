package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"monthly-spend/internal/core"
	"monthly-spend/internal/log"
)

func respondJSON(w http.ResponseWriter, r *http.Request, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to marshal JSON response", log.FieldError, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

// statusFor maps engine errors to status codes. Partial application is
// checked first since it wraps the cause that interrupted it.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrPartialApplication):
		return http.StatusInternalServerError
	case errors.Is(err, core.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrInstrumentNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	message := err.Error()
	if code == http.StatusInternalServerError || code == http.StatusServiceUnavailable {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed", log.FieldError, err, log.FieldStatusCode, code)
		message = http.StatusText(code)
	}

	payload := map[string]any{"error": message}
	var perr *core.PartialApplicationError
	if errors.As(err, &perr) {
		payload["applied"] = perr.Applied
		payload["fixedCost"] = perr.FixedCost
		payload["total"] = perr.Total
	}
	respondJSON(w, r, code, payload)
}
