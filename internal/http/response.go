package http

import (
	"encoding/json"
	"net/http"

	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/rs/zerolog"
)

// Response is the envelope of every JSON body the service writes.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}

func respondOK(w http.ResponseWriter, r *http.Request, message string, data interface{}) {
	respondJSON(w, r, http.StatusOK, Response{Success: true, Message: message, Data: data})
}

func respondMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, r, status, Response{Success: false, Message: message})
}

// respondError writes err with the status of its code. Internal errors are
// logged and reach the client only as a generic message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCode(err)
	status := statusFor(code)

	event := zerolog.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		event = zerolog.Ctx(r.Context()).Error()
	}
	event.Err(err).Str("op", domain.ErrorOp(err)).Str("code", code).Int("status", status).Msg("request failed")

	respondMessage(w, r, status, domain.ErrorMessage(err))
}

func statusFor(code string) int {
	switch code {
	case domain.EINVALID, domain.ECONFLICT:
		return http.StatusBadRequest
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized
	case domain.EFORBIDDEN:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
