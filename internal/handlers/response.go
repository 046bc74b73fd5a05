package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/older-wiser/apiserver/internal/store"
)

// Response is the stable envelope every endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Response{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Message: message})
}

// writeValidationError reports a 400 with per-field detail. ozzo's
// validation.Errors marshals as a field→message object.
func writeValidationError(w http.ResponseWriter, err error) {
	var fields validation.Errors
	if errors.As(err, &fields) {
		writeJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Message: "Validation Error",
			Errors:  fields,
		})
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// writeStoreError translates repository failures. Unexpected errors are
// logged with request context and surfaced as a generic message.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "Email already registered")
	default:
		logUpstream(r, err)
		writeError(w, http.StatusInternalServerError, "Server Error")
	}
}

func logUpstream(r *http.Request, err error) {
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"error", err,
	}
	if principal, ok := principalFromContext(r.Context()); ok {
		attrs = append(attrs, "principalId", principal.ID)
	}
	slog.Error("upstream failure", attrs...)
}

// Healthz reports process liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, "ok", nil)
}
