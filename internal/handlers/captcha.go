package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/older-wiser/apiserver/internal/services"
)

// CaptchaHandler exposes a standalone challenge verification endpoint so
// the frontend can validate a token before submitting a form.
type CaptchaHandler struct {
	captcha *services.CaptchaService
}

func NewCaptchaHandler(captcha *services.CaptchaService) *CaptchaHandler {
	return &CaptchaHandler{captcha: captcha}
}

func CaptchaRouter(r chi.Router, handler *CaptchaHandler) {
	r.Post("/verify", handler.Verify)
}

type captchaVerifyRequest struct {
	Token string `json:"token"`
}

func (h *CaptchaHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req captchaVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "Captcha token is required")
		return
	}

	ok, err := h.captcha.Verify(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, services.ErrCaptchaUnconfigured) {
			writeError(w, http.StatusServiceUnavailable, "Captcha verification is not configured")
			return
		}
		logUpstream(r, err)
		writeError(w, http.StatusInternalServerError, "Captcha verification failed")
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid captcha")
		return
	}
	writeSuccess(w, http.StatusOK, "Captcha verified", nil)
}
