package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/older-wiser/apiserver/config"
)

// ErrCaptchaUnconfigured is returned when no reCAPTCHA secret is set.
var ErrCaptchaUnconfigured = errors.New("captcha verification is not configured")

// CaptchaService verifies reCAPTCHA tokens against the siteverify
// endpoint. It is the only outbound HTTP dependency of the core.
type CaptchaService struct {
	secret    string
	verifyURL string
	client    *http.Client
}

func NewCaptchaService(cfg config.CaptchaConfig) *CaptchaService {
	return &CaptchaService{
		secret:    cfg.Secret,
		verifyURL: cfg.VerifyURL,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a secret is configured.
func (s *CaptchaService) Enabled() bool {
	return strings.TrimSpace(s.secret) != ""
}

// Verify returns whether the opaque captcha token passes. A transport or
// decode failure is an error distinct from a failed check.
func (s *CaptchaService) Verify(ctx context.Context, token string) (bool, error) {
	if !s.Enabled() {
		return false, ErrCaptchaUnconfigured
	}

	form := url.Values{}
	form.Set("secret", s.secret)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("captcha verify request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("captcha verify response: %w", err)
	}
	return result.Success, nil
}
