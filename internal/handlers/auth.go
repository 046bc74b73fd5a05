package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/older-wiser/apiserver/internal/auth"
	"github.com/older-wiser/apiserver/internal/services"
	"github.com/older-wiser/apiserver/internal/store"
	"github.com/older-wiser/apiserver/types"
)

// AuthHandler provides registration, login, and profile endpoints.
type AuthHandler struct {
	users        *services.UserService
	tokens       *auth.TokenService
	captcha      *services.CaptchaService
	uploads      *services.UploadService
	avatarPolicy services.UploadPolicy
}

func NewAuthHandler(
	users *services.UserService,
	tokens *auth.TokenService,
	captcha *services.CaptchaService,
	uploads *services.UploadService,
	avatarPolicy services.UploadPolicy,
) *AuthHandler {
	return &AuthHandler{
		users:        users,
		tokens:       tokens,
		captcha:      captcha,
		uploads:      uploads,
		avatarPolicy: avatarPolicy,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler, mw *AuthMiddleware) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.With(mw.RequireAuth).Get("/me", handler.Me)
	r.With(mw.RequireAuth).Post("/update-profile", handler.UpdateProfile)
	r.With(mw.RequireAuth).Post("/update-settings", handler.UpdateSettings)
}

type RegisterRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Phone        string `json:"phone"`
	CaptchaToken string `json:"captchaToken"`
}

func (req RegisterRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Name, validation.Required),
		validation.Field(&req.Email, validation.Required, is.Email),
		validation.Field(&req.Password, validation.Required, validation.Length(6, 0)),
	)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token alongside the account.
type LoginResponse struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

// Register creates a new account. Duplicate emails are decided by the
// store's uniqueness constraint, not an application-level pre-check.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	if h.captcha.Enabled() {
		passed, err := h.captcha.Verify(r.Context(), req.CaptchaToken)
		if err != nil {
			logUpstream(r, err)
			writeError(w, http.StatusInternalServerError, "Server Error")
			return
		}
		if !passed {
			writeError(w, http.StatusBadRequest, "Invalid captcha")
			return
		}
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		logUpstream(r, err)
		writeError(w, http.StatusInternalServerError, "Server Error")
		return
	}

	user, err := h.users.Register(r.Context(), types.User{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: hashed,
	})
	if err != nil {
		writeStoreError(w, r, err, "User not found")
		return
	}

	writeSuccess(w, http.StatusCreated, "Registration successful", user)
}

// Login verifies credentials and issues a token. Unknown email and wrong
// password share one message so the response does not reveal which
// failed.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		logUpstream(r, err)
		writeError(w, http.StatusInternalServerError, "Server Error")
		return
	}

	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		logUpstream(r, err)
		writeError(w, http.StatusInternalServerError, "Server Error")
		return
	}

	writeSuccess(w, http.StatusOK, "Login successful", LoginResponse{User: user, Token: token})
}

// Me returns the authenticated user's account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token, authorization denied")
		return
	}

	user, err := h.users.GetByID(r.Context(), principal.ID)
	if err != nil {
		writeStoreError(w, r, err, "User not found")
		return
	}

	writeSuccess(w, http.StatusOK, "Profile retrieved successfully", user)
}

// UpdateProfile updates name/phone and optionally replaces the avatar via
// a multipart upload.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token, authorization denied")
		return
	}

	if err := r.ParseMultipartForm(h.avatarPolicy.MaxBytes + 1<<20); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	user, err := h.users.GetByID(r.Context(), principal.ID)
	if err != nil {
		writeStoreError(w, r, err, "User not found")
		return
	}

	if name := strings.TrimSpace(r.FormValue("name")); name != "" {
		user.Name = name
	}
	if phone := strings.TrimSpace(r.FormValue("phone")); phone != "" {
		user.Phone = phone
	}

	if files := r.MultipartForm.File["avatar"]; len(files) > 0 {
		key, err := h.uploads.Save(r.Context(), h.avatarPolicy, files[0])
		if err != nil {
			writeUploadError(w, r, err)
			return
		}
		if user.Avatar != "" {
			// Best-effort cleanup of the replaced avatar.
			_ = h.uploads.Delete(r.Context(), user.Avatar)
		}
		user.Avatar = key
	}

	updated, err := h.users.Update(r.Context(), user)
	if err != nil {
		writeStoreError(w, r, err, "User not found")
		return
	}

	writeSuccess(w, http.StatusOK, "Profile updated successfully", updated)
}

// UpdateSettings replaces the authenticated user's UI preferences.
func (h *AuthHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token, authorization denied")
		return
	}

	var settings types.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.users.GetByID(r.Context(), principal.ID)
	if err != nil {
		writeStoreError(w, r, err, "User not found")
		return
	}

	user.Settings = settings
	updated, err := h.users.Update(r.Context(), user)
	if err != nil {
		writeStoreError(w, r, err, "User not found")
		return
	}

	writeSuccess(w, http.StatusOK, "Settings updated successfully", updated)
}

func writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrUploadTooLarge):
		writeError(w, http.StatusBadRequest, "Uploaded file too large")
	case errors.Is(err, services.ErrUploadWrongType):
		writeError(w, http.StatusBadRequest, "Not an image! Please upload only images.")
	default:
		logUpstream(r, err)
		writeError(w, http.StatusInternalServerError, "Server Error")
	}
}
