package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/older-wiser/apiserver/internal/services"
	"github.com/older-wiser/apiserver/internal/store"
	"github.com/older-wiser/apiserver/types"
)

// AdminHandler serves curated-catalog maintenance, user administration,
// and the dashboard.
type AdminHandler struct {
	activities  *services.ActivityService
	users       *services.UserService
	uploads     *services.UploadService
	imagePolicy services.UploadPolicy
}

func NewAdminHandler(activities *services.ActivityService, users *services.UserService, uploads *services.UploadService, imagePolicy services.UploadPolicy) *AdminHandler {
	return &AdminHandler{
		activities:  activities,
		users:       users,
		uploads:     uploads,
		imagePolicy: imagePolicy,
	}
}

// AdminRouter registers admin routes. Every route requires an
// authenticated principal with the admin role.
func AdminRouter(r chi.Router, handler *AdminHandler, mw *AuthMiddleware) {
	r.Use(mw.RequireAuth, mw.RequireRole(types.RoleAdmin))

	r.Get("/activities", handler.ListActivities)
	r.Post("/activities", handler.CreateActivity)
	r.Put("/activities/{activityID}", handler.UpdateActivity)
	r.Delete("/activities/{activityID}", handler.DeleteActivity)
	r.Post("/activities/{activityID}/image", handler.UploadActivityImage)

	r.Get("/users", handler.ListUsers)
	r.Put("/users/{userID}", handler.UpdateUser)
	r.Get("/dashboard/stats", handler.DashboardStats)
}

// ListActivities returns the whole catalog, curated and user-created.
func (h *AdminHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := h.activities.List(r.Context(), store.ActivityFilter{})
	if err != nil {
		logUpstream(r, err)
		writeError(w, http.StatusInternalServerError, "Failed to get activities")
		return
	}
	writeSuccess(w, http.StatusOK, "Activities retrieved successfully", activities)
}

// CreateActivity adds a curated entry.
func (h *AdminHandler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	input, err := decodeActivityInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := input.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	created, err := h.activities.CreateCurated(r.Context(), input.activity())
	if err != nil {
		logUpstream(r, err)
		writeError(w, http.StatusInternalServerError, "Failed to create activity")
		return
	}
	writeSuccess(w, http.StatusCreated, "Activity created successfully", created)
}

// UpdateActivity applies a partial update to any entry. Provenance stays
// immutable even for admins.
func (h *AdminHandler) UpdateActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := parseActivityID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Activity not found")
		return
	}

	activity, err := h.activities.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err, "Activity not found")
		return
	}

	var req ActivityUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.immutableViolations(activity); err != nil {
		writeValidationError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	updated, err := h.activities.Update(r.Context(), activity, req.update())
	if err != nil {
		writeStoreError(w, r, err, "Activity not found")
		return
	}
	writeSuccess(w, http.StatusOK, "Activity updated successfully", updated)
}

// DeleteActivity hard-deletes any entry.
func (h *AdminHandler) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := parseActivityID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Activity not found")
		return
	}

	if err := h.activities.Delete(r.Context(), id); err != nil {
		writeStoreError(w, r, err, "Activity not found")
		return
	}
	writeSuccess(w, http.StatusOK, "Activity deleted successfully", nil)
}

// UploadActivityImage stores an image and associates it with the entry.
func (h *AdminHandler) UploadActivityImage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseActivityID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Activity not found")
		return
	}

	if _, err := h.activities.Get(r.Context(), id); err != nil {
		writeStoreError(w, r, err, "Activity not found")
		return
	}

	if err := r.ParseMultipartForm(h.imagePolicy.MaxBytes + 1<<20); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	files := r.MultipartForm.File["image"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "Image file is required")
		return
	}

	key, err := h.uploads.Save(r.Context(), h.imagePolicy, files[0])
	if err != nil {
		writeUploadError(w, r, err)
		return
	}

	updated, err := h.activities.AttachImage(r.Context(), id, key)
	if err != nil {
		writeStoreError(w, r, err, "Activity not found")
		return
	}
	writeSuccess(w, http.StatusOK, "Image uploaded successfully", updated)
}

// ListUsers returns all accounts, newest first. Password hashes never
// serialize.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		logUpstream(r, err)
		writeError(w, http.StatusInternalServerError, "Failed to get users")
		return
	}
	writeSuccess(w, http.StatusOK, "Users retrieved successfully", users)
}

// UserUpdateRequest lists the account fields an admin may change.
// Credentials are not among them.
type UserUpdateRequest struct {
	Name                *string           `json:"name"`
	Phone               *string           `json:"phone"`
	Role                *types.Role       `json:"role"`
	MembershipLevel     *types.Membership `json:"membershipLevel"`
	MembershipExpiresAt *time.Time        `json:"membershipExpiresAt"`
	Settings            *types.Settings   `json:"settings"`
}

func (req UserUpdateRequest) Validate() error {
	fields := validation.Errors{}
	if req.Name != nil && *req.Name == "" {
		fields["name"] = errors.New("cannot be blank")
	}
	if req.Role != nil && !req.Role.Valid() {
		fields["role"] = errors.New("must be a valid role")
	}
	if req.MembershipLevel != nil && !req.MembershipLevel.Valid() {
		fields["membershipLevel"] = errors.New("must be a valid membership level")
	}
	if len(fields) > 0 {
		return fields
	}
	return nil
}

// UpdateUser lets an admin change profile, role, and membership fields.
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "userID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	var req UserUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err, "User not found")
		return
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.MembershipLevel != nil {
		user.MembershipLevel = *req.MembershipLevel
	}
	if req.MembershipExpiresAt != nil {
		user.MembershipExpiresAt = req.MembershipExpiresAt
	}
	if req.Settings != nil {
		user.Settings = *req.Settings
	}

	updated, err := h.users.Update(r.Context(), user)
	if err != nil {
		writeStoreError(w, r, err, "User not found")
		return
	}
	writeSuccess(w, http.StatusOK, "User updated successfully", updated)
}

// DashboardStats summarizes the catalog for the admin dashboard.
type DashboardStats struct {
	TotalUsers      int `json:"totalUsers"`
	TotalActivities int `json:"totalActivities"`
	PremiumUsers    int `json:"premiumUsers"`
	GoldUsers       int `json:"goldUsers"`
}

func (h *AdminHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var stats DashboardStats
	var err error

	if stats.TotalUsers, err = h.users.Count(ctx); err != nil {
		logUpstream(r, err)
		writeError(w, http.StatusInternalServerError, "Failed to get dashboard statistics")
		return
	}
	if stats.TotalActivities, err = h.activities.Count(ctx); err != nil {
		logUpstream(r, err)
		writeError(w, http.StatusInternalServerError, "Failed to get dashboard statistics")
		return
	}
	if stats.PremiumUsers, err = h.users.CountByMembership(ctx, types.MembershipPremium); err != nil {
		logUpstream(r, err)
		writeError(w, http.StatusInternalServerError, "Failed to get dashboard statistics")
		return
	}
	if stats.GoldUsers, err = h.users.CountByMembership(ctx, types.MembershipGold); err != nil {
		logUpstream(r, err)
		writeError(w, http.StatusInternalServerError, "Failed to get dashboard statistics")
		return
	}

	writeSuccess(w, http.StatusOK, "Dashboard statistics retrieved successfully", stats)
}
