package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/older-wiser/apiserver/internal/services"
	"github.com/older-wiser/apiserver/internal/store"
	"github.com/older-wiser/apiserver/types"
)

// ActivityHandler serves the public catalog and user-created entries.
type ActivityHandler struct {
	activities  *services.ActivityService
	uploads     *services.UploadService
	imagePolicy services.UploadPolicy
}

func NewActivityHandler(activities *services.ActivityService, uploads *services.UploadService, imagePolicy services.UploadPolicy) *ActivityHandler {
	return &ActivityHandler{
		activities:  activities,
		uploads:     uploads,
		imagePolicy: imagePolicy,
	}
}

// ActivityRouter registers catalog routes. Reads are public; user-created
// mutations require an authenticated principal and pass the ownership
// check in the handler.
func ActivityRouter(r chi.Router, handler *ActivityHandler, mw *AuthMiddleware) {
	r.Get("/", handler.ListCurated)
	r.Get("/user", handler.ListUserCreated)
	r.With(mw.RequireAuth).Post("/user", handler.CreateOwned)
	r.Route("/user/{activityID}", func(r chi.Router) {
		r.With(mw.RequireAuth).Put("/", handler.UpdateOwned)
		r.With(mw.RequireAuth).Delete("/", handler.DeleteOwned)
		r.With(mw.RequireAuth).Post("/image", handler.UploadImage)
	})
	r.Get("/{activityID}", handler.GetActivity)
}

// ListCurated returns the admin-maintained catalog.
func (h *ActivityHandler) ListCurated(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false, "")
}

// ListUserCreated returns user submissions, optionally filtered by owner
// email. The listing is deliberately public; see the product note on
// visibility.
func (h *ActivityHandler) ListUserCreated(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true, strings.TrimSpace(r.URL.Query().Get("email")))
}

func (h *ActivityHandler) list(w http.ResponseWriter, r *http.Request, userCreated bool, ownerEmail string) {
	filter := store.ActivityFilter{UserCreated: &userCreated, OwnerEmail: ownerEmail}
	activities, err := h.activities.List(r.Context(), filter)
	if err != nil {
		logUpstream(r, err)
		writeError(w, http.StatusInternalServerError, "Failed to get activities")
		return
	}
	writeSuccess(w, http.StatusOK, "Activities retrieved successfully", activities)
}

// GetActivity returns one entry. A malformed id is indistinguishable from
// an absent one: both are 404, never a server error.
func (h *ActivityHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
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
	writeSuccess(w, http.StatusOK, "Activity retrieved successfully", activity)
}

// CreateOwned creates a user submission owned by the caller. Any owner
// fields in the payload are ignored; provenance comes from the principal.
func (h *ActivityHandler) CreateOwned(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token, authorization denied")
		return
	}

	input, err := decodeActivityInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := input.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	created, err := h.activities.CreateOwned(r.Context(), input.activity(), principal.ID, principal.Email)
	if err != nil {
		logUpstream(r, err)
		writeError(w, http.StatusInternalServerError, "Failed to create activity")
		return
	}
	writeSuccess(w, http.StatusCreated, "Activity created successfully", created)
}

// UpdateOwned applies a partial update after the ownership check.
func (h *ActivityHandler) UpdateOwned(w http.ResponseWriter, r *http.Request) {
	activity, ok := h.loadForMutation(w, r)
	if !ok {
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

// DeleteOwned removes the entry after the ownership check. Repeating the
// delete yields 404, same as any other absent id.
func (h *ActivityHandler) DeleteOwned(w http.ResponseWriter, r *http.Request) {
	activity, ok := h.loadForMutation(w, r)
	if !ok {
		return
	}

	if err := h.activities.Delete(r.Context(), activity.ID); err != nil {
		writeStoreError(w, r, err, "Activity not found")
		return
	}
	writeSuccess(w, http.StatusOK, "Activity deleted successfully", nil)
}

// UploadImage stores an image and associates its key with the entry.
func (h *ActivityHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	activity, ok := h.loadForMutation(w, r)
	if !ok {
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

	updated, err := h.activities.AttachImage(r.Context(), activity.ID, key)
	if err != nil {
		writeStoreError(w, r, err, "Activity not found")
		return
	}
	writeSuccess(w, http.StatusOK, "Image uploaded successfully", updated)
}

// loadForMutation resolves the principal and target record, then runs the
// ownership predicate. 401/403/404 are written here; callers proceed only
// when ok.
func (h *ActivityHandler) loadForMutation(w http.ResponseWriter, r *http.Request) (types.Activity, bool) {
	principal, authed := principalFromContext(r.Context())
	if !authed {
		writeError(w, http.StatusUnauthorized, "No token, authorization denied")
		return types.Activity{}, false
	}

	id, ok := parseActivityID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Activity not found")
		return types.Activity{}, false
	}

	activity, err := h.activities.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err, "Activity not found")
		return types.Activity{}, false
	}

	if !canMutate(principal, activity) {
		writeError(w, http.StatusForbidden, "Access denied. Insufficient privileges.")
		return types.Activity{}, false
	}
	return activity, true
}

func parseActivityID(r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "activityID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// ActivityRequest is the create payload. A single "image" or an "images"
// list is accepted; materials and steps may arrive as JSON lists or as a
// serialized string.
type ActivityRequest struct {
	Title       string           `json:"title"`
	Image       string           `json:"image"`
	Images      []string         `json:"images"`
	Duration    string           `json:"duration"`
	Category    string           `json:"category"`
	Description string           `json:"description"`
	Difficulty  types.Difficulty `json:"difficulty"`
	Materials   json.RawMessage  `json:"materials"`
	Steps       json.RawMessage  `json:"steps"`
}

// ActivityInput is the normalized create payload.
type ActivityInput struct {
	Title       string
	Images      []string
	Duration    string
	Category    string
	Description string
	Difficulty  types.Difficulty
	Materials   []string
	Steps       []string
}

func decodeActivityInput(r *http.Request) (ActivityInput, error) {
	var req ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ActivityInput{}, err
	}

	images := req.Images
	if len(images) == 0 && strings.TrimSpace(req.Image) != "" {
		images = []string{req.Image}
	}

	return ActivityInput{
		Title:       strings.TrimSpace(req.Title),
		Images:      images,
		Duration:    strings.TrimSpace(req.Duration),
		Category:    strings.TrimSpace(req.Category),
		Description: req.Description,
		Difficulty:  req.Difficulty,
		Materials:   parseFlexibleList(req.Materials),
		Steps:       parseFlexibleList(req.Steps),
	}, nil
}

func (in ActivityInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required),
		validation.Field(&in.Images, validation.Required, validation.Length(1, 0)),
		validation.Field(&in.Duration, validation.Required),
		validation.Field(&in.Category, validation.Required),
		validation.Field(&in.Difficulty, validation.By(validDifficulty)),
	)
}

func (in ActivityInput) activity() types.Activity {
	return types.Activity{
		Title:       in.Title,
		Images:      in.Images,
		Duration:    in.Duration,
		Category:    in.Category,
		Description: in.Description,
		Difficulty:  in.Difficulty,
		Materials:   in.Materials,
		Steps:       in.Steps,
	}
}

// ActivityUpdateRequest is the partial update payload. Provenance fields
// are listed only so that an attempt to change them is rejected rather
// than silently ignored.
type ActivityUpdateRequest struct {
	Title       *string           `json:"title"`
	Image       *string           `json:"image"`
	Images      *[]string         `json:"images"`
	Duration    *string           `json:"duration"`
	Category    *string           `json:"category"`
	Description *string           `json:"description"`
	Difficulty  *types.Difficulty `json:"difficulty"`
	Materials   json.RawMessage   `json:"materials"`
	Steps       json.RawMessage   `json:"steps"`

	IsUserCreated *bool   `json:"isUserCreated"`
	CreatedBy     *int64  `json:"createdBy"`
	Email         *string `json:"email"`
}

func (req ActivityUpdateRequest) Validate() error {
	fields := validation.Errors{}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		fields["title"] = errors.New("cannot be blank")
	}
	if req.Images != nil && len(*req.Images) == 0 {
		fields["images"] = errors.New("must contain at least one image")
	}
	if req.Duration != nil && strings.TrimSpace(*req.Duration) == "" {
		fields["duration"] = errors.New("cannot be blank")
	}
	if req.Category != nil && strings.TrimSpace(*req.Category) == "" {
		fields["category"] = errors.New("cannot be blank")
	}
	if req.Difficulty != nil && !req.Difficulty.Valid() {
		fields["difficulty"] = errors.New("must be a valid difficulty")
	}
	if len(fields) > 0 {
		return fields
	}
	return nil
}

// immutableViolations rejects changed provenance fields. Re-sending the
// current value is allowed.
func (req ActivityUpdateRequest) immutableViolations(existing types.Activity) error {
	fields := validation.Errors{}
	if req.IsUserCreated != nil && *req.IsUserCreated != existing.IsUserCreated {
		fields["isUserCreated"] = errors.New("is immutable")
	}
	if req.CreatedBy != nil && *req.CreatedBy != existing.CreatedBy {
		fields["createdBy"] = errors.New("is immutable")
	}
	if req.Email != nil && *req.Email != existing.Email {
		fields["email"] = errors.New("is immutable")
	}
	if len(fields) > 0 {
		return fields
	}
	return nil
}

func (req ActivityUpdateRequest) update() services.ActivityUpdate {
	upd := services.ActivityUpdate{
		Title:       req.Title,
		Duration:    req.Duration,
		Category:    req.Category,
		Description: req.Description,
		Difficulty:  req.Difficulty,
	}
	if req.Images != nil {
		upd.Images = req.Images
	} else if req.Image != nil && strings.TrimSpace(*req.Image) != "" {
		images := []string{*req.Image}
		upd.Images = &images
	}
	if len(req.Materials) > 0 {
		materials := parseFlexibleList(req.Materials)
		upd.Materials = &materials
	}
	if len(req.Steps) > 0 {
		steps := parseFlexibleList(req.Steps)
		upd.Steps = &steps
	}
	return upd
}

// parseFlexibleList accepts a JSON string list or a serialized form of
// one. Anything unparseable degrades to an empty list instead of failing
// the whole request.
func parseFlexibleList(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if list == nil {
			return []string{}
		}
		return list
	}

	var serialized string
	if err := json.Unmarshal(raw, &serialized); err == nil {
		if err := json.Unmarshal([]byte(serialized), &list); err == nil && list != nil {
			return list
		}
	}
	return []string{}
}

func validDifficulty(value any) error {
	difficulty, _ := value.(types.Difficulty)
	if difficulty == "" || difficulty.Valid() {
		return nil
	}
	return errors.New("must be a valid difficulty")
}
