package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/older-wiser/apiserver/config"
	"github.com/older-wiser/apiserver/internal/auth"
	"github.com/older-wiser/apiserver/internal/services"
	"github.com/older-wiser/apiserver/internal/storage"
	"github.com/older-wiser/apiserver/internal/store"
	"github.com/older-wiser/apiserver/types"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int64]types.User{}}
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int64) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) List(_ context.Context) ([]types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]types.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	r.nextID++
	user.ID = r.nextID
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users), nil
}

func (r *fakeUserRepo) CountByMembership(_ context.Context, level types.Membership) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, user := range r.users {
		if user.MembershipLevel == level {
			count++
		}
	}
	return count, nil
}

type fakeActivityRepo struct {
	mu         sync.Mutex
	nextID     int64
	activities map[int64]types.Activity
}

func newFakeActivityRepo() *fakeActivityRepo {
	return &fakeActivityRepo{activities: map[int64]types.Activity{}}
}

func (r *fakeActivityRepo) List(_ context.Context, filter store.ActivityFilter) ([]types.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	activities := make([]types.Activity, 0, len(r.activities))
	for _, activity := range r.activities {
		if filter.UserCreated != nil && activity.IsUserCreated != *filter.UserCreated {
			continue
		}
		if filter.OwnerEmail != "" && activity.Email != filter.OwnerEmail {
			continue
		}
		activities = append(activities, activity)
	}
	sort.Slice(activities, func(i, j int) bool { return activities[i].ID < activities[j].ID })
	return activities, nil
}

func (r *fakeActivityRepo) Get(_ context.Context, id int64) (types.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	activity, ok := r.activities[id]
	if !ok {
		return types.Activity{}, store.ErrNotFound
	}
	return activity, nil
}

func (r *fakeActivityRepo) Create(_ context.Context, activity types.Activity) (types.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	activity.ID = r.nextID
	r.activities[activity.ID] = activity
	return activity, nil
}

func (r *fakeActivityRepo) Update(_ context.Context, activity types.Activity) (types.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.activities[activity.ID]; !ok {
		return types.Activity{}, store.ErrNotFound
	}
	r.activities[activity.ID] = activity
	return activity, nil
}

func (r *fakeActivityRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.activities[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.activities, id)
	return nil
}

func (r *fakeActivityRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.activities), nil
}

type fakeObjectStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectStorage() *fakeObjectStorage {
	return &fakeObjectStorage{objects: map[string][]byte{}}
}

func (s *fakeObjectStorage) EnsureBucket(_ context.Context) error { return nil }

func (s *fakeObjectStorage) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *fakeObjectStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeObjectStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeObjectStorage) Bucket() string { return "test" }

// testEnv wires the full route tree over in-memory fakes.
type testEnv struct {
	router     *chi.Mux
	users      *fakeUserRepo
	activities *fakeActivityRepo
	storage    *fakeObjectStorage
	tokens     *auth.TokenService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	userRepo := newFakeUserRepo()
	activityRepo := newFakeActivityRepo()
	objectStorage := newFakeObjectStorage()

	eventPublisher := services.NewEventPublisher(nil, slog.Default())
	userService := services.NewUserService(userRepo, eventPublisher)
	activityService := services.NewActivityService(activityRepo, eventPublisher)
	uploadService := services.NewUploadService(storage.NewStorage(objectStorage))
	captchaService := services.NewCaptchaService(config.CaptchaConfig{})

	tokenService := auth.NewTokenService(config.JWTConfig{Secret: "test-secret", TTLHours: 1})
	authMiddleware := NewAuthMiddleware(tokenService, userRepo)

	avatarPolicy := services.ImagePolicy(1<<20, "avatars")
	imagePolicy := services.ImagePolicy(1<<20, "activities")

	authHandler := NewAuthHandler(userService, tokenService, captchaService, uploadService, avatarPolicy)
	activityHandler := NewActivityHandler(activityService, uploadService, imagePolicy)
	adminHandler := NewAdminHandler(activityService, userService, uploadService, imagePolicy)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			AuthRouter(r, authHandler, authMiddleware)
		})
		r.Route("/activities", func(r chi.Router) {
			ActivityRouter(r, activityHandler, authMiddleware)
		})
		r.Route("/admin", func(r chi.Router) {
			AdminRouter(r, adminHandler, authMiddleware)
		})
	})

	return &testEnv{
		router:     router,
		users:      userRepo,
		activities: activityRepo,
		storage:    objectStorage,
		tokens:     tokenService,
	}
}

// seedUser inserts an account directly and returns it with a valid token.
func (e *testEnv) seedUser(t *testing.T, name, email, password string, role types.Role) (types.User, string) {
	t.Helper()

	hash, err := auth.HashPassword(password)
	require.NoError(t, err)

	user, err := e.users.Create(context.Background(), types.User{
		Name:            name,
		Email:           email,
		PasswordHash:    hash,
		Role:            role,
		MembershipLevel: types.MembershipFree,
	})
	require.NoError(t, err)

	token, err := e.tokens.Issue(user.ID)
	require.NoError(t, err)
	return user, token
}

func (e *testEnv) seedActivity(t *testing.T, activity types.Activity) types.Activity {
	t.Helper()
	created, err := e.activities.Create(context.Background(), activity)
	require.NoError(t, err)
	return created
}

// doJSON issues a request with an optional bearer token and JSON body.
func (e *testEnv) doJSON(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// doMultipart issues a multipart request with one file part plus fields.
func (e *testEnv) doMultipart(t *testing.T, method, path, token, field, filename, contentType string, fileData []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if field != "" {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(fileData)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// envelope mirrors the response envelope with raw data for per-test decoding.
type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Errors  map[string]string `json:"errors"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	env := decodeEnvelope(t, rec)
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}
