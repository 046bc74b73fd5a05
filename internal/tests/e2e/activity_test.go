//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/older-wiser/apiserver/config"
	"github.com/older-wiser/apiserver/internal/server"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestActivityLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	email := fmt.Sprintf("owner_%d@example.com", time.Now().UnixNano())
	password := "testpass123!"

	token, err := registerAndLogin(t, baseURL, email, password)
	if err != nil {
		t.Fatalf("register and login: %v", err)
	}

	created, err := createActivity(t, baseURL, token)
	if err != nil {
		t.Fatalf("create activity: %v", err)
	}
	if created.Title != "Backyard birdwatching" {
		t.Fatalf("unexpected activity title: %q", created.Title)
	}
	if created.ID == 0 {
		t.Fatalf("expected activity ID to be set")
	}
	if !created.IsUserCreated {
		t.Fatalf("expected activity to be user-created")
	}
	if created.Email != email {
		t.Fatalf("expected owner email %q, got %q", email, created.Email)
	}

	updated, err := updateActivity(t, baseURL, token, created.ID)
	if err != nil {
		t.Fatalf("update activity: %v", err)
	}
	if updated.Title != "Backyard birdwatching, extended" {
		t.Fatalf("unexpected updated title: %q", updated.Title)
	}
	if updated.Email != email {
		t.Fatalf("owner email changed on update: %q", updated.Email)
	}

	fetched, err := getActivity(t, baseURL, created.ID)
	if err != nil {
		t.Fatalf("get activity: %v", err)
	}
	if fetched.ID != created.ID {
		t.Fatalf("unexpected activity id: %d", fetched.ID)
	}

	if err := deleteActivity(t, baseURL, token, created.ID); err != nil {
		t.Fatalf("delete activity: %v", err)
	}

	if err := expectActivityNotFound(t, baseURL, created.ID); err != nil {
		t.Fatalf("expected deleted activity to be missing: %v", err)
	}
}

type activityResponse struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	IsUserCreated bool   `json:"isUserCreated"`
	Email         string `json:"email"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func registerAndLogin(t *testing.T, baseURL, email, password string) (string, error) {
	t.Helper()

	payload := map[string]string{
		"name":     "E2E Owner",
		"email":    email,
		"password": password,
	}
	if _, err := postJSON(baseURL+"/api/auth/register", "", payload, http.StatusCreated); err != nil {
		return "", err
	}

	body, err := postJSON(baseURL+"/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, http.StatusOK)
	if err != nil {
		return "", err
	}

	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body.Data, &login); err != nil {
		return "", err
	}
	if login.Token == "" {
		return "", fmt.Errorf("missing token in login response")
	}
	return login.Token, nil
}

func createActivity(t *testing.T, baseURL, token string) (activityResponse, error) {
	t.Helper()

	body, err := postJSON(baseURL+"/api/activities/user", token, map[string]any{
		"title":     "Backyard birdwatching",
		"images":    []string{"activities/birds.jpg"},
		"duration":  "1 hour",
		"category":  "Outdoors",
		"materials": []string{"binoculars"},
		"steps":     []string{"sit still", "watch"},
	}, http.StatusCreated)
	if err != nil {
		return activityResponse{}, err
	}

	var parsed activityResponse
	if err := json.Unmarshal(body.Data, &parsed); err != nil {
		return activityResponse{}, err
	}
	return parsed, nil
}

func updateActivity(t *testing.T, baseURL, token string, id int64) (activityResponse, error) {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"title": "Backyard birdwatching, extended",
	})
	if err != nil {
		return activityResponse{}, err
	}

	req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/activities/user/%d", baseURL, id), bytes.NewReader(payload))
	if err != nil {
		return activityResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	body, err := doRequest(req, http.StatusOK)
	if err != nil {
		return activityResponse{}, err
	}

	var parsed activityResponse
	if err := json.Unmarshal(body.Data, &parsed); err != nil {
		return activityResponse{}, err
	}
	return parsed, nil
}

func getActivity(t *testing.T, baseURL string, id int64) (activityResponse, error) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/activities/%d", baseURL, id), nil)
	if err != nil {
		return activityResponse{}, err
	}

	body, err := doRequest(req, http.StatusOK)
	if err != nil {
		return activityResponse{}, err
	}

	var parsed activityResponse
	if err := json.Unmarshal(body.Data, &parsed); err != nil {
		return activityResponse{}, err
	}
	return parsed, nil
}

func deleteActivity(t *testing.T, baseURL, token string, id int64) error {
	t.Helper()

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/activities/user/%d", baseURL, id), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	_, err = doRequest(req, http.StatusOK)
	return err
}

func expectActivityNotFound(t *testing.T, baseURL string, id int64) error {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/activities/%d", baseURL, id), nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("expected 404 after delete, got %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func postJSON(url, token string, payload any, wantStatus int) (envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return envelope{}, err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return envelope{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return doRequest(req, wantStatus)
}

func doRequest(req *http.Request, wantStatus int) (envelope, error) {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return envelope{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, err
	}
	if resp.StatusCode != wantStatus {
		return envelope{}, fmt.Errorf("%s %s status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, err
	}
	return env, nil
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	dsn := buildPostgresURL(cfg)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	dsn := buildPostgresURL(cfg)
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func buildPostgresURL(cfg config.Config) string {
	sslmode := "disable"
	if cfg.Database.UseSSL {
		sslmode = "require"
	}
	host := fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port)
	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		host,
		cfg.Database.DBName,
		sslmode,
	)
}

func startServer() (*server.Server, error) {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "olderwiser")
	_ = os.Setenv("DB_PASSWORD", "password")
	_ = os.Setenv("DB_NAME", "older_wiser")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("STORAGE_BACKEND", "minio")
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	_ = os.Setenv("MINIO_BUCKET", "older-wiser-uploads")

	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
