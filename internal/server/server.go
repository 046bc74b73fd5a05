package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/older-wiser/apiserver/config"
	"github.com/older-wiser/apiserver/internal/auth"
	"github.com/older-wiser/apiserver/internal/db"
	"github.com/older-wiser/apiserver/internal/events"
	"github.com/older-wiser/apiserver/internal/handlers"
	"github.com/older-wiser/apiserver/internal/services"
	"github.com/older-wiser/apiserver/internal/storage"
	"github.com/older-wiser/apiserver/internal/store"
)

// Server wraps the HTTP server, its router, and the process-lifetime
// resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	publisher  events.Publisher
}

// New opens the database and broker connections, wires repositories,
// services, and handlers, and builds the route tree.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	objectStorage, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	publisher, err := events.NewFromConfig(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	eventPublisher := services.NewEventPublisher(publisher, slog.Default())

	userRepo := store.NewUserRepository(dbConn)
	activityRepo := store.NewActivityRepository(dbConn)

	userService := services.NewUserService(userRepo, eventPublisher)
	activityService := services.NewActivityService(activityRepo, eventPublisher)
	uploadService := services.NewUploadService(objectStorage)
	captchaService := services.NewCaptchaService(cfg.Captcha)

	tokenService := auth.NewTokenService(cfg.JWT)
	authMiddleware := handlers.NewAuthMiddleware(tokenService, userRepo)

	avatarPolicy := services.ImagePolicy(cfg.Upload.MaxBytes, "avatars")
	imagePolicy := services.ImagePolicy(cfg.Upload.MaxBytes, "activities")

	authHandler := handlers.NewAuthHandler(userService, tokenService, captchaService, uploadService, avatarPolicy)
	activityHandler := handlers.NewActivityHandler(activityService, uploadService, imagePolicy)
	adminHandler := handlers.NewAdminHandler(activityService, userService, uploadService, imagePolicy)
	captchaHandler := handlers.NewCaptchaHandler(captchaService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authHandler, authMiddleware)
		})
		r.Route("/activities", func(r chi.Router) {
			handlers.ActivityRouter(r, activityHandler, authMiddleware)
		})
		r.Route("/admin", func(r chi.Router) {
			handlers.AdminRouter(r, adminHandler, authMiddleware)
		})
		r.Route("/captcha", func(r chi.Router) {
			handlers.CaptchaRouter(r, captchaHandler)
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		publisher:  publisher,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown closes the server and the resources it owns.
func (s *Server) Shutdown() error {
	if s.publisher != nil {
		_ = s.publisher.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
