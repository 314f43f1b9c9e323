// Package server wires the application together: it builds the store,
// the auth primitives, the outbound collaborators (SMTP, S3), the
// services and handlers, and mounts the routes. All dependency injection
// happens here — main.go only loads config and calls New/Start.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/lms-backend/internal/auth"
	"github.com/sakif/lms-backend/internal/config"
	"github.com/sakif/lms-backend/internal/handler"
	"github.com/sakif/lms-backend/internal/mail"
	"github.com/sakif/lms-backend/internal/middleware"
	"github.com/sakif/lms-backend/internal/model"
	sqliteRepo "github.com/sakif/lms-backend/internal/repository/sqlite"
	"github.com/sakif/lms-backend/internal/service"
	"github.com/sakif/lms-backend/internal/storage"
)

// Server owns the router, the database connection, and the server
// lifecycle. The database is closed during graceful shutdown so the WAL
// is flushed and the file lock released.
type Server struct {
	router *chi.Mux
	cfg    config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New assembles the full dependency graph from configuration.
//
// SMTP and S3 are optional: when unconfigured, their fallback
// implementations fail cleanly at the call site (forgot-password errors,
// avatar uploads keep the default) instead of at startup. The JWT secret
// is not optional.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func (s *Server) setupRoutes(ctx context.Context) error {
	// Global middleware, in execution order.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	// Auth primitives.
	tokens, err := auth.NewTokenService(s.cfg.Auth.JWTSecret, s.cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	passwords := auth.NewPasswordService()
	resets := auth.NewResetTokenIssuer(s.cfg.Auth.ResetTokenTTL)

	// Outbound collaborators, with clean fallbacks when unconfigured.
	var mailer mail.Mailer = mail.Unconfigured{}
	if s.cfg.SMTP.Host != "" {
		smtpMailer, err := mail.NewSMTPMailer(mail.SMTPConfig{
			Host:        s.cfg.SMTP.Host,
			Port:        s.cfg.SMTP.Port,
			Username:    s.cfg.SMTP.Username,
			Password:    s.cfg.SMTP.Password,
			FromName:    s.cfg.SMTP.FromName,
			FromAddress: s.cfg.SMTP.FromAddress,
			Encryption:  s.cfg.SMTP.Encryption,
		})
		if err != nil {
			return fmt.Errorf("configuring SMTP: %w", err)
		}
		mailer = smtpMailer
	} else {
		s.logger.Warn("SMTP not configured; password-reset email is disabled")
	}

	var media storage.Service = storage.Unconfigured{}
	if s.cfg.Storage.Bucket != "" {
		s3, err := storage.NewS3Service(ctx, storage.S3Options{
			Bucket:    s.cfg.Storage.Bucket,
			KeyPrefix: s.cfg.Storage.KeyPrefix,
			Region:    s.cfg.Storage.Region,
			Endpoint:  s.cfg.Storage.Endpoint,
			PublicURL: s.cfg.Storage.PublicURL,
		})
		if err != nil {
			return fmt.Errorf("configuring media storage: %w", err)
		}
		media = s3
	} else {
		s.logger.Warn("media storage not configured; file uploads are disabled")
	}

	// Services and handlers.
	userService := service.NewUserService(
		s.db.Users(), tokens, passwords, resets, mailer, media, s.cfg.Frontend.URL, s.logger)
	courseService := service.NewCourseService(s.db.Courses(), media, s.logger)

	userHandler := handler.NewUserHandler(userService, tokens, s.logger)
	courseHandler := handler.NewCourseHandler(courseService, s.logger)
	paymentHandler := handler.NewPaymentHandler(userService, s.logger)

	requireAuth := auth.RequireAuth(tokens, s.db.Users())

	s.router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("pong"))
	})

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/register", userHandler.HandleRegister)
			r.Post("/login", userHandler.HandleLogin)
			r.Get("/logout", userHandler.HandleLogout)
			r.Post("/reset", userHandler.HandleForgotPassword)
			r.Post("/reset/{resetToken}", userHandler.HandleResetPassword)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", userHandler.HandleMe)
				r.Post("/changed-password", userHandler.HandleChangePassword)
				r.Post("/update/{id}", userHandler.HandleUpdateProfile)
			})
		})

		r.Route("/courses", func(r chi.Router) {
			r.Get("/", courseHandler.HandleList)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth, auth.RequireSubscriber())
				r.Get("/{id}", courseHandler.HandleGetLectures)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAuth, auth.RequireRole(model.RoleAdmin))
				r.Post("/", courseHandler.HandleCreate)
				r.Put("/{id}", courseHandler.HandleUpdate)
				r.Delete("/{id}", courseHandler.HandleDelete)
				r.Post("/{id}", courseHandler.HandleAddLecture)
			})
		})

		r.Route("/payments", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/subscribe", paymentHandler.HandleSubscribe)
			r.Post("/unsubscribe", paymentHandler.HandleUnsubscribe)
		})
	})

	// Unmatched routes get the JSON envelope, not chi's plain-text 404.
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"message":"route not found"}`))
	})

	return nil
}

// Handler exposes the assembled router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until SIGINT/SIGTERM, then drains in-flight
// requests for up to 30 seconds and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", s.cfg.Server.Addr),
			slog.String("database", s.cfg.Database.Path),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
