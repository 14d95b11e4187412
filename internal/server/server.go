// Package server is the composition root: it builds every dependency from
// config.Config, mounts the routes and runs the HTTP server until a signal
// arrives.
//
// Dependency flow:
//
//	sqlite.DB ──┬─> IdentityResolver ─> auth.RequireAuth
//	Redis/Nop ──┘        │
//	TokenService ────────┼─> AuthService ─> AuthHandler
//	PasswordService ─────┘        │
//	Mailer (log|smtp|kafka) ──────┘
//	Cloudinary ─> UserService ─> UserHandler
//	sqlite.DB ─> ContactService ─> ContactHandler
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/avatar"
	"github.com/sakif/contacts-api/internal/cache"
	"github.com/sakif/contacts-api/internal/config"
	"github.com/sakif/contacts-api/internal/handler"
	"github.com/sakif/contacts-api/internal/mail"
	"github.com/sakif/contacts-api/internal/middleware"
	"github.com/sakif/contacts-api/internal/model"
	sqliteRepo "github.com/sakif/contacts-api/internal/repository/sqlite"
	"github.com/sakif/contacts-api/internal/service"
)

// Option overrides a dependency New would otherwise build from config.
type Option func(*options)

type options struct {
	mailer   mail.Mailer
	uploader service.AvatarUploader
	redis    redis.UniversalClient
}

// WithMailer replaces the mailer selected by MAIL_TRANSPORT.
func WithMailer(m mail.Mailer) Option {
	return func(o *options) { o.mailer = m }
}

// WithAvatarUploader replaces the Cloudinary uploader.
func WithAvatarUploader(u service.AvatarUploader) Option {
	return func(o *options) { o.uploader = u }
}

// WithRedis uses client instead of dialing REDIS_ADDR.
func WithRedis(client redis.UniversalClient) Option {
	return func(o *options) { o.redis = client }
}

// Server owns the router and every long-lived resource. Close releases
// them in reverse order of construction.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger

	db      *sqliteRepo.DB
	rdb     redis.UniversalClient // nil when caching is disabled
	cache   handler.Pinger        // nil when caching is disabled
	authSvc *service.AuthService
	closers []io.Closer
}

// New opens the database, connects the optional backends and mounts the
// routes.
func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.wire(o); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) wire(o options) error {
	cfg := s.config

	tokens, err := auth.NewTokenService(cfg.Tokens)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(cfg.BcryptCost, cfg.HashWorkers)

	identityCache, err := s.buildCache(o.redis)
	if err != nil {
		return err
	}

	mailer := o.mailer
	if mailer == nil {
		if mailer, err = s.buildMailer(); err != nil {
			return err
		}
	}

	uploader := o.uploader
	if uploader == nil && cfg.CloudinaryURL != "" {
		cld, err := avatar.NewCloudinary(cfg.CloudinaryURL)
		if err != nil {
			return fmt.Errorf("configuring avatar uploads: %w", err)
		}
		uploader = cld
	}
	if uploader == nil {
		s.logger.Warn("CLOUDINARY_URL not set, avatar uploads are disabled")
	}

	identity := service.NewIdentityResolver(tokens, identityCache, s.db, cfg.CacheTTL, s.logger)
	s.authSvc = service.NewAuthService(s.db, tokens, passwords, mailer, identity, cfg.PublicBaseURL, s.logger)
	if cfg.AdminEmail != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.authSvc.SeedAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return fmt.Errorf("seeding admin: %w", err)
		}
	}

	userSvc := service.NewUserService(s.db, uploader, identity, s.logger)
	contactSvc := service.NewContactService(s.db, s.logger)

	s.routes(
		identity,
		handler.NewAuthHandler(s.authSvc, s.logger),
		handler.NewUserHandler(userSvc, s.logger),
		handler.NewContactHandler(contactSvc, s.logger),
		handler.NewHealthHandler(s.db, s.cache, s.logger),
	)
	return nil
}

// buildCache returns the identity cache. Without Redis every lookup goes to
// the database. An unreachable Redis at startup is logged, not fatal: the
// resolver treats cache errors as misses.
func (s *Server) buildCache(client redis.UniversalClient) (service.IdentityCache, error) {
	if client == nil && s.config.RedisAddr != "" {
		client = redis.NewClient(&redis.Options{
			Addr:     s.config.RedisAddr,
			Password: s.config.RedisPassword,
			DB:       s.config.RedisDB,
		})
	}
	if client == nil {
		s.logger.Info("REDIS_ADDR not set, identity cache and rate limiting are disabled")
		return cache.Nop{}, nil
	}

	c := cache.NewRedis(client, s.logger)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		s.logger.Warn("redis unreachable at startup", slog.String("error", err.Error()))
	}

	s.rdb = client
	s.cache = c
	s.closers = append(s.closers, c)
	return c, nil
}

func (s *Server) buildMailer() (mail.Mailer, error) {
	switch s.config.MailTransport {
	case config.MailSMTP:
		return mail.NewSMTPMailer(s.config.SMTP, s.logger), nil
	case config.MailKafka:
		m := mail.NewKafkaMailer(s.config.KafkaBrokers, s.config.KafkaMailTopic, s.logger)
		s.closers = append(s.closers, m)
		return m, nil
	case config.MailLog, "":
		return mail.NewLogMailer(s.logger), nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", s.config.MailTransport)
	}
}

// routes mounts every endpoint.
//
//	GET    /                              welcome
//	GET    /health                        database and cache status
//	GET    /metrics                       Prometheus
//	POST   /auth/signup                   register
//	POST   /auth/login                    issue an access token
//	GET    /auth/verify-email/{token}     confirm an email address
//	POST   /auth/request-verification     re-send the verification link
//	POST   /auth/request-password-reset   mail a reset token
//	POST   /auth/reset-password           set a new password
//	GET    /users/me                      bearer, rate limited
//	POST   /users/avatar                  bearer
//	GET    /admin/users/{email}           bearer, admin
//	DELETE /admin/users/{email}           bearer, admin
//	*      /contacts...                   bearer
func (s *Server) routes(
	resolver auth.Resolver,
	authH *handler.AuthHandler,
	userH *handler.UserHandler,
	contactH *handler.ContactHandler,
	healthH *handler.HealthHandler,
) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/", healthH.HandleRoot)
	s.router.Get("/health", healthH.HandleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authH.HandleSignup)
		r.Post("/login", authH.HandleLogin)
		r.Get("/verify-email/{token}", authH.HandleVerifyEmail)
		r.Post("/request-verification", authH.HandleRequestVerification)
		r.Post("/request-password-reset", authH.HandleRequestPasswordReset)
		r.Post("/reset-password", authH.HandleResetPassword)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(resolver, s.logger))

		r.Route("/users", func(r chi.Router) {
			r.With(middleware.RateLimit(s.rdb, "users_me", s.config.RateLimitMe, time.Minute, s.logger)).
				Get("/me", userH.HandleMe)
			r.Post("/avatar", userH.HandleAvatar)
		})

		r.Route("/admin/users", func(r chi.Router) {
			r.Use(auth.RequireRole(model.RoleAdmin))
			r.Get("/{email}", userH.HandleGetUser)
			r.Delete("/{email}", userH.HandleDeleteUser)
		})

		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", contactH.HandleList)
			r.Post("/", contactH.HandleCreate)
			r.Get("/search", contactH.HandleSearch)
			r.Get("/upcoming-birthdays", contactH.HandleUpcomingBirthdays)
			r.Get("/{id}", contactH.HandleGet)
			r.Put("/{id}", contactH.HandleUpdate)
			r.Delete("/{id}", contactH.HandleDelete)
		})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until SIGINT or SIGTERM, then drains in-flight requests
// and background mail before releasing resources.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.String("mail", s.config.MailTransport),
			slog.Bool("cache", s.rdb != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
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

// Close waits for background mail, then closes the mail transport, the
// cache and the database.
func (s *Server) Close() error {
	if s.authSvc != nil {
		s.authSvc.Wait()
	}

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("closing resources", slog.String("error", err.Error()))
		return err
	}
	return nil
}
