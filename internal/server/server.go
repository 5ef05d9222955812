// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the wiring layer: it connects storage, services,
// handlers and middleware, and owns the process lifecycle (graceful
// shutdown, background jobs, closing the database).
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New() creates:
//	  sqlite.DB ─┬─ AuthService (+ TokenService, Hasher, SendLimiter, notify.Sender)
//	             ├─ UserService, BookService, FavoriteService, MeetingService
//	             └─ auth.Middleware (role lookups)
//	  services → handlers → routes
//
// Everything is assembled here, in one place, rather than scattered across
// the codebase.
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
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/bookclub/internal/auth"
	"github.com/sakif/bookclub/internal/config"
	"github.com/sakif/bookclub/internal/handler"
	"github.com/sakif/bookclub/internal/middleware"
	"github.com/sakif/bookclub/internal/notify"
	sqliteRepo "github.com/sakif/bookclub/internal/repository/sqlite"
	"github.com/sakif/bookclub/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database connection, the optional Redis client and
// the code janitor. Start releases all three on the way out.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	redis   *redis.Client // nil when REDIS_ADDR is unset
	janitor *service.CodeJanitor
}

// New creates a Server from cfg. cfg is expected to have passed Validate.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
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

	if err := s.setupRoutes(); err != nil {
		s.close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// sendLimiter picks the per-identifier send limiter. With REDIS_ADDR set
// the once-a-minute rule holds across replicas; otherwise it is per
// process.
func (s *Server) sendLimiter() (auth.SendLimiter, error) {
	if s.config.RedisAddr == "" {
		return auth.NewMemoryLimiter(service.SendInterval), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb, err := auth.NewRedisClient(ctx, s.config.RedisAddr, s.config.RedisPassword)
	if err != nil {
		return nil, err
	}
	s.redis = rdb
	s.logger.Info("send limiter backed by redis", slog.String("addr", s.config.RedisAddr))
	return auth.NewRedisLimiter(rdb, service.SendInterval), nil
}

// codeSender routes SMS to the message gateway and e-mail to SMTP when it
// is configured, to the gateway otherwise.
func (s *Server) codeSender() notify.Sender {
	gateway := notify.NewGatewayClient(notify.GatewayConfig{
		BaseURL: s.config.GatewayURL,
		APIKey:  s.config.GatewayAPIKey,
		Timeout: s.config.GatewayTimeout,
	}, s.logger)

	router := &notify.Router{Email: gateway, SMS: gateway}
	if s.config.SMTPEnabled() {
		router.Email = notify.NewMailer(notify.SMTPConfig{
			Host:     s.config.SMTPHost,
			Port:     s.config.SMTPPort,
			Username: s.config.SMTPUsername,
			Password: s.config.SMTPPassword,
			Sender:   s.config.SMTPSender,
			Timeout:  s.config.GatewayTimeout,
		})
	}
	return router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /                                   welcome
//	GET    /health                             liveness + database ping
//	POST   /auth/send-code                     request a login code      (IP rate limit)
//	POST   /auth/verify-code                   exchange code for a token (IP rate limit)
//	POST   /register                           explicit sign-up
//	GET    /me, PATCH /me                      own profile               (member)
//	GET    /users, GET /users/{id}             member directory          (admin)
//	PUT    /users/{id}/role                    change a role             (admin)
//	GET    /books, /books/current, /books/{id} catalogue
//	POST   /books, PUT /books/{id}             manage books              (admin)
//	PUT    /books/{id}/current                 pick the book of the month (admin)
//	DELETE /books/{id}                         remove a book             (admin)
//	GET    /books/{id}/reviews                 reviews of a book
//	POST   /books/{id}/reviews                 review a book             (member)
//	POST   /favorites, GET /favorites          favorites                 (member)
//	DELETE /favorites/{book_id}                un-favorite               (member)
//	POST   /meetings/register/{book_id}        sign up for a meeting     (member)
//	DELETE /meetings/register/{book_id}        cancel                    (member)
//	GET    /meetings/my                        own registrations         (member)
//	GET    /meetings/{book_id}/participants    attendance sheet          (admin)
//
// MIDDLEWARE ORDER MATTERS:
// RequestID and RealIP run first so the request logger sees both.
// RealIP rewrites RemoteAddr from client-supplied headers, so it is only
// installed with TRUST_PROXY_HEADERS. Recoverer turns panics into 500s and
// CORS answers preflights before any auth check.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	if s.config.TrustProxyHeaders {
		s.router.Use(chimiddleware.RealIP)
	}
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger, s.config.TrustProxyHeaders))

	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization", auth.AdminTokenHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// === Auth building blocks ===
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenLifetime())
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	limiter, err := s.sendLimiter()
	if err != nil {
		return fmt.Errorf("creating send limiter: %w", err)
	}

	devMode := s.config.DevMode()
	if devMode {
		s.logger.Warn("development mode: login codes are returned in responses and not delivered")
	}

	// === Services ===
	// s.db implements every repository interface; each service only sees
	// the slice it needs.
	authService := service.NewAuthService(s.db, tokens, auth.NewHasher(s.config.JWTSecret),
		limiter, s.codeSender(),
		service.AuthConfig{DevMode: devMode, AdminEmails: s.config.AdminEmails},
		s.logger)
	userService := service.NewUserService(s.db, s.logger)
	bookService := service.NewBookService(s.db, s.logger)
	favoriteService := service.NewFavoriteService(s.db, s.logger)
	meetingService := service.NewMeetingService(s.db, s.logger)

	s.janitor = service.NewCodeJanitor(authService, s.config.CodeSweepInterval, s.logger)

	// === Handlers ===
	healthHandler := handler.NewHealthHandler(s.db, s.logger)
	authHandler := handler.NewAuthHandler(authService, s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)
	bookHandler := handler.NewBookHandler(bookService, s.logger)
	favoriteHandler := handler.NewFavoriteHandler(favoriteService, s.logger)
	meetingHandler := handler.NewMeetingHandler(meetingService, s.logger)

	authMW := auth.NewMiddleware(tokens, s.db, s.config.AdminToken)
	authLimit := middleware.NewRateLimiter(s.config.AuthRateLimitRPS, s.config.AuthRateLimitBurst,
		s.config.TrustProxyHeaders, s.logger)

	// === Routes ===
	s.router.Get("/", healthHandler.HandleWelcome)
	s.router.Get("/health", healthHandler.HandleHealth)

	s.router.Route("/auth", func(r chi.Router) {
		r.Use(authLimit.Handler)
		r.Post("/send-code", authHandler.HandleSendCode)
		r.Post("/verify-code", authHandler.HandleVerifyCode)
	})

	s.router.Post("/register", userHandler.HandleRegister)

	s.router.Route("/me", func(r chi.Router) {
		r.Use(authMW.RequireAuth)
		r.Get("/", userHandler.HandleGetMe)
		r.Patch("/", userHandler.HandleUpdateMe)
	})

	s.router.Route("/users", func(r chi.Router) {
		r.Use(authMW.RequireAdmin)
		r.Get("/", userHandler.HandleList)
		r.Get("/{id}", userHandler.HandleGet)
		r.Put("/{id}/role", userHandler.HandleUpdateRole)
	})

	s.router.Route("/books", func(r chi.Router) {
		r.Get("/", bookHandler.HandleList)
		r.Get("/current", bookHandler.HandleCurrent)
		r.Get("/{id}", bookHandler.HandleGet)
		r.Get("/{id}/reviews", bookHandler.HandleListReviews)

		r.With(authMW.RequireAuth).Post("/{id}/reviews", bookHandler.HandleAddReview)

		r.Group(func(r chi.Router) {
			r.Use(authMW.RequireAdmin)
			r.Post("/", bookHandler.HandleCreate)
			r.Put("/{id}", bookHandler.HandleUpdate)
			r.Put("/{id}/current", bookHandler.HandleSetCurrent)
			r.Delete("/{id}", bookHandler.HandleDelete)
		})
	})

	s.router.Route("/favorites", func(r chi.Router) {
		r.Use(authMW.RequireAuth)
		r.Post("/", favoriteHandler.HandleAdd)
		r.Get("/", favoriteHandler.HandleList)
		r.Delete("/{book_id}", favoriteHandler.HandleRemove)
	})

	s.router.Route("/meetings", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMW.RequireAuth)
			r.Post("/register/{book_id}", meetingHandler.HandleRegister)
			r.Delete("/register/{book_id}", meetingHandler.HandleCancel)
			r.Get("/my", meetingHandler.HandleMine)
		})
		r.With(authMW.RequireAdmin).Get("/{book_id}/participants", meetingHandler.HandleParticipants)
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Stop the code janitor
//  4. Close Redis and the database (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer s.close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	s.janitor.Start()

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.String("env", s.config.AppEnv),
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

// close releases everything the server owns. Safe to call on a partially
// built Server.
func (s *Server) close() {
	if s.janitor != nil {
		s.janitor.Stop()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("closing redis", slog.String("error", err.Error()))
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}
