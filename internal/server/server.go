package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/lostboard/apiserver/config"
	"github.com/lostboard/apiserver/internal/db"
	"github.com/lostboard/apiserver/internal/handlers"
	"github.com/lostboard/apiserver/internal/mq"
	"github.com/lostboard/apiserver/internal/services"
	"github.com/lostboard/apiserver/internal/storage"
	"github.com/lostboard/apiserver/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     *mq.MQ
	objects    *storage.Storage
	logger     *zap.Logger
}

// Dependencies are the collaborators the router is built from.
type Dependencies struct {
	Users   services.UserRepository
	Items   services.ItemRepository
	Objects storage.ObjectStorage
	Events  services.EventPublisher
}

// New validates cfg, connects to the database, storage and broker, and
// builds the router.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	broker, err := mq.Open(ctx, cfg.Broker)
	if err != nil {
		_ = objects.Close()
		_ = dbConn.Close()
		return nil, fmt.Errorf("open broker: %w", err)
	}

	deps := Dependencies{
		Users:   store.NewUserRepository(dbConn),
		Items:   store.NewItemRepository(dbConn),
		Objects: objects,
	}
	if broker != nil {
		deps.Events = broker
	}

	router := NewRouter(cfg, deps, logger)

	port := cfg.ServerPort
	if port == 0 {
		port = 3001
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		broker:     broker,
		objects:    objects,
		logger:     logger,
	}, nil
}

// NewRouter wires services and handlers onto a chi router.
func NewRouter(cfg config.Config, deps Dependencies, logger *zap.Logger) *chi.Mux {
	tokens := services.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	images := services.NewImageStore(deps.Objects, cfg.Storage.PublicPrefix, cfg.Storage.MaxUploadBytes)

	authService := services.NewAuthService(deps.Users, tokens, cfg.Auth.BcryptCost)
	itemService := services.NewItemService(deps.Items, images, logger.Named("items"))
	if deps.Events != nil {
		itemService.WithEvents(deps.Events, cfg.Broker.EventChannel)
	}
	profileService := services.NewProfileService(deps.Users, images, logger.Named("profile"))

	authMiddleware := handlers.RequireAuth(tokens, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		handlers.RequestLogger(logger.Named("http")),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
	)
	if cfg.Server.RequestTimeout > 0 {
		router.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	}

	router.Get("/health", handlers.Health)
	router.Route("/auth", func(r chi.Router) {
		if cfg.Auth.RateLimit > 0 {
			limiter := handlers.NewRateLimiter(rate.Limit(cfg.Auth.RateLimit), cfg.Auth.RateBurst, 10*time.Minute)
			r.Use(limiter.Middleware)
		}
		handlers.AuthRouter(r, authService, logger)
	})
	router.Route("/items", func(r chi.Router) {
		handlers.ItemRouter(r, itemService, authMiddleware, logger)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, profileService, authMiddleware, logger)
	})
	router.Get(images.Prefix()+"/*", handlers.NewUploadsHandler(deps.Objects, logger).Serve)

	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the broker, storage and
// database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.broker != nil {
		if cerr := s.broker.Close(); cerr != nil {
			s.logger.Warn("close broker", zap.Error(cerr))
		}
	}
	if s.objects != nil {
		if cerr := s.objects.Close(); cerr != nil {
			s.logger.Warn("close storage", zap.Error(cerr))
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
