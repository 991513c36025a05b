// Package server contains the HTTP handlers for the social graph API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dropp/internal/auth"
	"dropp/internal/config"
	"dropp/internal/datastore"
	"dropp/internal/featureflags"
	"dropp/internal/middleware"
	"dropp/internal/models"
	"dropp/internal/notifications"
	"dropp/internal/observability"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// FollowAPI is the social graph surface the handlers call.
type FollowAPI interface {
	RequestToFollow(ctx context.Context, actor, target string) error
	RespondToFollowerRequest(ctx context.Context, actor, requester string, intent models.RequestIntent) error
	RemoveFollowRequest(ctx context.Context, actor, target string) error
	RemoveFollower(ctx context.Context, actor, target string) error
	Unfollow(ctx context.Context, actor, target string) error
	ListConnections(ctx context.Context, actor string, kind models.ConnectionKind) ([]string, error)
	ListRequests(ctx context.Context, actor string, kind models.RequestKind) ([]string, error)
	RelationshipStatus(ctx context.Context, actor, target string) (*models.RelationshipStatus, error)
}

// AccountAPI is the account surface the handlers call.
type AccountAPI interface {
	GetUser(ctx context.Context, username string) (*models.UserProfile, error)
	DeleteAccount(ctx context.Context, actor string) error
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	deps           *Deps
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	tokens         *auth.TokenService
	notifier       *notifications.Notifier
	featureFlags   *featureflags.Manager
	follows        FollowAPI
	accounts       AccountAPI
}

// NewServer connects to the configured datastore and creates a server.
func NewServer(cfg *config.Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	deps, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, deps), nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
func NewServerWithDeps(cfg *config.Config, deps *Deps) *Server {
	svc := NewServices(cfg, deps)
	return &Server{
		config:         cfg,
		deps:           deps,
		promMiddleware: middleware.InitMetrics("dropp-api"),
		tokens:         auth.NewTokenService(cfg.JWTSecret, 0),
		notifier:       notifications.NewNotifier(deps.Redis),
		featureFlags:   svc.Flags,
		follows:        svc.Follows,
		accounts:       svc.Accounts,
	}
}

// NewApp returns a Fiber app with the server's error handler.
func (s *Server) NewApp() *fiber.App {
	return fiber.New(fiber.Config{
		AppName:   "Dropp API",
		BodyLimit: 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
			}
			observability.Logger.ErrorContext(c.UserContext(), "unhandled error",
				slog.String("error", err.Error()),
			)
			return models.RespondWithError(c, err)
		},
	})
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so short-circuited responses keep their headers.
	app.Use(cors.New(cors.Config{
		AllowOrigins: s.config.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		MaxAge:       86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// ContextMiddleware runs again so the username reaches the logger.
	api := app.Group("/api", middleware.AuthRequired(s.tokens), middleware.ContextMiddleware())
	api.Get("/feature-flags", s.GetFeatureFlags)
	api.Get("/ws", RequireUpgrade, s.EventStream())

	users := api.Group("/users")
	users.Get("/me", s.GetMyProfile)
	users.Delete("/me", s.DeleteMyAccount)
	users.Get("/:username", s.GetUserProfile)

	social := api.Group("/social")
	social.Get("/follows", s.GetFollows)
	social.Get("/followers", s.GetFollowers)
	social.Get("/requests/sent", s.GetSentRequests)
	social.Get("/requests/received", s.GetReceivedRequests)
	social.Get("/status/:username", s.GetRelationshipStatus)

	social.Post("/follow-requests/:username", s.followLimiter().Handler(), s.RequestToFollow)
	social.Delete("/follow-requests/:username", s.RemoveFollowRequest)
	social.Post("/follower-requests/:username", s.RespondToFollowerRequest)
	social.Delete("/followers/:username", s.RemoveFollower)
	social.Delete("/follows/:username", s.Unfollow)
}

// followLimiter bounds follow requests per requester and target pair.
func (s *Server) followLimiter() *middleware.Limiter {
	l := middleware.NewLimiter(s.deps.Redis, "follow_request",
		s.config.FollowRequestLimit, s.config.FollowRequestWin, middleware.FollowPairKey)
	l.Disabled = middleware.LimitsDisabled(s.config.Env)
	return l
}

// LivenessCheck handles GET /health/live
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports whether the datastore and, when configured, Redis respond.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := fiber.Map{}
	healthy := true

	storeStatus := "healthy"
	if p, ok := s.deps.Store.(datastore.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			storeStatus = "unhealthy"
			healthy = false
		}
	}
	checks["datastore"] = storeStatus

	if s.deps.Redis != nil {
		redisStatus := "healthy"
		if err := s.deps.Redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
			healthy = false
		}
		checks["redis"] = redisStatus
	}

	status, overall := fiber.StatusOK, "healthy"
	if !healthy {
		status, overall = fiber.StatusServiceUnavailable, "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"driver": s.config.DatastoreDriver,
		"checks": checks,
		"time":   time.Now(),
	})
}

// GetFeatureFlags handles GET /api/feature-flags
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	return c.JSON(s.featureFlags.Snapshot(middleware.CurrentUser(c)))
}

// Start builds the app and listens on the configured port. It blocks.
func (s *Server) Start() error {
	app := s.NewApp()
	s.app = app
	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	observability.Logger.Info("Server starting",
		slog.String("port", s.config.Port),
		slog.String("driver", s.config.DatastoreDriver),
	)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			observability.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.deps.Close(); err != nil {
		return fmt.Errorf("close dependencies: %w", err)
	}

	observability.Logger.Info("Server shutdown complete")
	return nil
}
