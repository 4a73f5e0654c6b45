package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/studcloud/sso/internal/auth"
	"github.com/studcloud/sso/internal/authlevel"
	"github.com/studcloud/sso/internal/config"
	"github.com/studcloud/sso/internal/identity"
	"github.com/studcloud/sso/internal/logging"
	"github.com/studcloud/sso/internal/middleware"
	"github.com/studcloud/sso/internal/notification"
	"github.com/studcloud/sso/internal/requestctx"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	Store    identity.Store
	DB       *pgxpool.Pool
	Mongo    *mongo.Client
	Cache    *redis.Client
	Notifier notification.Notifier
	Logger   *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Store == nil {
		return fmt.Errorf("identity store is required")
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	// Services and handlers
	identitySvc := identity.NewService(d.Store,
		identity.WithNotifier(d.Notifier),
		identity.WithLogger(d.Logger),
		identity.WithRetryPolicy(identity.RetryPolicy{
			Attempts:  d.Cfg.StoreRetryAttempts,
			BaseDelay: d.Cfg.StoreRetryBaseDelay,
			MaxDelay:  d.Cfg.StoreRetryMaxDelay,
		}),
		identity.WithStoreTimeout(d.Cfg.StoreTimeout),
		identity.WithTokenTTLs(identity.TokenTTLs{
			Mail:     d.Cfg.MailTokenTTL,
			Mobile:   d.Cfg.MobileTokenTTL,
			Document: d.Cfg.DocumentTokenTTL,
			Password: d.Cfg.PasswordTokenTTL,
		}),
		identity.WithPhoneRegion(d.Cfg.PhoneRegion),
		identity.WithDocumentReviewer(d.Cfg.DocumentReviewer),
	)
	sessions := auth.NewSessions(d.Cfg.SessionSecret, d.Cfg.SessionTTL, d.Cfg.SessionIssuer)
	gate := authlevel.NewGate(logging.NewDenialSink(d.Logger))

	identityHandler := identity.NewHandler(identitySvc)
	authHandler := auth.NewHandler(identitySvc, sessions, d.Cfg.Production())

	// API routes
	api := app.Group("/api/v1", middleware.Session(sessions, identitySvc, d.Logger))
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": requestctx.RequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	var idempotency fiber.Handler
	if d.Cache != nil {
		idempotency = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	RegisterIdentityRoutes(api, identityHandler, idempotency)
	RegisterAuthRoutes(api, authHandler, middleware.SignInRateLimit(d.Cache, d.Cfg.SignInPerMinute))
	RegisterMeRoutes(api, identityHandler, gate)

	return nil
}
