package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bazaarino/bazaar/internal/auth"
	"github.com/bazaarino/bazaar/internal/config"
	"github.com/bazaarino/bazaar/internal/credential"
	"github.com/bazaarino/bazaar/internal/identity"
	"github.com/bazaarino/bazaar/internal/ledger"
	"github.com/bazaarino/bazaar/internal/middleware"
	"github.com/bazaarino/bazaar/internal/notification"
	"github.com/bazaarino/bazaar/internal/otp"
	"github.com/bazaarino/bazaar/internal/session"
	"github.com/bazaarino/bazaar/internal/token"
	"github.com/bazaarino/bazaar/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Notifier notification.Notifier
}

// Services exposes the wired components that outlive request handling, such
// as the session ledger used by the background sweeper.
type Services struct {
	Sessions *session.Ledger
	Auth     *auth.Service
	Wallet   *wallet.Service
	Identity *identity.Service
}

// Build constructs every component from d, choosing Postgres and Redis
// backends when they are configured and in-memory ones otherwise.
func Build(d Deps) (*Services, error) {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}

	var (
		principals identity.Repository
		sessions   session.Repository
		store      ledger.Store
		codes      otp.Store
	)
	if d.DB != nil {
		principals = identity.NewPostgresRepository(d.DB)
		sessions = session.NewPostgresRepository(d.DB)
		store = ledger.NewPostgresStore(d.DB)
	} else {
		principals = identity.NewMemoryRepository()
		sessions = session.NewMemoryRepository()
		store = ledger.NewMemoryStore(ledger.WithVendorCheck(vendorExists(principals)))
	}
	if d.Cache != nil {
		codes = otp.NewRedisStore(d.Cache)
	} else {
		codes = otp.NewMemoryStore()
	}

	issuer, err := token.NewIssuer(token.Options{
		AccessSecret:  d.Cfg.AccessSecret,
		RefreshSecret: d.Cfg.RefreshSecret,
		Issuer:        d.Cfg.Issuer,
		AccessTTL:     d.Cfg.AccessTokenTTL(),
		RefreshTTL:    d.Cfg.RefreshTokenTTL(),
	}, d.Logger)
	if err != nil {
		return nil, err
	}

	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(d.Logger, d.Cfg.IsDev())
	}

	registry := otp.NewRegistry(codes, credential.NewHasher(d.Cfg.OTPHashCost), d.Cfg.OTPTTL(), d.Logger)
	ledgerSvc := session.NewLedger(sessions, principals, issuer, d.Logger)
	return &Services{
		Sessions: ledgerSvc,
		Auth: auth.NewService(principals, registry, ledgerSvc, notifier, auth.Options{
			PhoneRegion: d.Cfg.PhoneRegion,
			OTPTTL:      d.Cfg.OTPTTL(),
		}, d.Logger),
		Wallet:   wallet.NewService(store, d.Cfg.DuplicateWindow, d.Logger),
		Identity: identity.NewService(principals, d.Logger),
	}, nil
}

// vendorExists mirrors the Postgres store, where only vendor rows carry a balance.
func vendorExists(principals identity.Repository) ledger.VendorCheck {
	return func(ctx context.Context, id string) (bool, error) {
		p, err := principals.FindByID(ctx, id)
		if errors.Is(err, identity.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return p.Kind == identity.KindVendor, nil
	}
}

// Setup builds the components, installs middleware and registers every route.
func Setup(app *fiber.App, d Deps) (*Services, error) {
	svc, err := Build(d)
	if err != nil {
		return nil, err
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	rateLimiter := middleware.OTPRateLimit(d.Cache, d.Cfg.OTPRatePerMinute, d.Logger)
	RegisterAuthRoutes(api, auth.NewHandler(svc.Auth), rateLimiter)

	authn := middleware.Authenticate(svc.Sessions)
	idempotency := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	RegisterMeRoute(api, authn, svc.Wallet)
	RegisterWalletRoutes(api, wallet.NewHandler(svc.Wallet, middleware.CurrentPrincipal), authn, idempotency)
	RegisterAdminRoutes(api, identity.NewHandler(svc.Identity, middleware.CurrentPrincipal), authn)

	return svc, nil
}
