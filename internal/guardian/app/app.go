package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	httpapi "github.com/guardianhq/guardian/internal/guardian/http"
	"github.com/guardianhq/guardian/internal/guardian/service"
	"github.com/guardianhq/guardian/internal/guardian/store"
	redisdriver "github.com/guardianhq/guardian/internal/guardian/store/drivers/redis"
	"github.com/guardianhq/guardian/internal/guardian/store/drivers/sqlite"
	"github.com/guardianhq/guardian/pkg/cryptox"
	"github.com/guardianhq/guardian/pkg/jwtx"
	"github.com/guardianhq/guardian/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application encapsulates the guardian service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db     store.Store
	tokens store.AccessTokens // non-nil only for the redis token store
	redis  *goredis.Client

	signer   jwtx.Signer
	verifier jwtx.Verifier

	engine              *service.AuthorizationEngine
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized. A config
// the service cannot run with fails here, before anything is listening.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "guardian",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initTokenStore(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.initSigning(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("guardian starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"algorithm", app.cfg.Algorithm,
		"grants", app.cfg.EnabledGrants,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains in-flight requests within the grace period and releases
// resources.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down guardian...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("guardian stopped")
	return nil
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initTokenStore wires the optional redis access-token store. The sqlite
// backend needs nothing extra; token records live in the main database.
func (app *Application) initTokenStore() error {
	if app.cfg.TokenStore != TokenStoreRedis {
		return nil
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: app.cfg.RedisAddr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("failed to reach redis at %s: %w", app.cfg.RedisAddr, err)
	}

	app.redis = rdb
	app.tokens = redisdriver.NewAccessTokenCache(rdb, "guardian")
	app.logger.Info("redis token store enabled", "addr", app.cfg.RedisAddr)
	return nil
}

// initSigning builds the signer/verifier pair for the configured algorithm.
// Missing key material fails startup.
func (app *Application) initSigning() error {
	switch app.cfg.Algorithm {
	case "HS256":
		secret := []byte(app.cfg.SecretKey)

		signer, err := jwtx.NewSignerHS256("hs256-1", secret)
		if err != nil {
			return fmt.Errorf("failed to build HS256 signer: %w", err)
		}
		verifier, err := jwtx.NewVerifierHS256(secret, app.cfg.Issuer)
		if err != nil {
			return fmt.Errorf("failed to build HS256 verifier: %w", err)
		}

		app.signer = signer
		app.verifier = verifier

	case "RS256":
		pemKey, err := os.ReadFile(app.cfg.RSAKeyPath)
		if err != nil {
			return fmt.Errorf("failed to read RSA key %s: %w", app.cfg.RSAKeyPath, err)
		}

		signer, err := jwtx.NewSignerRS256("rs256-1", pemKey)
		if err != nil {
			return fmt.Errorf("failed to build RS256 signer: %w", err)
		}
		rs, ok := signer.(*jwtx.RS256Signer)
		if !ok {
			return fmt.Errorf("unexpected RS256 signer type %T", signer)
		}
		verifier, err := jwtx.NewVerifierRS256(rs.PublicKey(), app.cfg.Issuer)
		if err != nil {
			return fmt.Errorf("failed to build RS256 verifier: %w", err)
		}

		app.signer = signer
		app.verifier = verifier

	default:
		return fmt.Errorf("unknown signing algorithm %q", app.cfg.Algorithm)
	}

	return nil
}

func (app *Application) initServices() {
	policyTokens := app.tokens
	if policyTokens == nil {
		policyTokens = app.db.AccessTokens()
	}

	app.engine = &service.AuthorizationEngine{
		Store:  app.db,
		Tokens: app.tokens,
		Authenticator: &service.GrantAuthenticator{
			Verifier: &service.StoreVerifier{
				Store:             app.db,
				AssertionVerifier: app.verifier,
			},
		},
		Policy: &service.TokenPolicy{
			Config: service.PolicyConfig{
				AccessTTL:         app.cfg.AccessTTL,
				RefreshTTL:        app.cfg.RefreshTTL,
				ReuseAccessToken:  app.cfg.ReuseAccessToken,
				IssueRefreshToken: app.cfg.IssueRefreshToken,
			},
			Tokens: policyTokens,
		},
		Claims: &service.ClaimsBuilder{
			Store:  app.db,
			Issuer: app.cfg.Issuer,
		},
		Signer:        app.signer,
		Verifier:      app.verifier,
		EnabledGrants: app.cfg.EnabledGrantSet(),
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.tokens,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.engine,
		app.signer,
		app.cfg.Realm,
		BuildVersion,
		app.db,
		app.logger,
	)
	router.ApplyRoutes()

	app.router = router
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
