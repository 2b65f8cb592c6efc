package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	roleshandler "github.com/loopcollab/loop-saas/domains/roles/be/handler"
	rolesservice "github.com/loopcollab/loop-saas/domains/roles/be/service"
	tenantshandler "github.com/loopcollab/loop-saas/domains/tenants/be/handler"
	tenantsservice "github.com/loopcollab/loop-saas/domains/tenants/be/service"
	usershandler "github.com/loopcollab/loop-saas/domains/users/be/handler"
	usersservice "github.com/loopcollab/loop-saas/domains/users/be/service"
	platformauth "github.com/loopcollab/loop-saas/platform/go/auth"
	"github.com/loopcollab/loop-saas/platform/go/authz"
	"github.com/loopcollab/loop-saas/platform/go/docstore"
	"github.com/loopcollab/loop-saas/platform/go/gcp"
	"github.com/loopcollab/loop-saas/platform/go/identity"
	platformlogging "github.com/loopcollab/loop-saas/platform/go/logging"
	platformmiddleware "github.com/loopcollab/loop-saas/platform/go/middleware"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	Dev             bool          `env:"DEV" envDefault:"false"`

	DatabaseURL string `env:"DATABASE_URL,required"`

	// AuthProvider selects the identity backend: "firebase" verifies signed
	// tokens against the directory; "unsigned" accepts unsigned dev tokens
	// backed by an in-memory directory.
	AuthProvider            string `env:"AUTH_PROVIDER" envDefault:"firebase"`
	FirebaseCredentialsFile string `env:"FIREBASE_CREDENTIALS_FILE"`
}

func main() {
	ctx := context.Background()

	cfg := config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("parse environment: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component:   "api-server",
		Level:       cfg.LogLevel,
		Development: cfg.Dev,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	pool, err := docstore.NewPool(ctx, docstore.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init connection pool", zap.Error(err))
	}
	defer docstore.ClosePool(pool)

	if err := docstore.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("ensure schema", zap.Error(err))
	}

	tenantStore, err := docstore.NewTenantStore(pool)
	if err != nil {
		logger.Fatal("init tenant store", zap.Error(err))
	}
	roleStore, err := docstore.NewRoleStore(pool)
	if err != nil {
		logger.Fatal("init role store", zap.Error(err))
	}
	businessUnitStore, err := docstore.NewBusinessUnitStore(pool)
	if err != nil {
		logger.Fatal("init business unit store", zap.Error(err))
	}
	userStore, err := docstore.NewUserStore(pool)
	if err != nil {
		logger.Fatal("init user store", zap.Error(err))
	}
	opsLogStore, err := docstore.NewOperationsLogStore(pool)
	if err != nil {
		logger.Fatal("init operations log store", zap.Error(err))
	}
	attemptStore, err := docstore.NewAttemptStore(pool)
	if err != nil {
		logger.Fatal("init attempt store", zap.Error(err))
	}

	directory, verify := buildIdentity(ctx, cfg, logger)

	gate := authz.NewGate(userStore, reverifyAgainstDirectory(directory), logger)

	migrationState := &rolesservice.MigrationState{}
	roleEngine := rolesservice.NewEngine(roleStore, migrationState, logger)
	if updated, err := roleEngine.RunStartup(ctx); err != nil {
		logger.Fatal("startup role migration", zap.Error(err))
	} else if updated > 0 {
		logger.Info("startup role migration applied", zap.Int("roles", updated))
	}

	tenantService := tenantsservice.New(
		tenantStore,
		roleStore,
		businessUnitStore,
		userStore,
		opsLogStore,
		attemptStore,
		directory,
		gate,
		logger,
		tenantsservice.Options{},
	)
	if resumed, err := tenantService.ResumeFailedAttempts(ctx); err != nil {
		logger.Error("resume failed provisioning attempts", zap.Error(err))
	} else if resumed > 0 {
		logger.Info("resumed failed provisioning attempts", zap.Int("attempts", resumed))
	}
	tenantHTTPHandler := tenantshandler.New(tenantService, logger)

	userService := usersservice.New(
		userStore,
		roleStore,
		businessUnitStore,
		tenantStore,
		opsLogStore,
		directory,
		gate,
		logger,
	)
	userHTTPHandler := usershandler.New(userService, logger)

	rolesHTTPHandler := roleshandler.New(roleEngine, gate, logger)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	apiRouter := chi.NewRouter()
	apiRouter.Use(platformauth.JWT(verify, platformauth.DefaultCredentialExtractor))
	apiRouter.Use(platformmiddleware.RequestTrace)

	tenantHTTPHandler.Register(apiRouter)
	userHTTPHandler.Register(apiRouter)
	rolesHTTPHandler.Register(apiRouter)

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildIdentity selects the principal directory and token verifier for the
// configured auth provider.
func buildIdentity(ctx context.Context, cfg config, logger *zap.Logger) (identity.Directory, platformauth.VerifyFunc) {
	switch cfg.AuthProvider {
	case "firebase":
		_, fbAuth, err := gcp.InitFirebaseAuth(ctx, cfg.FirebaseCredentialsFile)
		if err != nil {
			logger.Fatal("init firebase auth", zap.Error(err))
		}
		return identity.NewFirebaseDirectory(fbAuth), platformauth.FirebaseTokenVerifier(fbAuth)
	case "unsigned":
		logger.Warn("auth provider set to unsigned; dev use only")
		return identity.NewMemoryDirectory(), platformauth.UnsignedTokenVerifier()
	default:
		logger.Fatal("invalid AUTH_PROVIDER (use firebase or unsigned)", zap.String("provider", cfg.AuthProvider))
		return nil, nil
	}
}

// reverifyAgainstDirectory confirms the caller's principal still exists before
// a sensitive self-service operation proceeds.
func reverifyAgainstDirectory(dir identity.Directory) authz.Reverifier {
	return func(ctx context.Context, creds *platformauth.Credentials) error {
		_, err := dir.GetPrincipal(ctx, creds.ID)
		return err
	}
}
