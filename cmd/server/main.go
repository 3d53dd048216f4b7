package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Skotchmaster/usergate/internal/config"
	"github.com/Skotchmaster/usergate/internal/db"
	"github.com/Skotchmaster/usergate/internal/domain"
	"github.com/Skotchmaster/usergate/internal/es"
	"github.com/Skotchmaster/usergate/internal/handlers"
	"github.com/Skotchmaster/usergate/internal/hash"
	"github.com/Skotchmaster/usergate/internal/logging"
	mwauth "github.com/Skotchmaster/usergate/internal/middleware/auth"
	loggingmw "github.com/Skotchmaster/usergate/internal/middleware/logging"
	"github.com/Skotchmaster/usergate/internal/models"
	"github.com/Skotchmaster/usergate/internal/mykafka"
	"github.com/Skotchmaster/usergate/internal/policy"
	"github.com/Skotchmaster/usergate/internal/repo"
	"github.com/Skotchmaster/usergate/internal/revocation"
	"github.com/Skotchmaster/usergate/internal/service"
	"github.com/Skotchmaster/usergate/internal/service/search"
	"github.com/Skotchmaster/usergate/internal/tokens"
	httpserver "github.com/Skotchmaster/usergate/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}

	l := logging.New(cfg.LogLevel)
	slog.SetDefault(l)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, l)

	if err := run(ctx, cfg, l); err != nil {
		l.Error("server_exit", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, l *slog.Logger) error {
	gdb, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(gdb); err != nil {
			l.Error("db_close_error", "error", err)
		}
	}()
	if err := db.Migrate(ctx, gdb); err != nil {
		return err
	}

	checks := map[string]httpserver.Checker{
		"db": func(ctx context.Context) error { return db.Ping(ctx, gdb) },
	}

	store, closeStore, err := revocationStore(ctx, cfg, gdb, checks)
	if err != nil {
		return err
	}
	defer closeStore()
	guard := revocation.NewGuard(store, cfg.RevocationTimeout)

	codec, err := tokens.NewCodec(cfg.JWTSecret, cfg.JWTAlgorithm, tokens.WithTTL(cfg.AccessTTL))
	if err != nil {
		return err
	}

	userRepo := &repo.GormRepo{DB: gdb}
	hasher := hash.Bcrypt{Cost: bcrypt.DefaultCost}
	grants := policy.New(userRepo)

	sessions := &service.SessionManager{
		Users:         userRepo,
		Hasher:        hasher,
		Codec:         codec,
		Revocations:   guard,
		TTL:           cfg.AccessTTL,
		LookupTimeout: cfg.LookupTimeout,
	}
	users := &service.UserService{Repo: userRepo, Hasher: hasher}

	if len(cfg.KafkaBrokers) > 0 {
		prod, err := mykafka.NewProducer(cfg.KafkaBrokers, l)
		if err != nil {
			return err
		}
		defer func() {
			if err := prod.Close(); err != nil {
				l.Error("kafka_close_error", "error", err)
			}
		}()
		sessions.Events = prod
		users.Events = prod
	}

	var searcher search.Searcher = search.SearcherFunc(userRepo.SearchUsers)
	if cfg.ESURL != "" {
		client, err := es.NewClient(ctx, es.Config{URL: cfg.ESURL, User: cfg.ESUser, Password: cfg.ESPassword})
		if err != nil {
			return err
		}
		index := search.NewUserIndex(client, search.DefaultIndex)
		users.Index = index
		searcher = index
	}

	if err := bootstrap(ctx, cfg, userRepo, hasher); err != nil {
		return err
	}
	if users.Index != nil {
		n, err := users.Reindex(ctx)
		if err != nil {
			l.Error("reindex_failed", "indexed", n, "error", err)
		} else {
			l.Info("reindex_done", "indexed", n)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), middleware.Secure(), loggingmw.RequestLogger(l))

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler:       &handlers.AuthHandler{Sessions: sessions},
		UserHandler:       &handlers.UserHandler{Users: users},
		PermissionHandler: &handlers.PermissionHandler{Grants: grants},
		SearchHandler:     handlers.NewSearchHandler(searcher),
		Auth:              mwauth.New(sessions, grants),
		Revocations:       guard,
		Checks:            checks,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	l.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("server_shutdown_error", "error", err)
	}
	l.Info("shutdown complete")
	return nil
}

// revocationStore builds the configured blacklist backend and registers its
// readiness probe. The db backend also starts the expiry sweeper.
func revocationStore(ctx context.Context, cfg config.Config, gdb *gorm.DB, checks map[string]httpserver.Checker) (revocation.Store, func(), error) {
	l := logging.FromContext(ctx).With("svc", "revocation", "backend", cfg.RevocationBackend)

	switch cfg.RevocationBackend {
	case "redis":
		client, err := revocation.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		store := revocation.NewRedisStore(client)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			l.Warn("redis_unreachable", "policy", "fail_open", "error", err)
		}
		checks["redis"] = store.Ping
		return store, func() { closeRedis(l, client) }, nil

	case "db":
		store := revocation.NewGormStore(gdb)
		go (&revocation.Sweeper{Store: store, Interval: cfg.SweepInterval, Logger: l}).Run(ctx)
		return store, func() {}, nil

	default:
		store := revocation.NewMemoryStore(revocation.MemoryConfig{})
		go (&revocation.Sweeper{Store: store, Interval: cfg.SweepInterval, Logger: l}).Run(ctx)
		l.Warn("memory_revocation_store", "note", "revocations are lost on restart and not shared between instances")
		return store, func() {}, nil
	}
}

func closeRedis(l *slog.Logger, client *redis.Client) {
	if err := client.Close(); err != nil {
		l.Error("redis_close_error", "error", err)
	}
}

// bootstrap seeds the first admin. An existing user with the same name is
// left untouched.
func bootstrap(ctx context.Context, cfg config.Config, r *repo.GormRepo, hasher hash.Bcrypt) error {
	l := logging.FromContext(ctx).With("svc", "bootstrap")

	if !cfg.BootstrapAdmin() {
		return nil
	}
	pw, err := hasher.Hash(cfg.AdminPassword)
	if err != nil {
		return err
	}
	email := cfg.AdminEmail
	if email == "" {
		email = cfg.AdminUsername + "@localhost"
	}
	created, err := r.EnsureUser(ctx, &models.User{
		Username:     cfg.AdminUsername,
		Email:        email,
		PasswordHash: pw,
		Role:         string(domain.RoleAdmin),
	})
	if err != nil {
		return err
	}
	if created {
		l.Info("admin_created", "username", cfg.AdminUsername)
	}
	return nil
}
