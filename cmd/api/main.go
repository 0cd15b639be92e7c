package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"

	"github.com/newsdesk/service-core/internal/identity"
	"github.com/newsdesk/service-core/internal/oauth"
	"github.com/newsdesk/service-core/internal/oidc"
	oidcrepo "github.com/newsdesk/service-core/internal/oidc/repo"
	"github.com/newsdesk/service-core/internal/router"
	"github.com/newsdesk/service-core/internal/setting"
	settingrepo "github.com/newsdesk/service-core/internal/setting/repo"
	"github.com/newsdesk/service-core/internal/subscriber"
	subscriberrepo "github.com/newsdesk/service-core/internal/subscriber/repo"
	"github.com/newsdesk/service-core/internal/user"
	userrepo "github.com/newsdesk/service-core/internal/user/repo"
	"github.com/newsdesk/service-core/pkg/cache"
	"github.com/newsdesk/service-core/pkg/database"
	"github.com/newsdesk/service-core/pkg/metrics"
	"github.com/newsdesk/service-core/pkg/utilities"
)

func main() {
	// best-effort: real env wins when no .env exists
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting newsroom service-core")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqlxDB, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlxDB.Close()

	rdb, err := cache.Connect(cache.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("redis connect: %v", err)
	}
	defer rdb.Close()

	checks := map[string]func(context.Context) error{
		"postgres": sqlxDB.PingContext,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}

	accounts, mongoClient, err := openAccountStore(ctx, sqlxDB, sugar)
	if err != nil {
		sugar.Fatalf("account store: %v", err)
	}
	if mongoClient != nil {
		checks["mongo"] = func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }
	}

	refreshRepo := oidcrepo.NewRefreshRepo(sqlxDB)
	settingRepo := settingrepo.NewRepo(sqlxDB)
	subscriberRepo := subscriberrepo.NewSubscriberRepo(sqlxDB)
	for name, ensure := range map[string]func(context.Context) error{
		"oidc_refresh_sessions": refreshRepo.EnsureTable,
		"settings":              settingRepo.EnsureTable,
		"subscribers":           subscriberRepo.EnsureTable,
	} {
		if err := ensure(ctx); err != nil {
			sugar.Fatalf("ensure table %s: %v", name, err)
		}
	}

	m := metrics.New()

	tokens, err := oidc.NewService(oidc.ConfigFromEnv(), refreshRepo)
	if err != nil {
		sugar.Fatalf("oidc: %v", err)
	}

	userSvc := user.NewService(accounts, user.BcryptHasher{Cost: user.DefaultHashCost}, sugar)
	resolver := identity.NewResolver(accounts, sugar.Named("identity"), identity.WithRecorder(m))

	oauthCfg := oauth.ConfigFromEnv()
	var providers []oauth.Provider
	if oauthCfg.GoogleEnabled() {
		g, err := oauth.NewGoogle(ctx, oauthCfg.Google)
		if err != nil {
			sugar.Fatalf("google provider: %v", err)
		}
		providers = append(providers, g)
	}
	registry := oauth.NewRegistry(providers...)
	sugar.Infow("oauth providers", "names", registry.Names())

	settingSvc := setting.NewService(settingRepo, setting.NewCache(rdb, durationEnv("SETTINGS_CACHE_TTL", time.Minute)), sugar.Named("setting"))

	handler := router.RegisterRoutes(router.Deps{
		Logger:      sugar,
		Metrics:     m,
		Tokens:      tokens,
		OIDC:        oidc.NewHandler(tokens, userSvc, userSvc, sugar.Named("oidc")),
		OAuth:       oauth.NewHandler(registry, oauth.NewFlowStore(rdb), resolver, tokens, oauthCfg, sugar.Named("oauth")),
		Users:       user.NewHandler(userSvc, tokens, sugar.Named("user")),
		Settings:    setting.NewHandler(settingSvc, sugar.Named("setting")),
		SettingSvc:  settingSvc,
		Subscribers: subscriber.NewHandler(subscriber.NewService(subscriberRepo, sugar), sugar.Named("subscriber")),
		Checks:      checks,
	})

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = "0.0.0.0:8431"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	go pruneRefreshSessions(ctx, tokens, sugar)

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	if mongoClient != nil {
		if err := mongoClient.Disconnect(doneCtx); err != nil {
			sugar.Warnf("mongo disconnect failed: %v", err)
		}
	}
	sugar.Info("goodbye")
}

// openAccountStore picks the account backend from ACCOUNT_STORE
// (postgres, the default, or mongo).
func openAccountStore(ctx context.Context, db *sqlx.DB, logger *zap.SugaredLogger) (userrepo.Store, *mongo.Client, error) {
	switch kind := os.Getenv("ACCOUNT_STORE"); kind {
	case "", "postgres":
		r := userrepo.NewUserRepo(db)
		if err := r.EnsureTable(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure users table: %w", err)
		}
		logger.Info("accounts stored in postgres")
		return r, nil, nil
	case "mongo":
		client, mdb, err := database.ConnectMongo(database.MongoConfigFromEnv())
		if err != nil {
			return nil, nil, err
		}
		r := userrepo.NewMongoRepo(mdb)
		if err := r.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, fmt.Errorf("ensure users indexes: %w", err)
		}
		logger.Info("accounts stored in mongo")
		return r, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown ACCOUNT_STORE %q", kind)
	}
}

func pruneRefreshSessions(ctx context.Context, tokens *oidc.Service, logger *zap.SugaredLogger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := tokens.PruneExpired(ctx)
			if err != nil {
				logger.Warnw("prune refresh sessions failed", "err", err)
				continue
			}
			if n > 0 {
				logger.Infow("pruned refresh sessions", "count", n)
			}
		}
	}
}

func durationEnv(name string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(name)); err == nil && d > 0 {
		return d
	}
	return def
}
