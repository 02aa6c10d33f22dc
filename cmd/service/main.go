package main

import (
	"context"
	"flag"
	"log"
	stdhttp "net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/policygate/internal/cache"
	"github.com/dropDatabas3/policygate/internal/config"
	httpx "github.com/dropDatabas3/policygate/internal/http"
	"github.com/dropDatabas3/policygate/internal/http/handlers"
	"github.com/dropDatabas3/policygate/internal/jwks"
	"github.com/dropDatabas3/policygate/internal/keys"
	"github.com/dropDatabas3/policygate/internal/observability/logger"
	"github.com/dropDatabas3/policygate/internal/policy"
	"github.com/dropDatabas3/policygate/internal/rate"
	"github.com/dropDatabas3/policygate/internal/store/core"
	fsdriver "github.com/dropDatabas3/policygate/internal/store/fs"
	pgdriver "github.com/dropDatabas3/policygate/internal/store/pg"
	"github.com/dropDatabas3/policygate/internal/token"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "ruta al YAML de configuración (opcional; sin él, solo env)")
	flag.Parse()

	// .env es opcional; en producción las vars vienen del entorno.
	_ = godotenv.Load()

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
	} else {
		cfg = config.FromEnv()
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "policygate",
	})
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	// Storage: claves de firma + estados de training.
	var (
		keyStore    core.KeyRecordStore
		statusStore core.TrainingStatusStore
		pinger      core.Pinger
	)
	switch cfg.Storage.Driver {
	case "pg":
		pgStore, err := pgdriver.New(ctx, cfg.Storage.DSN, cfg.Keys.RecordName)
		if err != nil {
			logger.L().Fatal("no se pudo conectar a postgres", logger.Err(err))
		}
		defer pgStore.Close()
		keyStore, statusStore, pinger = pgStore, pgStore, pgStore
	case "fs":
		ks := fsdriver.NewKeyStore(cfg.Storage.FSRoot, cfg.Keys.RecordName)
		keyStore = ks
		statusStore = fsdriver.NewStatusStore(cfg.Storage.FSRoot)
		pinger = ks
	}

	// Cache compartido (key-set remoto; redis también alimenta el limiter).
	cacheClient, err := cache.New(cache.Config{
		Kind:       cfg.Cache.Kind,
		Addr:       cfg.Cache.Redis.Addr,
		Password:   cfg.Cache.Redis.Password,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: cfg.Cache.Memory.DefaultTTL,
	})
	if err != nil {
		logger.L().Fatal("no se pudo crear el cache", logger.Err(err))
	}
	defer func() { _ = cacheClient.Close() }()

	// Claves propias del gateway.
	mgr := keys.NewManager(keyStore, keys.Custody(cfg.Keys.Custody), keys.EnvSecretSource{})
	if _, err := mgr.EnsureKeyPair(ctx); err != nil {
		logger.L().Fatal("no se pudo asegurar el par de claves", logger.Err(err))
	}

	// Resolver del key-set remoto del plano de control.
	resolver := jwks.NewResolver(
		cfg.JWKSEndpoint(),
		cacheClient,
		cfg.ControlPlane.CacheTTL,
		jwks.WithDoer(&stdhttp.Client{Timeout: cfg.ControlPlane.FetchTimeout}),
		jwks.WithFetchObserver(httpx.RecordJWKSFetch),
	)

	verifier := token.NewVerifier(resolver, cfg.ControlPlane.Audience)
	evaluator := policy.NewEvaluator(statusStore)
	signer := token.NewSigner(mgr, cfg.Keys.DecisionTTL)

	metricsHandler, err := httpx.RegisterMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		logger.L().Fatal("no se pudieron registrar métricas", logger.Err(err))
	}

	var decideLimiter, keysLimiter rate.Limiter
	if cfg.Rate.Enabled {
		decideLimiter = newLimiter(cacheClient, "rl:decide:", cfg.Rate.Decide.Limit, cfg.Rate.Decide.Window)
		keysLimiter = newLimiter(cacheClient, "rl:keys:", cfg.Rate.Keys.Limit, cfg.Rate.Keys.Window)
	}

	router := httpx.NewRouter(httpx.RouterDeps{
		Decision:      handlers.NewDecisionHandler(verifier, evaluator, signer, cfg.App.Debug),
		Keys:          handlers.NewKeysHandler(mgr),
		Healthz:       stdhttp.HandlerFunc(handlers.Healthz),
		Readyz:        handlers.Readyz(pinger),
		Metrics:       metricsHandler,
		DecideLimiter: decideLimiter,
		KeysLimiter:   keysLimiter,
	})

	logger.L().Info("gateway escuchando",
		logger.String("addr", cfg.Server.Addr),
		logger.String("storage", cfg.Storage.Driver),
		logger.String("custody", cfg.Keys.Custody),
	)
	if err := httpx.Start(cfg.Server.Addr, router); err != nil {
		logger.L().Fatal("server terminó con error", logger.Err(err))
	}
}

// newLimiter usa redis si el cache lo expone; si no, ventana fija en
// memoria (suficiente para single-instance).
func newLimiter(c cache.Client, prefix string, max int, window time.Duration) rate.Limiter {
	type redisBacked interface{ Underlying() *rdb.Client }
	if rb, ok := c.(redisBacked); ok {
		return rate.NewRedisLimiter(rb.Underlying(), prefix, max, window)
	}
	return rate.NewMemoryLimiter(max, window)
}
