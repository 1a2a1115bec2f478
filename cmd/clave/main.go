package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/clave/internal/auth"
	"github.com/dropDatabas3/clave/internal/cache"
	"github.com/dropDatabas3/clave/internal/config"
	"github.com/dropDatabas3/clave/internal/domain/repository"
	"github.com/dropDatabas3/clave/internal/email"
	httpserver "github.com/dropDatabas3/clave/internal/http"
	"github.com/dropDatabas3/clave/internal/metrics"
	"github.com/dropDatabas3/clave/internal/observability/logger"
	"github.com/dropDatabas3/clave/internal/oidc/jwks"
	"github.com/dropDatabas3/clave/internal/oidc/metadata"
	"github.com/dropDatabas3/clave/internal/oidc/provider"
	"github.com/dropDatabas3/clave/internal/rate"
	"github.com/dropDatabas3/clave/internal/resilience"
	"github.com/dropDatabas3/clave/internal/security/password"
	"github.com/dropDatabas3/clave/internal/store/memory"
	"github.com/dropDatabas3/clave/internal/store/pg"
	"github.com/dropDatabas3/clave/internal/token"
	"github.com/dropDatabas3/clave/internal/warmup"
	migrations "github.com/dropDatabas3/clave/migrations/postgres"
)

var version = "dev"

func main() {
	// .env es best-effort: en prod todo viene del entorno real.
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:     "clave",
		Short:   "Servicio de identidad federada (OIDC) y tokens propios",
		Version: version,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "ruta del archivo de configuración")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	root.AddCommand(serve)

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones de postgres y sale",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), configPath)
		},
	}
	root.AddCommand(migrate)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "clave",
		Version:     version,
	})
	defer logger.Sync()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// El secret corto es fatal: preferimos no arrancar a firmar débil.
	issuer, err := token.NewIssuer(token.Config{
		Issuer:     cfg.JWT.Issuer,
		Audiences:  cfg.JWT.Audiences,
		Secret:     []byte(cfg.JWT.Secret),
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
	})
	if err != nil {
		log.Fatal("jwt issuer", logger.Err(err))
	}

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		log.Fatal("metrics", logger.Err(err))
	}

	cacheClient, err := cache.New(cache.Config{
		Kind:   cfg.Cache.Kind,
		Addr:   cfg.Cache.Redis.Addr,
		DB:     cfg.Cache.Redis.DB,
		Prefix: cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		log.Fatal("cache", logger.Err(err))
	}
	defer cacheClient.Close()

	caller := resilience.NewCaller(resilience.Config{
		MaxRetries:       cfg.Resilience.MaxRetries,
		BreakerThreshold: uint32(cfg.Resilience.BreakerThreshold),
		BreakerCooldown:  cfg.BreakerCooldown(),
		OnStateChange: func(key, from, to string) {
			if to == "open" {
				metrics.BreakerOpens.WithLabelValues(key).Inc()
			}
		},
	})

	hc := &http.Client{Timeout: cfg.HTTPTimeout()}

	issuers := make(map[string]string, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		if pc.Enabled {
			issuers[name] = pc.IssuerURI
		}
	}
	metaResolver := metadata.NewResolver(metadata.Config{
		Issuers:    issuers,
		Cache:      cacheClient,
		Caller:     caller,
		HTTPClient: hc,
	})
	keysResolver := jwks.NewResolver(jwks.Config{
		Metadata:   metaResolver,
		Cache:      cacheClient,
		Caller:     caller,
		HTTPClient: hc,
	})

	adapters := make([]provider.Adapter, 0, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		creds := provider.Credentials{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURI:  pc.RedirectURI,
		}
		switch provider.Type(name) {
		case provider.Google:
			adapters = append(adapters, provider.NewGoogle(creds, metaResolver, keysResolver, hc, caller))
		case provider.Kakao:
			adapters = append(adapters, provider.NewKakao(creds, metaResolver, keysResolver, hc, caller))
		default:
			log.Warn("provider desconocido en config, ignorado", logger.Provider(name))
		}
	}
	registry := provider.NewRegistry(adapters...)

	var (
		users  repository.UserRepository
		social repository.SocialAccountRepository
	)
	switch cfg.Storage.Driver {
	case "postgres":
		store, err := pg.New(ctx, cfg.Storage.DSN)
		if err != nil {
			log.Fatal("postgres", logger.Err(err))
		}
		defer store.Close()
		if err := store.Migrate(ctx, migrations.FS); err != nil {
			log.Fatal("migrations", logger.Err(err))
		}
		users, social = store.Users(), store.Social()
	default:
		store := memory.New()
		users, social = store.Users(), store.Social()
		log.Warn("storage en memoria: solo para desarrollo")
	}

	var mailer email.Sender = email.NopSender{}
	if cfg.SMTP.Host != "" {
		mailer = email.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.User, cfg.SMTP.Pass)
	}

	reconcile := auth.NewReconcileService(auth.ReconcileDeps{Users: users, Social: social})
	socialLogin := auth.NewSocialLoginService(auth.SocialLoginDeps{
		Registry:  registry,
		Reconcile: reconcile,
		Tokens:    issuer,
	})
	refresh := auth.NewRefreshService(auth.RefreshDeps{Tokens: issuer, Users: users})
	credentials := auth.NewCredentialsService(auth.CredentialsDeps{
		Users:  users,
		Hasher: password.NewHasher(),
		Tokens: issuer,
		Mailer: mailer,
	})

	if cfg.Warmup.Enabled {
		sched := &warmup.Scheduler{
			Metadata: metaResolver,
			JWKS:     keysResolver,
			Interval: cfg.WarmupInterval(),
		}
		go sched.Run(logger.ToContext(ctx, log))
	}

	var limiter httpserver.Middleware
	if cfg.RateLimit.Enabled {
		var l rate.Limiter
		if cfg.Cache.Kind == "redis" {
			l = rate.NewRedisLimiter(rdb.NewClient(&rdb.Options{
				Addr: cfg.Cache.Redis.Addr,
				DB:   cfg.Cache.Redis.DB,
			}), cfg.Cache.Redis.Prefix+"rl:", cfg.RateLimit.Max, cfg.RateLimitWindow())
		} else {
			l = rate.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimitWindow())
		}
		limiter = httpserver.WithRateLimit(l)
	}

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Handlers: &httpserver.Handlers{
			Credentials: credentials,
			Social:      socialLogin,
			Refresh:     refresh,
			Reconcile:   reconcile,
			Tokens:      issuer,
			Users:       users,
		},
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		RateLimit: limiter,
	})

	log.Info("starting http server",
		logger.String("addr", cfg.Server.Addr),
		logger.Count(len(adapters)),
	)
	return httpserver.Serve(ctx, cfg.Server.Addr, router)
}

func runMigrate(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Storage.Driver != "postgres" {
		return fmt.Errorf("migrate: storage.driver debe ser postgres")
	}
	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "clave", Version: version})
	defer logger.Sync()

	store, err := pg.New(ctx, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Migrate(ctx, migrations.FS)
}
