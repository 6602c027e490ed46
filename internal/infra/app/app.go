package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-authz/internal/core/domain"
	"github.com/arklim/social-platform-authz/internal/core/port"
	"github.com/arklim/social-platform-authz/internal/infra/config"
	"github.com/arklim/social-platform-authz/internal/infra/database"
	kafkainfra "github.com/arklim/social-platform-authz/internal/infra/kafka"
	"github.com/arklim/social-platform-authz/internal/infra/logger"
	redisinfra "github.com/arklim/social-platform-authz/internal/infra/redis"
	"github.com/arklim/social-platform-authz/internal/infra/security"
	"github.com/arklim/social-platform-authz/internal/infra/telemetry"
	postgresrepo "github.com/arklim/social-platform-authz/internal/repository/postgres"
	redisrepo "github.com/arklim/social-platform-authz/internal/repository/redis"
	"github.com/arklim/social-platform-authz/internal/transport/http/middleware"
	"github.com/arklim/social-platform-authz/internal/transport/http/routes"
	"github.com/arklim/social-platform-authz/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
	tracer *telemetry.TracerProvider
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if _, err := telemetry.Attach(ctx, cfg); err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init tracer provider: %w", err)
		}
	}

	catalog, err := domain.DefaultCatalog()
	if err != nil {
		return nil, fmt.Errorf("build permission catalog: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	keyProvider, err := security.NewKeyProvider(cfg.App.Env, cfg.JWT.KeyDirectory)
	if err != nil {
		return nil, fmt.Errorf("init key provider: %w", err)
	}
	jwtManager := security.NewJWTManager(keyProvider)

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	effectiveCache := redisrepo.NewEffectivePermissionCache(redisClient.Client(), cfg.Redis.EffectivePrefix)
	effectiveTTL := cfg.Redis.EffectiveTTL
	if effectiveTTL <= 0 {
		effectiveTTL = 2 * time.Minute
	}

	repos := postgresrepo.NewRepositories(pool)

	// Initialize Kafka event publisher
	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	roleService := usecase.NewRoleService(catalog, repos.Roles, repos.Users, eventPublisher).
		WithLogger(log)
	permissionService := usecase.NewPermissionService(catalog, repos.Roles, repos.Users, eventPublisher).
		WithEffectiveCache(effectiveCache, effectiveTTL).
		WithLogger(log)
	tokenService, err := usecase.NewTokenService(cfg, jwtManager, keyProvider, permissionService)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("init token service: %w", err)
	}

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:     cfg,
		Logger:     log,
		JWTManager: jwtManager,
		Catalog:    catalog,
		Metrics:    httpMetrics,
		Database:   pool,
		Cache:      redisClient,
		Services: routes.ServiceSet{
			Roles:       roleService,
			Permissions: permissionService,
			Tokens:      tokenService,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
		tracer: tracer,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.tracer != nil {
			_ = a.tracer.Shutdown(context.Background())
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting authorization API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
