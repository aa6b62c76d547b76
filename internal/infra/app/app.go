package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/port"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/infra/config"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/infra/database"
	kafkainfra "github.com/Redactedcraft/Redactedcraft-sub000/internal/infra/kafka"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/infra/logger"
	redisinfra "github.com/Redactedcraft/Redactedcraft-sub000/internal/infra/redis"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/infra/security"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/repository/githost"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/repository/memory"
	postgresrepo "github.com/Redactedcraft/Redactedcraft-sub000/internal/repository/postgres"
	redisrepo "github.com/Redactedcraft/Redactedcraft-sub000/internal/repository/redis"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/transport/http/middleware"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/transport/http/routes"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/usecase"
)

// Application owns the wired service graph and the HTTP server lifecycle.
type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
}

// New wires the full service graph from configuration. Missing signing key
// or admin token disable the corresponding endpoint family instead of
// failing startup; a missing document backend fails fast.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if err := security.ConfigureArgon2(argonCfg); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	app := &Application{cfg: cfg, logger: log}

	identityStore, err := app.newDocumentStore(ctx, cfg.Identity.DocumentPath)
	if err != nil {
		return nil, fmt.Errorf("init identity store: %w", err)
	}

	// The allowlist only needs a store when a document source is selected.
	var allowlistStore port.VersionedStore
	source := strings.ToLower(strings.TrimSpace(cfg.Allowlist.Source))
	if source == "document" || source == "both" {
		allowlistStore, err = app.newDocumentStore(ctx, cfg.Allowlist.DocumentPath)
		if err != nil {
			return nil, fmt.Errorf("init allowlist store: %w", err)
		}
	}

	var rateLimiter *middleware.RateLimiter
	if cfg.Redis.Enabled {
		redisClient, err := redisinfra.NewClient(cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		app.redis = redisClient

		rateLimitWindow := cfg.RateLimit.WindowDuration
		if rateLimitWindow <= 0 {
			rateLimitWindow = time.Minute
		}
		rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
			KeyPrefix: "gate:rate-limit",
			TTL:       rateLimitWindow * 2,
		})
		rateLimiter = middleware.NewRateLimiter(rateLimitStore, log)
	} else {
		log.Info("redis disabled, rate limiting is off")
	}

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

	var authority *security.TicketAuthority
	if strings.TrimSpace(cfg.Ticket.SigningKey) != "" {
		authority, err = security.NewTicketAuthority(cfg.Ticket.SigningKey, cfg.Ticket.Issuer, cfg.Ticket.Audience, cfg.Ticket.Lifetime)
		if err != nil {
			return nil, fmt.Errorf("init ticket authority: %w", err)
		}
	} else {
		log.Warn("ticket signing key not configured, ticket endpoints disabled")
	}
	if cfg.Admin.Token == "" {
		log.Warn("admin token not configured, admin endpoints disabled")
	}

	allowlistService := usecase.NewAllowlistService(cfg.Allowlist, allowlistStore, log)
	ticketService := usecase.NewTicketService(authority, allowlistService, eventPublisher, log)

	identityService, err := usecase.NewIdentityService(cfg.Identity, identityStore, eventPublisher, log)
	if err != nil {
		return nil, fmt.Errorf("init identity service: %w", err)
	}

	presenceService := usecase.NewPresenceService(cfg.Presence, security.NewFriendCoder(cfg.Identity.FriendCodeKey), log)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Namespace: "gate"})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	app.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     metrics,
		Services: routes.ServiceSet{
			Tickets:    ticketService,
			Allowlist:  allowlistService,
			Identities: identityService,
			Presence:   presenceService,
		},
	})

	return app, nil
}

// newDocumentStore builds a versioned document store for the configured
// backend. The postgres pool is shared across stores.
func (a *Application) newDocumentStore(ctx context.Context, path string) (port.VersionedStore, error) {
	backend := strings.ToLower(strings.TrimSpace(a.cfg.Identity.Backend))
	switch backend {
	case "githost":
		return githost.NewStore(githost.Config{
			BaseURL: a.cfg.GitHost.BaseURL,
			Repo:    a.cfg.GitHost.Repo,
			Branch:  a.cfg.GitHost.Branch,
			Path:    path,
			Token:   a.cfg.GitHost.Token,
			Timeout: a.cfg.GitHost.Timeout,
		}, a.logger)
	case "postgres":
		if a.pool == nil {
			pool, err := database.NewPostgresPool(ctx, a.cfg.Postgres, a.logger)
			if err != nil {
				return nil, err
			}
			a.pool = pool
		}
		return postgresrepo.NewDocumentStore(a.pool, path), nil
	case "memory", "":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown document backend %q", backend)
	}
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
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

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting trust gateway",
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
