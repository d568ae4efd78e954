// Command goshield-server serves the goShield HTTP API.
//
// Configuration comes from the environment, optionally seeded from a .env file:
//
//	PORT          listen port (8080)
//	JWT_SECRET    HS256 signing key, at least 32 bytes (required)
//	STORE         memory | mongo | postgres (memory)
//	MONGO_URI     MongoDB connection string
//	MONGO_DB      MongoDB database name (goshield)
//	DATABASE_URL  PostgreSQL DSN for STORE=postgres
//	REDIS_URL     redis:// URL; when set, tokens and rate limits live in Redis
//	CORS_ORIGINS  comma separated allowed origins
//	LOG_LEVEL     debug | info | warn | error
//	PRODUCTION    enables HSTS and secure cookies
//	TRUST_PROXY   honour X-Forwarded-For and X-Real-IP
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goShield "github.com/MrEthical07/goShield"
	"github.com/MrEthical07/goShield/httpapi"
	"github.com/MrEthical07/goShield/store/mongo"
	"github.com/MrEthical07/goShield/store/postgres"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg, err := loadSettings(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg settings, logger *slog.Logger) error {
	engineCfg := goShield.DefaultConfig()
	engineCfg.JWT.PrivateKey = []byte(cfg.JWTSecret)
	if cfg.AccessTTL > 0 {
		engineCfg.JWT.AccessTTL = cfg.AccessTTL
	}
	engineCfg.HTTP.Production = cfg.Production
	engineCfg.HTTP.TrustProxy = cfg.TrustProxy
	engineCfg.Metrics.Enabled = true
	engineCfg.Metrics.EnableLatencyHistograms = true

	builder := goShield.New().
		WithConfig(engineCfg).
		WithLogger(logger).
		WithMailer(goShield.LogMailer{Logger: logger})

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer func() { _ = client.Close() }()
		builder = builder.WithRedis(client)
		logger.Info("redis state backend", "addr", opts.Addr)
	}

	closeStore, err := attachStore(ctx, cfg, builder, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	for _, w := range engine.SecurityReport().Warnings {
		logger.Warn("security configuration", "warning", w)
	}

	api := httpapi.New(engine, httpapi.Options{RefreshCookie: true})

	root := chi.NewRouter()
	root.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-CSRF-Token", "X-Request-ID"},
		ExposedHeaders:   []string{"X-CSRF-Token", "X-Request-ID", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	root.Mount("/", api.Handler())

	go engine.Run(ctx)
	go api.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "store", cfg.Store)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownWait)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// attachStore wires the persistent user and account store named by STORE.
func attachStore(ctx context.Context, cfg settings, b *goShield.Builder, logger *slog.Logger) (func(), error) {
	switch cfg.Store {
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		s, err := mongo.Connect(connectCtx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := s.EnsureIndexes(connectCtx); err != nil {
			logger.Warn("mongo indexes not ensured", "error", err)
		}
		b.WithUserStore(s).WithAccountStore(s)
		return func() { _ = s.Close(context.Background()) }, nil

	case "postgres":
		s, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		b.WithUserStore(s).WithAccountStore(s)
		return func() { _ = s.Close() }, nil
	}
	return func() {}, nil
}
