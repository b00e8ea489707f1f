package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	internalhttp "github.com/EternisAI/silo-runners/internal/api/http"
	"github.com/EternisAI/silo-runners/internal/auth"
	"github.com/EternisAI/silo-runners/internal/bootstrap"
	"github.com/EternisAI/silo-runners/internal/db"
	grpcserver "github.com/EternisAI/silo-runners/internal/grpc/server"
	"github.com/EternisAI/silo-runners/internal/issuance"
	"github.com/EternisAI/silo-runners/internal/metrics"
	"github.com/EternisAI/silo-runners/internal/platform"
	"github.com/EternisAI/silo-runners/internal/policy"
	"github.com/EternisAI/silo-runners/internal/reconcile"
	"github.com/EternisAI/silo-runners/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Silo Runners Server", "version", AppVersion)

	if err := run(); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	if err := db.RunMigrations(ctx, config.Db.Url, config.Db.Schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	pool, err := db.InitDB(ctx, config.Db)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	st := store.NewPostgres(pool)

	if config.Bootstrap.File != "" {
		seed, err := bootstrap.LoadFile(config.Bootstrap.File)
		if err != nil {
			return fmt.Errorf("failed to load bootstrap file: %w", err)
		}
		res, err := bootstrap.Apply(ctx, st, seed)
		if err != nil {
			return fmt.Errorf("failed to apply bootstrap: %w", err)
		}
		slog.Info("Bootstrap applied",
			"policies", res.PoliciesWritten,
			"teams_created", res.TeamsCreated,
			"teams_updated", res.TeamsUpdated,
			"memberships", res.MembershipsWritten)
	}

	m := metrics.New()

	client, err := newPlatformClient(config.Platform, m)
	if err != nil {
		return err
	}

	resolver := policy.NewResolver(st, config.Labels.Mandatory)

	issuanceCfg := config.Issuance
	issuanceCfg.PlatformURL = platformWebURL(config.Platform, issuanceCfg.PlatformURL)
	issuanceEngine := issuance.NewEngine(st, resolver, client, issuanceCfg, m)

	var locker reconcile.Locker
	var redisClient *redis.Client
	if config.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker = reconcile.NewRedisLocker(redisClient, config.Reconcile.LockKey, config.Reconcile.LockTTL)
		slog.Info("Reconcile lock enabled", "addr", config.Redis.Addr, "key", config.Reconcile.LockKey)
	}

	reconcileEngine := reconcile.NewEngine(st, client, config.Reconcile.Options)
	runner := reconcile.NewRunner(reconcileEngine, config.Reconcile.RunnerConfig, locker, m)
	runner.Start()

	tlsConfig := &grpcserver.TLSConfig{
		Enabled:    config.Grpc.TLS.Enabled,
		CertFile:   config.Grpc.TLS.CertFile,
		KeyFile:    config.Grpc.TLS.KeyFile,
		CAFile:     config.Grpc.TLS.CAFile,
		ClientAuth: config.Grpc.TLS.ClientAuth,
	}
	grpcSrv := grpcserver.NewServer(config.Grpc.Port, tlsConfig)
	grpcSrv.Monitor("reconciler", runner, 10*time.Second)

	services := &internalhttp.Services{
		Issuance:    issuanceEngine,
		Reconciler:  runner,
		Store:       st,
		Auth:        auth.NewService(st, config.Auth),
		Metrics:     m.Handler(),
		JWTSecret:   config.Auth.Secret,
		AdminAPIKey: config.Http.AdminAPIKey,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(internalhttp.CORS(config.Http.CORS))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, 2)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	go func() {
		if err := grpcSrv.Start(); err != nil {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down servers...")

	var wg sync.WaitGroup
	shutdownTimeout := 10 * time.Second

	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server stopped")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := grpcSrv.StopWithTimeout(shutdownTimeout); err != nil {
			slog.Error("gRPC server shutdown error", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runner.Stop()
		slog.Info("Reconciler stopped")
	}()

	wg.Wait()

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			slog.Error("Redis close error", "error", err)
		}
	}

	slog.Info("Shutdown complete")
	return nil
}

func newPlatformClient(cfg PlatformConfig, observer platform.Observer) (platform.Client, error) {
	if cfg.Org == "" {
		return nil, fmt.Errorf("platform.org is required")
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	var tokens platform.TokenSource
	switch {
	case cfg.App.ID != 0:
		key, err := os.ReadFile(cfg.App.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read app private key: %w", err)
		}
		src, err := platform.NewAppTokenSource(cfg.App.ID, cfg.App.InstallationID, key, cfg.APIURL, httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create app token source: %w", err)
		}
		tokens = src
		slog.Info("Using GitHub App credentials", "app_id", cfg.App.ID, "installation_id", cfg.App.InstallationID)
	case cfg.Token != "":
		tokens = platform.StaticToken(cfg.Token)
	default:
		return nil, fmt.Errorf("platform.token or platform.app.id is required")
	}

	return platform.NewReliable(platform.NewGitHub(cfg.GitHubConfig, tokens, httpClient), cfg.Reliability, observer), nil
}
