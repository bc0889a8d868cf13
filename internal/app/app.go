// Package app wires configuration, storage, chain access and the HTTP
// server into a running bridge process.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/maltlabs/malt-bridge/internal/api"
	"github.com/maltlabs/malt-bridge/internal/api/middleware"
	"github.com/maltlabs/malt-bridge/internal/config"
	"github.com/maltlabs/malt-bridge/internal/db"
	"github.com/maltlabs/malt-bridge/internal/domain"
	"github.com/maltlabs/malt-bridge/internal/idempotency"
	"github.com/maltlabs/malt-bridge/internal/ledger"
	"github.com/maltlabs/malt-bridge/internal/observability"
	"github.com/maltlabs/malt-bridge/internal/rate"
	"github.com/maltlabs/malt-bridge/internal/repository"
	"github.com/maltlabs/malt-bridge/internal/settlement"
	"github.com/maltlabs/malt-bridge/internal/verifier"
	"github.com/maltlabs/malt-bridge/internal/worker"
)

// Run bootstraps the bridge and blocks until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	treasury, err := ledger.LoadTreasury(cfg.TreasuryPrivateKey)
	if err != nil {
		return fmt.Errorf("load treasury key: %w", err)
	}
	logger.Info("treasury loaded", zap.String("address", treasury.PublicKey().String()))

	registry := buildRegistry(cfg)
	ledgerClient := ledger.NewRPCClient(cfg.RPCURL, cfg.RPCTimeout, logger)

	var feed rate.Feed
	if cfg.PriceFeedURL != "" {
		feed = rate.NewHTTPFeed(cfg.PriceFeedURL, cfg.PriceFeedTimeout)
	}
	fallback := map[string]decimal.Decimal{}
	if cfg.FallbackRate.IsPositive() {
		fallback[domain.NativeSymbol] = cfg.FallbackRate
	}
	converter := rate.NewConverter(feed, cfg.OutputPriceUSD, fallback, logger)

	executor := settlement.NewExecutor(ledgerClient, treasury, cfg.OutputMint, cfg.OutputDecimals, cfg.ConfirmTimeout, logger)
	nativeVerifier := verifier.NewNative(ledgerClient, treasury.PublicKey(), cfg.MaxSOLPurchase, logger)
	tokenVerifier := verifier.NewToken(ledgerClient, treasury.PublicKey(), logger)

	// Durable storage is optional: without DATABASE_URL the bridge falls
	// back to an in-process guard and loses cross-restart idempotency.
	var (
		guard       idempotency.Guard
		repo        *repository.Settlements
		pool        *pgxpool.Pool
		redisClient *redis.Client
	)
	if cfg.DatabaseURL != "" {
		pool, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		repo = repository.NewSettlements(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}

		if cfg.RedisURL != "" {
			redisClient, err = newRedisClient(cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("connect redis: %w", err)
			}
			defer redisClient.Close()
		}

		var rdb redis.Cmdable
		if redisClient != nil {
			rdb = redisClient
		}
		guard = idempotency.NewStoreGuard(repo, rdb, cfg.ReservationTTL, logger)
	} else {
		logger.Warn("DATABASE_URL not set, idempotency guard is in-memory only")
		guard = idempotency.NewMemoryGuard()
	}

	pipeline := settlement.NewPipeline(nativeVerifier, tokenVerifier, converter, executor, guard, registry, logger)

	// Provision the treasury's reward-token account in the background so a
	// cold mint does not block startup.
	go func() {
		provisionCtx, provisionCancel := context.WithTimeout(ctx, 2*time.Minute)
		defer provisionCancel()
		if err := executor.EnsureTreasuryAccount(provisionCtx); err != nil {
			logger.Warn("treasury token account provisioning failed", zap.Error(err))
		}
	}()

	var stopWorker func()
	if repo != nil {
		reconciler := worker.NewReconciliationWorker(repo, ledgerClient).
			WithInterval(cfg.ReconciliationInterval)
		stopWorker = reconciler.Run(ctx)
		logger.Info("reconciliation worker started", zap.Duration("interval", cfg.ReconciliationInterval))
	}

	var rdb redis.Cmdable
	if redisClient != nil {
		rdb = redisClient
	}
	router := api.NewRouter(logger, pipeline, registry, repo, pool, rdb, cfg.PublicRateLimitRPS, cfg.AdminRateLimitRPS, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	if stopWorker != nil {
		logger.Info("stopping reconciliation worker")
		stopWorker()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func buildRegistry(cfg *config.Config) *domain.AssetRegistry {
	assets := []domain.Asset{{
		Symbol:    domain.NativeSymbol,
		FixedRate: cfg.RatePerSOL,
	}}
	for _, t := range cfg.AcceptedTokens {
		assets = append(assets, domain.Asset{
			Symbol:    t.Symbol,
			Mint:      t.Mint,
			FixedRate: t.Rate,
		})
	}
	return domain.NewAssetRegistry(assets...)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
