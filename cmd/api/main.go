package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"dealflow/auth"
	"dealflow/cache"
	"dealflow/config"
	"dealflow/dashboard"
	"dealflow/db"
	"dealflow/deal"
	"dealflow/httpapi"
	"dealflow/logging"
	"dealflow/metrics"
	"dealflow/referral"
	"dealflow/report"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	if cfg.IsProduction() && len(cfg.HTTP.AllowOrigins) == 0 {
		logger.Warn("CORS_ALLOW_ORIGINS unset in production, every origin is allowed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("api exited")
	}
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	pool, err := db.NewPool(ctx, cfg.Database.DSN(), db.PoolOptions{MaxConns: cfg.Database.MaxConns})
	if err != nil {
		return fmt.Errorf("bootstrap database pool: %w", err)
	}
	defer pool.Close()
	logger.Info("database connected")

	if cfg.App.MigrateOnStart {
		applied, err := db.Migrate(ctx, pool)
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		logger.WithField("applied", applied).Info("migrations up to date")
	}

	m := metrics.New()

	redis := cache.NewRedis(ctx, cache.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	defer redis.Close()

	hasher, err := auth.NewHasher(cfg.Auth.BcryptCost, cfg.Auth.HashWorkers)
	if err != nil {
		return err
	}
	hasher.WithWaitObserver(m.ObserveHashWait)

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authService := auth.NewService(auth.NewRepository(pool), hasher, tokens)

	stats := dashboard.NewService(dashboard.NewStore(pool), redis, cfg.Redis.StatsTTL, logger).
		WithCacheObserver(m.StatsCache)
	referrals := referral.NewService(referral.NewRepository(pool), stats)
	deals := deal.NewService(deal.NewRepository(pool), stats)
	reports := report.NewService(referrals, deals)

	server := httpapi.New(httpapi.Deps{
		Auth:           authService,
		Referrals:      referrals,
		Deals:          deals,
		Reports:        reports,
		Stats:          stats,
		Health:         pool,
		Logger:         logger,
		Metrics:        m,
		MetricsHandler: m.Handler(),
	}, httpapi.Options{
		AllowOrigins:      cfg.HTTP.AllowOrigins,
		AuthRateLimitMax:  cfg.HTTP.AuthRateLimitMax,
		AuthRateLimitSpan: cfg.HTTP.AuthRateLimitSpan,
	})

	addr, err := listenAddr(cfg.HTTP.Port)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"addr": addr, "env": cfg.App.Environment}).Info("http server listening")
		errCh <- server.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func listenAddr(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", errors.New("empty HTTP port")
	}
	if strings.HasPrefix(p, ":") {
		return p, nil
	}
	if strings.Contains(p, ":") {
		return p, nil
	}
	return ":" + p, nil
}

