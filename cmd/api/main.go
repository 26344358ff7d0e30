package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"checkin/internal/api"
	"checkin/internal/audit"
	"checkin/internal/checkin"
	"checkin/internal/config"
	"checkin/internal/httpmiddleware"
	"checkin/internal/logger"
	"checkin/internal/metrics"
	"checkin/internal/navigator"
	"checkin/internal/queue"
	"checkin/internal/store"
)

const (
	_sessionIdle  = 12 * time.Hour
	_pruneEvery   = 10 * time.Minute
	_shutdownWait = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	log, lerr := logger.New(cfg.LogLevel, cfg.LogFormat, "checkin-api")
	if lerr != nil {
		panic(lerr)
	}
	defer func() { _ = log.Sync() }()

	for _, w := range cfg.Warnings {
		log.Warn("config", zap.String("warning", w))
	}
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func run(cfg config.App, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.StoreOptions(), log)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	checks := map[string]api.HealthCheck{}
	var recorder *audit.Recorder
	switch cfg.QueueBackend {
	case config.QueueDirect:
		recorder = audit.NewDirect(st, log)
	case config.QueueRedis:
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		checks["redis"] = redisClient.Healthy
		recorder = audit.NewQueued(queue.NewRedisQueue(redisClient.Client, cfg.QueueKey), log)
	default:
		q := queue.NewInMemory(256)
		recorder = audit.NewQueued(q, log)
		go func() {
			if err := audit.Drain(ctx, q, st, log); err != nil {
				log.Error("audit drain stopped", zap.Error(err))
			}
		}()
	}

	svc := checkin.NewService(st, log,
		checkin.WithAudit(recorder),
		checkin.WithMetrics(metrics.New(reg)),
		checkin.WithTimeout(cfg.StoreTimeout),
	)
	if err := svc.LoadAll(ctx); err != nil {
		// rosters stay empty until a reload succeeds
		log.Error("initial roster load failed", zap.Error(err))
	}

	sessions := navigator.NewSessions()
	limiter := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	go prune(ctx, sessions, limiter, log)

	h := api.New(svc, sessions, log)
	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: h.Router(api.Options{
			AllowOrigins: cfg.CORSOrigins,
			Limiter:      limiter,
			Gatherer:     reg,
			Checks:       checks,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.StoreBackend),
			zap.String("queue", cfg.QueueBackend),
		)
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
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), _shutdownWait)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}

// prune drops idle operator sessions and full rate-limit buckets.
func prune(ctx context.Context, sessions *navigator.Sessions, limiter *httpmiddleware.TokenBucket, log *zap.Logger) {
	ticker := time.NewTicker(_pruneEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Prune(_sessionIdle); n > 0 {
				log.Info("pruned idle sessions", zap.Int("count", n), zap.Int("live", sessions.Len()))
			}
			limiter.Prune()
		}
	}
}
