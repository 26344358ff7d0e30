package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"checkin/internal/audit"
	"checkin/internal/config"
	"checkin/internal/logger"
	"checkin/internal/queue"
	"checkin/internal/store"
)

// Worker drains check-in audit messages from redis into the record store.
func main() {
	cfg, err := config.Load()
	log, lerr := logger.New(cfg.LogLevel, cfg.LogFormat, "checkin-worker")
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
	if cfg.QueueBackend != config.QueueRedis {
		log.Fatal("worker needs QUEUE_BACKEND=redis", zap.String("queue", cfg.QueueBackend))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.StoreOptions(), log)
	if err != nil {
		log.Fatal("store open failed", zap.Error(err))
	}
	defer st.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	healthy := redisClient.Healthy(pingCtx)
	cancel()
	if !healthy {
		log.Fatal("redis not reachable", zap.String("addr", cfg.RedisAddr))
	}

	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	log.Info("worker started", zap.String("queue", cfg.QueueKey), zap.String("store", cfg.StoreBackend))
	if err := audit.Drain(ctx, q, st, log); err != nil {
		log.Fatal("audit drain failed", zap.Error(err))
	}
	log.Info("worker stopped")
}
