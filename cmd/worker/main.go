package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"client-delivery-backend/internal/app"
	"client-delivery-backend/internal/config"
	"client-delivery-backend/internal/notify"

	"github.com/hibiken/asynq"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Redis.Addr == "" {
		log.Fatalf("REDIS_ADDR is required for the worker")
	}
	logger := app.NewLogger(cfg.LogLevel)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("init services: %v", err)
	}
	defer a.Close()

	server := asynq.NewServer(a.RedisOpt(), asynq.Config{
		Concurrency: 4,
		Logger:      newAsynqLogger(logger),
	})
	processor := notify.NewProcessor(a.Sender, logger.With("component", "worker"))
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	logger.Info("worker starting", "redis", cfg.Redis.Addr)
	if err := server.Run(mux); err != nil {
		log.Printf("worker stopped: %v", err)
		os.Exit(1)
	}
}
