package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	_ "github.com/noah-isme/citizen-safety-api/api/swagger"
	"github.com/noah-isme/citizen-safety-api/pkg/cache"
	"github.com/noah-isme/citizen-safety-api/pkg/config"
	"github.com/noah-isme/citizen-safety-api/pkg/database"
	"github.com/noah-isme/citizen-safety-api/pkg/logger"
	"github.com/noah-isme/citizen-safety-api/pkg/notify"
)

// @title Citizen Safety API
// @version 1.0.0
// @description Incident reporting and triage for citizens and administrators
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database)
	if err != nil {
		logr.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		logr.Fatal("failed to migrate database", zap.Error(err))
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	switch {
	case errors.Is(err, cache.ErrDisabled):
		logr.Info("redis disabled, issue rate limit off")
	case err != nil:
		logr.Warn("redis unavailable, issue rate limit off", zap.Error(err))
	default:
		defer redisClient.Close()
	}

	sender := newSender(cfg.Notifications, logr)
	defer sender.Close()

	app := newApplication(cfg, logr, db, redisClient, sender)
	app.dispatcher.Start(ctx)
	defer app.dispatcher.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "db", db.DriverName())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newSender(cfg config.NotificationsConfig, logr *zap.Logger) notify.Sender {
	if cfg.AMQPURL == "" {
		return notify.NewLogSender(logr)
	}
	sender, err := notify.NewAMQPSender(cfg.AMQPURL, cfg.Queue)
	if err != nil {
		logr.Warn("amqp unavailable, logging notifications instead", zap.Error(err))
		return notify.NewLogSender(logr)
	}
	return sender
}
