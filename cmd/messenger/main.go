package main

import (
	"context"
	"errors"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/redis"
	"github.com/wb-go/wbf/zlog"

	healthhandler "github.com/campushub/messaging/internal/api/handlers/health"
	msghandler "github.com/campushub/messaging/internal/api/handlers/message"
	permhandler "github.com/campushub/messaging/internal/api/handlers/permission"
	"github.com/campushub/messaging/internal/api/router"
	"github.com/campushub/messaging/internal/api/server"
	"github.com/campushub/messaging/internal/config"
	"github.com/campushub/messaging/internal/cron"
	"github.com/campushub/messaging/internal/model"
	"github.com/campushub/messaging/internal/ratelimit"
	msgrepo "github.com/campushub/messaging/internal/repository/message"
	permrepo "github.com/campushub/messaging/internal/repository/permission"
	msgsvc "github.com/campushub/messaging/internal/service/message"
	permsvc "github.com/campushub/messaging/internal/service/permission"
	"github.com/campushub/messaging/pkg/email"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()
	cfg := config.Must()
	val := validator.New()

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	dbNum, err := strconv.Atoi(cfg.Redis.Database)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to parse redis database")
	}

	rdb := redis.New(cfg.Redis.Address, cfg.Redis.Password, dbNum)
	if err = rdb.Ping(ctx).Err(); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	smtpPort, err := strconv.Atoi(cfg.Email.SMTPPort)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to parse email smtp port")
	}

	emailClient := email.NewClient(
		cfg.Email.SMTPHost,
		smtpPort,
		cfg.Email.Username,
		cfg.Email.Password,
		cfg.Email.From,
		cfg.Email.Timeout,
	)

	transports := map[model.MessageType]msgsvc.Transport{
		model.MessageTypeEmail: emailClient,
	}

	messageRepo := msgrepo.NewRepository(db)
	permissionRepo := permrepo.NewRepository(db)

	engine := msgsvc.NewService(messageRepo, transports, rdb, msgsvc.Config{
		Retry:       cfg.Retry,
		SendTimeout: cfg.Dispatch.SendTimeout,
		BackoffBase: cfg.Dispatch.BackoffBase,
		BackoffMax:  cfg.Dispatch.BackoffMax,
	})
	evaluator := permsvc.NewService(permissionRepo)

	dispatcher := cron.NewDispatcher(engine, cfg.Cron.BatchSize)
	if cfg.Cron.Interval > 0 {
		go dispatcher.Run(ctx, cfg.Cron.Interval)
	}

	limiter := ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.MaxRequests)

	messageHandler := msghandler.NewHandler(engine, dispatcher, val)
	permissionHandler := permhandler.NewHandler(evaluator, val)
	healthHandler := healthhandler.NewHandler(db, engine)

	r := router.New(messageHandler, permissionHandler, healthHandler, evaluator, limiter, cfg.Cron.Secret)
	s := server.New(cfg.Server.HTTPPort, r)

	go func() {
		if err := s.ListenAndServe(); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	zlog.Logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}

	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	if err := db.Master.Close(); err != nil {
		zlog.Logger.Printf("failed to close master DB: %v", err)
	}

	for i, slave := range db.Slaves {
		if err := slave.Close(); err != nil {
			zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
		}
	}
}
