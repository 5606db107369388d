package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/auth-session-api/internal/auth"
	"github.com/iliyamo/auth-session-api/internal/config"
	"github.com/iliyamo/auth-session-api/internal/database"
	"github.com/iliyamo/auth-session-api/internal/handler"
	"github.com/iliyamo/auth-session-api/internal/logging"
	"github.com/iliyamo/auth-session-api/internal/queue"
	"github.com/iliyamo/auth-session-api/internal/repository"
	"github.com/iliyamo/auth-session-api/internal/router"
	"github.com/iliyamo/auth-session-api/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db, cfg.DBDriver); err != nil {
		return err
	}

	rdb := config.NewRedisClient(ctx, cfg.SessionCache)
	if rdb != nil {
		defer rdb.Close()
		logger.Info("session cache enabled", "ttl", cfg.SessionCache.TTL)
	} else if cfg.SessionCache.Enabled {
		logger.Warn("redis unreachable; session cache disabled")
	}
	store := repository.NewStore(db).WithSessionCache(rdb, cfg.SessionCache)

	providers, err := telemetry.Setup(cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()
	recorder, err := telemetry.NewRecorder(providers.Meter())
	if err != nil {
		return err
	}

	var publisher queue.Publisher = queue.NopPublisher{}
	if cfg.Events.Enabled {
		publisher = queue.NewAMQPPublisher(cfg.Events.URL, cfg.Events.Queue, logger)
	}

	issuer := auth.NewIssuer(cfg.JWT)
	svc := auth.NewService(store, auth.NewHasher(cfg.BcryptCost), issuer,
		auth.WithEvents(publisher),
		auth.WithRecorder(recorder),
		auth.WithLogger(logger),
	)

	e := router.New(cfg.IsProduction(), logger, router.Deps{
		Auth:     handler.NewAuthHandler(svc, cfg.RequestTimeout),
		Health:   handler.NewHealthHandler(db, rdb),
		Verifier: issuer,
		Metrics:  providers.MetricsHandler(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info("listening", "addr", addr, "env", cfg.Env, "driver", cfg.DBDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := e.Shutdown(shutdownCtx)
		svc.Wait()
		return err
	})
	if cfg.Events.Enabled {
		consumer := &queue.Consumer{
			URL:    cfg.Events.URL,
			Queue:  cfg.Events.Queue,
			LogDir: cfg.Events.LogDir,
			Logger: logger,
		}
		g.Go(func() error { return consumer.Run(gctx) })
	}

	err = g.Wait()
	logger.Info("server stopped")
	return err
}
