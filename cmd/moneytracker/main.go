package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"moneytracker/internal/amqp"
	"moneytracker/internal/auth"
	"moneytracker/internal/backend"
	"moneytracker/internal/cli"
	"moneytracker/internal/config"
	apphttp "moneytracker/internal/http"
	"moneytracker/internal/ledger"
	"moneytracker/internal/log"
	"moneytracker/internal/middleware/ratelimit"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Stdout)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateServer)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	bootCtx, cancelBoot := context.WithTimeout(context.Background(), time.Minute)
	defer cancelBoot()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).CreateBackend(bootCtx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}()

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	authOpts := []auth.ServiceOption{auth.WithServiceLogger(logger)}
	if cfg.GoogleClientID != "" {
		authOpts = append(authOpts, auth.WithGoogle(cfg.GoogleClientID))
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:  ledger.New(res.Store, ledger.WithLogger(logger)),
		Auth:    auth.NewService(res.Store, tokens, authOpts...),
		Logger:  logger,
		Limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		Ready:   apphttp.ReadyFunc(res.Ready),
	})

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting moneytracker server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"amqp_enabled", res.Feed != nil,
			"google_enabled", cfg.GoogleClientID != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if res.Feed != nil {
		g.Go(func() error {
			err := res.Feed.ConsumeChanges(gctx, amqp.NotifyStore(res.Store))
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	// A failing goroutine must also stop the HTTP server.
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if ctx.Err() != nil {
		<-done
	}
	return err
}
