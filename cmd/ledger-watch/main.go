// ledger-watch renders a live dashboard of one user's ledger in the
// terminal. Run it next to the server against the same sqlite file and
// AMQP exchange to follow changes as they happen.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"moneytracker/internal/amqp"
	"moneytracker/internal/auth"
	"moneytracker/internal/backend"
	"moneytracker/internal/cli"
	"moneytracker/internal/config"
	"moneytracker/internal/ledger"
	"moneytracker/internal/log"
	"moneytracker/internal/render"
	"moneytracker/internal/state"
)

func main() {
	cli.LoadEnvFile()
	// Logs go to stderr so they do not interleave with the dashboard.
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Stderr).WithComponent(log.ComponentWatch)
	cfg := cli.LoadAndValidateConfig(logger, func(c *config.Config) error {
		if err := c.Validate(); err != nil {
			return err
		}
		if c.WatchUserID == "" {
			return errors.New("WATCH_USER_ID is required")
		}
		return nil
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("Watch failed", log.FieldError, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, done := cli.GracefulShutdown(logger, 5*time.Second, nil)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer res.Cleanup()

	mgr := state.NewManager(
		ledger.New(res.Store, ledger.WithLogger(logger)),
		auth.Static(cfg.WatchUserID),
		logger,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mgr.Load(gctx)
	})
	if res.Feed != nil {
		g.Go(func() error {
			err := res.Feed.ConsumeChanges(gctx, amqp.NotifyStore(res.Store))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-mgr.Changes():
				fmt.Print("\033[H\033[2J")
				fmt.Println(render.Dashboard(mgr.Snapshot()))
			}
		}
	})

	err = g.Wait()
	if ctx.Err() != nil {
		<-done
	}
	return err
}
