package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"moneytracker/internal/amqp"
	"moneytracker/internal/docstore"
	"moneytracker/internal/docstore/memory"
	"moneytracker/internal/docstore/sqlite"
	"moneytracker/internal/log"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
	dial   func(url, exchange, origin string) (*amqp.Client, error)
}

func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
		dial:   amqp.NewClient,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	opts := []sqlite.Option{sqlite.WithLogger(f.logger.Logger.With(log.FieldComponent, log.ComponentDocstore))}

	feed := f.dialFeed(ctx, config)
	if feed != nil {
		opts = append(opts, sqlite.WithPublisher(feed))
	}

	store, err := sqlite.Open(config.SQLiteDBPath, opts...)
	if err != nil {
		if feed != nil {
			feed.Close()
		}
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", feed != nil)

	return &BackendResult{
		Store: store,
		Feed:  feed,
		Ready: readyFunc(store),
		Cleanup: func() error {
			var errs []error
			if feed != nil {
				errs = append(errs, feed.Close())
			}
			errs = append(errs, store.Close())
			return errors.Join(errs...)
		},
	}, nil
}

// dialFeed connects to AMQP when configured. A broker that cannot be reached
// leaves the process running without cross-process sync.
func (f *DefaultFactory) dialFeed(ctx context.Context, config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	origin := config.Origin
	if origin == "" {
		origin = uuid.NewString()
	}
	feed, err := f.dial(config.AMQPURL, config.AMQPExchange, origin)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without sync", log.FieldError, err)
		return nil
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"origin", origin)
	return feed
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context) (*BackendResult, error) {
	store := memory.New()
	f.logger.InfoContext(ctx, "Initialized memory backend")
	return &BackendResult{
		Store:   store,
		Ready:   readyFunc(store),
		Cleanup: store.Close,
	}, nil
}

func readyFunc(store docstore.Store) ReadyFunc {
	p, ok := store.(pinger)
	if !ok {
		return func(context.Context) error { return nil }
	}
	return p.Ping
}
