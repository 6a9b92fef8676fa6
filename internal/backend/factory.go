package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"spendly/internal/amqp"
	"spendly/internal/log"
	"spendly/internal/records"
	"spendly/internal/records/memory"
	"spendly/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(log.FieldComponent, log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store   records.Store
		cleanup CleanupFunc
		err     error
	)
	switch config.Type {
	case SQLiteBackend:
		store, cleanup, err = f.createSQLiteBackend(config)
	case PostgresBackend:
		store, cleanup, err = f.createPostgresBackend(ctx, config)
	case MemoryBackend:
		store, err = f.createMemoryBackend(config)
	default:
		err = fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	result := &BackendResult{Store: store}

	// Events are optional: a broker outage must not keep the API down.
	var client *amqp.Client
	if config.AMQPURL != "" {
		client, err = amqp.NewClient(ctx, config.AMQPURL, config.AMQPExchange, config.AMQPRoutingKey)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
			client = nil
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"routing_key", config.AMQPRoutingKey)
			result.Events = client
		}
	}

	result.Cleanup = func() error {
		var errs []error
		if client != nil {
			errs = append(errs, client.Close())
		}
		if cleanup != nil {
			errs = append(errs, cleanup())
		}
		return errors.Join(errs...)
	}
	return result, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (records.Store, CleanupFunc, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return repo, repo.Close, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (records.Store, CleanupFunc, error) {
	repo, err := storage.NewPostgresRepository(ctx, config.PostgresURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	f.logger.Info("Initialized postgres backend")
	return repo, repo.Close, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (records.Store, error) {
	if config.MemorySeedFile == "" {
		f.logger.Info("Initialized memory backend")
		return memory.New(), nil
	}

	store, err := memory.NewFromFile(config.MemorySeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
	}
	f.logger.Info("Initialized memory backend", "seed_file", config.MemorySeedFile)
	return store, nil
}
