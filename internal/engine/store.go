// Package engine contains the Scheme store backends and the factory that
// selects one from configuration.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/celerix-dev/schemes/internal/config"
	"github.com/celerix-dev/schemes/internal/pkg/logger"
	"github.com/celerix-dev/schemes/pkg/engine"
)

// Compile-time checks.
var (
	_ engine.Store = (*MemStore)(nil)
	_ engine.Store = (*MongoStore)(nil)
	_ engine.Store = (*PostgresStore)(nil)
)

// CloseFunc releases the resources held by an opened store.
type CloseFunc func(ctx context.Context) error

// Open builds the store selected by cfg.Store.Backend. The returned
// CloseFunc must be called on shutdown; for the memory backend it waits
// for pending snapshot writes.
func Open(ctx context.Context, cfg *config.Config) (engine.Store, CloseFunc, error) {
	switch cfg.Store.Backend {
	case config.BackendMongo:
		connectCtx := ctx
		if cfg.Mongo.Timeout > 0 {
			var cancel context.CancelFunc
			connectCtx, cancel = context.WithTimeout(ctx, cfg.Mongo.Timeout)
			defer cancel()
		}
		s, err := NewMongoStore(connectCtx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case config.BackendPostgres:
		s, err := ConnectPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return s, func(context.Context) error {
			s.Close()
			return nil
		}, nil

	case config.BackendMemory:
		s, err := OpenMemStore(cfg.Store.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return s, func(context.Context) error {
			s.Wait()
			return nil
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// OpenMemStore loads the snapshot in dataDir, if any, and returns a memory
// store that keeps it up to date. An empty dataDir disables persistence.
func OpenMemStore(dataDir string) (*MemStore, error) {
	if dataDir == "" {
		return NewMemStore(nil, nil)
	}

	p, err := NewPersistence(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open data dir: %w", err)
	}
	initial, err := p.LoadAll()
	if err != nil {
		return nil, err
	}

	logger.Info("Loaded scheme snapshot",
		zap.String("data_dir", dataDir),
		zap.Int("schemes", len(initial)),
	)
	return NewMemStore(initial, p)
}
