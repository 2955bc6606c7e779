// Package backend opens the session store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goredis "github.com/redis/go-redis/v9"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/sessionstore/config"
	"github.com/jmcleod/sessionstore/session"
	boltstore "github.com/jmcleod/sessionstore/storage/bbolt"
	"github.com/jmcleod/sessionstore/storage/memory"
	"github.com/jmcleod/sessionstore/storage/postgres"
	redisstore "github.com/jmcleod/sessionstore/storage/redis"
	"github.com/jmcleod/sessionstore/storage/sqlite"
)

// Store is a session.Store that owns a connection and must be closed.
type Store interface {
	session.Store
	io.Closer
}

type memoryStore struct {
	*memory.Store
}

func (memoryStore) Close() error { return nil }

// Open connects to the backend named in cfg.Backend. File-backed stores get
// their parent directory created on demand.
func Open(ctx context.Context, cfg config.Config, opts ...session.Option) (Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memoryStore{memory.NewStore(opts...)}, nil

	case config.BackendSQLite:
		if err := ensureDir(cfg.SQLite.Path); err != nil {
			return nil, err
		}
		return opened(sqlite.NewStoreFromFile(ctx, cfg.SQLite.Path, opts...))

	case config.BackendBolt:
		if err := ensureDir(cfg.Bolt.Path); err != nil {
			return nil, err
		}
		return opened(boltstore.NewStoreFromFile(cfg.Bolt.Path, &bbolt.Options{Timeout: cfg.Bolt.Timeout}, opts...))

	case config.BackendPostgres:
		return opened(postgres.NewStoreFromDSN(ctx, cfg.Postgres.DSN, opts...))

	case config.BackendRedis:
		return opened(redisstore.NewStoreFromOptions(ctx, &goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Prefix, opts...))

	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
}

// opened converts a concrete constructor result without leaking a typed nil.
func opened[S Store](s S, err error) (Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

func ensureDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dir, err)
	}
	return nil
}
