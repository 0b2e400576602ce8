package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"podium/cmd/internal/reaction"
	"podium/cmd/internal/session"
	"podium/cmd/internal/store"
)

// Stores bundles the four document stores the core runs on. All four share
// one backend, selected once at process start.
type Stores struct {
	Sessions  store.Store[session.Session]
	Hosts     store.Store[session.Identity]
	Users     store.Store[session.Identity]
	Reactions store.Store[reaction.Reaction]

	// Ping reports backend reachability for readiness checks.
	Ping func(ctx context.Context) error
	// Close releases backend resources. Safe to call once at shutdown.
	Close func(ctx context.Context) error
}

var (
	identityIndexes = []string{"token"}
)

// NewStores selects and wires the configured backend.
func NewStores(ctx context.Context, cfg Config, log *slog.Logger) (*Stores, error) {
	switch cfg.StoreBackend {
	case StoreMemory:
		log.Info("store.backend", "kind", StoreMemory)
		return newMemoryStores(), nil
	case StorePostgres:
		log.Info("store.backend", "kind", StorePostgres)
		return newPostgresStores(ctx, cfg)
	case StoreSQLite:
		log.Info("store.backend", "kind", StoreSQLite, "path", cfg.SQLitePath)
		return newSQLiteStores(ctx, cfg)
	case StoreRedis:
		log.Info("store.backend", "kind", StoreRedis, "addr", cfg.RedisAddr)
		return newRedisStores(ctx, cfg)
	default:
		return nil, fmt.Errorf("app: unknown store backend %q", cfg.StoreBackend)
	}
}

func newMemoryStores() *Stores {
	return &Stores{
		Sessions:  store.NewMemory[session.Session]("sessions", nil),
		Hosts:     store.NewMemory[session.Identity]("hosts", identityIndexes),
		Users:     store.NewMemory[session.Identity]("users", identityIndexes),
		Reactions: store.NewMemory[reaction.Reaction]("reactions", reaction.Indexes),
		Ping:      func(context.Context) error { return nil },
		Close:     func(context.Context) error { return nil },
	}
}

func newPostgresStores(ctx context.Context, cfg Config) (*Stores, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("app: postgres backend requires PODIUM_DATABASE_URL")
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sessions, err := store.NewPostgres[session.Session](ctx, pool, "sessions", nil)
	if err != nil {
		pool.Close()
		return nil, err
	}
	hosts, err := store.NewPostgres[session.Identity](ctx, pool, "hosts", identityIndexes)
	if err != nil {
		pool.Close()
		return nil, err
	}
	users, err := store.NewPostgres[session.Identity](ctx, pool, "users", identityIndexes)
	if err != nil {
		pool.Close()
		return nil, err
	}
	reactions, err := store.NewPostgres[reaction.Reaction](ctx, pool, "reactions", reaction.Indexes)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Stores{
		Sessions:  sessions,
		Hosts:     hosts,
		Users:     users,
		Reactions: reactions,
		Ping: func(ctx context.Context) error {
			return PingDB(ctx, pool, 2*time.Second)
		},
		Close: func(context.Context) error {
			pool.Close()
			return nil
		},
	}, nil
}

func newSQLiteStores(ctx context.Context, cfg Config) (*Stores, error) {
	db, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("app: open sqlite %s: %w", cfg.SQLitePath, err)
	}
	// modernc sqlite serializes writers; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("app: ping sqlite %s: %w", cfg.SQLitePath, err)
	}

	sessions, err := store.NewSQLite[session.Session](ctx, db, "sessions", nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	hosts, err := store.NewSQLite[session.Identity](ctx, db, "hosts", identityIndexes)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	users, err := store.NewSQLite[session.Identity](ctx, db, "users", identityIndexes)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	reactions, err := store.NewSQLite[reaction.Reaction](ctx, db, "reactions", reaction.Indexes)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Stores{
		Sessions:  sessions,
		Hosts:     hosts,
		Users:     users,
		Reactions: reactions,
		Ping: func(ctx context.Context) error {
			return db.PingContext(ctx)
		},
		Close: func(context.Context) error {
			return db.Close()
		},
	}, nil
}

func newRedisStores(ctx context.Context, cfg Config) (*Stores, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("app: ping redis %s: %w", cfg.RedisAddr, err)
	}

	sessions, err := store.NewRedis[session.Session](client, "sessions", nil)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	hosts, err := store.NewRedis[session.Identity](client, "hosts", identityIndexes)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	users, err := store.NewRedis[session.Identity](client, "users", identityIndexes)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	reactions, err := store.NewRedis[reaction.Reaction](client, "reactions", reaction.Indexes)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Stores{
		Sessions:  sessions,
		Hosts:     hosts,
		Users:     users,
		Reactions: reactions,
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		Close: func(context.Context) error {
			return client.Close()
		},
	}, nil
}
