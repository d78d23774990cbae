package main

import (
	"context"
	"database/sql"
	"strings"

	auth "github.com/goliatone/go-growth-auth"
	"github.com/goliatone/go-growth-auth/adapters/redisstore"
	"github.com/goliatone/go-growth-auth/repository/mongostore"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// closer releases a handle during shutdown.
type closer func(ctx context.Context) error

// stores bundles the directory, its audit trail and the coordination
// primitives shared by the engine and the verifier.
type stores struct {
	directory   auth.Directory
	activity    auth.ActivityLog
	locker      auth.SubjectLocker
	revocations auth.RevocationStore
	closers     []closer
}

func (s *stores) onClose(fn closer) {
	s.closers = append(s.closers, fn)
}

// Close runs the closers in reverse order and returns the first error.
func (s *stores) Close(ctx context.Context) error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func openStores(ctx context.Context, cfg *Config, logger auth.Logger) (*stores, error) {
	s := &stores{
		locker:      auth.NewKeyedMutex(),
		revocations: auth.NewMemoryRevocations(),
	}

	var err error
	switch strings.ToLower(cfg.DirectoryDriver) {
	case "mongo":
		err = s.openMongo(ctx, cfg)
	default:
		err = s.openBun(ctx, cfg)
	}
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}

	if cfg.RedisAddr != "" {
		client, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		s.onClose(func(context.Context) error { return client.Close() })
		s.locker = redisstore.NewLocker(client,
			redisstore.WithLockTTL(cfg.LockTTL),
			redisstore.WithLockLogger(logger),
		)
		s.revocations = redisstore.NewRevocations(client, cfg.RevocationKeep)
		logger.Info("redis coordination enabled", "addr", cfg.RedisAddr)
	}

	return s, nil
}

func (s *stores) openBun(ctx context.Context, cfg *Config) error {
	var db *bun.DB
	switch strings.ToLower(cfg.DirectoryDriver) {
	case "postgres":
		sqldb, err := sql.Open("pgx", cfg.DirectoryDSN)
		if err != nil {
			return auth.Unreachable(err, "postgres.open")
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DirectoryDSN)
		if err != nil {
			return auth.Unreachable(err, "sqlite.open")
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}
	s.onClose(func(context.Context) error { return db.Close() })

	if err := db.PingContext(ctx); err != nil {
		return auth.Unreachable(err, "directory.ping")
	}

	repo := auth.NewRepositoryManager(db)
	repo.MustValidate()
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}

	s.directory = repo.Users()
	s.activity = repo.Activity()
	return nil
}

func (s *stores) openMongo(ctx context.Context, cfg *Config) error {
	client, err := mongostore.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	s.onClose(client.Disconnect)

	repo := mongostore.NewManager(client.Database(cfg.MongoDatabase))
	repo.MustValidate()
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}

	s.directory = repo.Users()
	s.activity = repo.Activity()
	return nil
}
