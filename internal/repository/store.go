package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/auth-session-api/internal/config"
	"github.com/iliyamo/auth-session-api/internal/model"
)

// DBTX is the subset of *sql.DB and *sql.Tx the repositories need, so the
// same code runs inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserStore owns user records and their role associations.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, u model.NewUser) (model.User, error)
	AttachRole(ctx context.Context, userID uint64, role string) error
	Roles(ctx context.Context, userID uint64) ([]string, error)
}

// TokenStore owns the at-most-one refresh token row per user.
type TokenStore interface {
	FindByUser(ctx context.Context, userID uint64) (*model.RefreshToken, error)
	Create(ctx context.Context, userID uint64, token string) (model.RefreshToken, error)
	Clear(ctx context.Context, userID uint64) error
	Set(ctx context.Context, existing model.RefreshToken, token string) error
}

// Store hands out the entity stores and runs units of work atomically.
// InTx passes fn a Store bound to one transaction; fn's error, if any, is
// returned unchanged after rollback.
type Store interface {
	Users() UserStore
	Tokens() TokenStore
	InTx(ctx context.Context, fn func(Store) error) error
}

// SQLStore implements Store on database/sql.  A SQLStore built by NewStore
// is bound to the pool; the one passed to an InTx callback is bound to the
// transaction and bypasses the session cache so uncommitted rows never
// reach Redis.
type SQLStore struct {
	db       *sql.DB
	q        DBTX
	inTx     bool
	rdb      *redis.Client
	cacheCfg config.SessionCacheConfig
}

// NewStore returns a pool-bound store.
func NewStore(db *sql.DB) *SQLStore { return &SQLStore{db: db, q: db} }

// WithSessionCache enables the Redis read-through cache for token lookups.
// A nil client or a disabled config leaves the store uncached.
func (s *SQLStore) WithSessionCache(rdb *redis.Client, cfg config.SessionCacheConfig) *SQLStore {
	cp := *s
	cp.rdb = rdb
	cp.cacheCfg = cfg
	return &cp
}

// DB exposes the pool for health checks.
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Users() UserStore { return NewUserRepo(s.q) }

func (s *SQLStore) Tokens() TokenStore {
	var tokens TokenStore = NewTokenRepo(s.q)
	if !s.inTx {
		tokens = NewSessionCache(tokens, s.rdb, s.cacheCfg)
	}
	return tokens
}

// InTx runs fn inside a transaction.  Calls nested in an existing
// transaction reuse it.
func (s *SQLStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&SQLStore{db: s.db, q: tx, inTx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
