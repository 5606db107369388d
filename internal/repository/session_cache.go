package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/auth-session-api/internal/config"
	"github.com/iliyamo/auth-session-api/internal/model"
)

// minGenerationTTL bounds how long a user's generation counter outlives its
// last write.  It must stay well above the entry TTL.
const minGenerationTTL = 24 * time.Hour

// errStaleRead aborts a write-back whose database read raced a write.
var errStaleRead = errors.New("session cache: generation moved")

// SessionCache is a read-through Redis cache in front of a TokenStore.
//
// Every write bumps a per-user generation counter and deletes the entry.
// Entries are tagged with the generation observed before the database read
// that produced them; a read only trusts an entry whose tag matches the
// current generation, and the write-back is dropped when the generation
// moved while the database was being read.  A logout therefore can never be
// undone by a slower concurrent read.  Redis failures degrade to direct
// database access.
type SessionCache struct {
	next TokenStore
	rdb  *redis.Client
	cfg  config.SessionCacheConfig
}

type cachedRow struct {
	Gen int64              `json:"gen"`
	Row model.RefreshToken `json:"row"`
}

// NewSessionCache wraps next.  When the cache is disabled or rdb is nil,
// next is returned unchanged.
func NewSessionCache(next TokenStore, rdb *redis.Client, cfg config.SessionCacheConfig) TokenStore {
	if !cfg.Enabled || rdb == nil {
		return next
	}
	return &SessionCache{next: next, rdb: rdb, cfg: cfg}
}

func (c *SessionCache) key(userID uint64) string {
	return c.cfg.Prefix + ":refresh:" + strconv.FormatUint(userID, 10)
}

func (c *SessionCache) genKey(userID uint64) string {
	return c.key(userID) + ":gen"
}

func (c *SessionCache) genTTL() time.Duration {
	if ttl := 2 * c.cfg.TTL; ttl > minGenerationTTL {
		return ttl
	}
	return minGenerationTTL
}

func (c *SessionCache) FindByUser(ctx context.Context, userID uint64) (*model.RefreshToken, error) {
	key, genKey := c.key(userID), c.genKey(userID)

	gen, entry, err := c.lookup(ctx, key, genKey)
	if err != nil {
		slog.WarnContext(ctx, "session cache read failed", "key", key, "error", err)
		return c.next.FindByUser(ctx, userID)
	}
	if entry != nil && entry.Gen == gen {
		row := entry.Row
		return &row, nil
	}

	t, err := c.next.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, genKey, cachedRow{Gen: gen, Row: *t})
	return t, nil
}

// lookup fetches the entry and the current generation in one round trip.
// A missing or unreadable entry is reported as nil.
func (c *SessionCache) lookup(ctx context.Context, key, genKey string) (int64, *cachedRow, error) {
	vals, err := c.rdb.MGet(ctx, key, genKey).Result()
	if err != nil {
		return 0, nil, err
	}
	gen, err := parseGen(vals[1])
	if err != nil {
		return 0, nil, err
	}

	s, ok := vals[0].(string)
	if !ok {
		return gen, nil, nil
	}
	var entry cachedRow
	if json.Unmarshal([]byte(s), &entry) != nil {
		return gen, nil, nil
	}
	return gen, &entry, nil
}

// store writes entry only while the generation still equals entry.Gen.
func (c *SessionCache) store(ctx context.Context, key, genKey string, entry cachedRow) {
	bs, err := json.Marshal(entry)
	if err != nil {
		return
	}

	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if errors.Is(err, redis.Nil) {
			cur, err = 0, nil
		}
		if err != nil {
			return err
		}
		if cur != entry.Gen {
			return errStaleRead
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, bs, c.cfg.TTL)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil, errors.Is(err, errStaleRead), errors.Is(err, redis.TxFailedErr):
	default:
		slog.WarnContext(ctx, "session cache write failed", "key", key, "error", err)
	}
}

func (c *SessionCache) Create(ctx context.Context, userID uint64, token string) (model.RefreshToken, error) {
	t, err := c.next.Create(ctx, userID, token)
	c.invalidate(ctx, userID)
	return t, err
}

func (c *SessionCache) Clear(ctx context.Context, userID uint64) error {
	err := c.next.Clear(ctx, userID)
	c.invalidate(ctx, userID)
	return err
}

func (c *SessionCache) Set(ctx context.Context, existing model.RefreshToken, token string) error {
	err := c.next.Set(ctx, existing, token)
	c.invalidate(ctx, existing.UserID)
	return err
}

// invalidate bumps the user's generation and drops the entry atomically.
// Bumping alone already retires the entry, so a failed delete is harmless.
func (c *SessionCache) invalidate(ctx context.Context, userID uint64) {
	key, genKey := c.key(userID), c.genKey(userID)
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, genKey)
		p.Expire(ctx, genKey, c.genTTL())
		p.Del(ctx, key)
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "session cache invalidate failed", "user_id", userID, "error", err)
	}
}

func parseGen(v any) (int64, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
