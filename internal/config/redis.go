package config

// Redis backs the optional session cache.  The client parameters are loaded
// from environment variables.  If the server cannot be reached during
// startup, NewRedisClient returns nil and callers run without the cache.

import (
    "context"
    "crypto/tls"
    "os"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisOptions builds client options from environment variables:
//   REDIS_HOST and REDIS_PORT – hostname and port (win over REDIS_ADDR when both are set)
//   REDIS_ADDR – host:port shorthand
//   REDIS_PASSWORD – optional password
//   REDIS_DB – database number (default 0)
//   REDIS_TLS – enable TLS when "true" or "1"
func RedisOptions() *redis.Options {
    host := os.Getenv("REDIS_HOST")
    port := os.Getenv("REDIS_PORT")
    addr := os.Getenv("REDIS_ADDR")
    if host != "" && port != "" {
        addr = host + ":" + port
    }
    if addr == "" {
        addr = "localhost:6379"
    }
    opts := &redis.Options{
        Addr:     addr,
        Password: os.Getenv("REDIS_PASSWORD"),
        DB:       envInt("REDIS_DB", 0),
    }
    if tlsEnv := os.Getenv("REDIS_TLS"); strings.EqualFold(tlsEnv, "true") || tlsEnv == "1" {
        opts.TLSConfig = &tls.Config{
            MinVersion:         tls.VersionTLS12,
            InsecureSkipVerify: envBool("REDIS_TLS_INSECURE", false), //nolint:gosec // opt-in for self-signed dev servers
        }
    }
    return opts
}

// NewRedisClient instantiates a Redis client and pings it with a short
// timeout.  The returned client is nil when the cache is disabled or the
// server is unreachable.
func NewRedisClient(ctx context.Context, cfg SessionCacheConfig) *redis.Client {
    if !cfg.Enabled {
        return nil
    }
    client := redis.NewClient(RedisOptions())
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil
    }
    return client
}
