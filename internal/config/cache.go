package config

import "time"

// SessionCacheConfig defines settings for the Redis read-through cache that
// sits in front of the refresh_tokens table.  When Enabled is false or no
// Redis client is configured, lookups go straight to the database.  TTL
// bounds how long a cached row may be served; Prefix namespaces the keys.
type SessionCacheConfig struct {
    Enabled bool
    TTL     time.Duration
    Prefix  string
}

// LoadSessionCacheConfig reads environment variables to build a
// SessionCacheConfig.  Defaults are used when variables are not set.
func LoadSessionCacheConfig() SessionCacheConfig {
    cfg := SessionCacheConfig{
        Enabled: envBool("SESSION_CACHE_ENABLED", true),
        TTL:     envDur("SESSION_CACHE_TTL", 5*time.Minute),
        Prefix:  envStr("SESSION_CACHE_PREFIX", "session"),
    }
    if cfg.TTL <= 0 { cfg.TTL = 5 * time.Minute }
    return cfg
}
