package config

import (
    "errors"
    "fmt"
    "os"
    "time"

    "gopkg.in/yaml.v3"
)

// JWTConfig holds the two signing secrets and token lifetimes.  A zero
// RefreshTTL means refresh tokens carry no exp claim.
type JWTConfig struct {
    AccessSecret  string        `yaml:"access_secret"`
    RefreshSecret string        `yaml:"refresh_secret"`
    AccessTTL     time.Duration `yaml:"access_token_expiry"`
    RefreshTTL    time.Duration `yaml:"refresh_token_expiry"`
}

// LoadJWTFile reads a JWT section from a YAML file.  Missing expiries fall
// back to the same defaults as the environment variables.
func LoadJWTFile(path string) (JWTConfig, error) {
    raw, err := os.ReadFile(path)
    if err != nil {
        return JWTConfig{}, fmt.Errorf("read JWT config: %w", err)
    }
    cfg := JWTConfig{AccessTTL: 24 * time.Hour}
    if err := yaml.Unmarshal(raw, &cfg); err != nil {
        return JWTConfig{}, fmt.Errorf("parse JWT config: %w", err)
    }
    return cfg, nil
}

// Validate rejects configurations that would let one token kind pass as the
// other or that produce already-expired tokens.
func (c JWTConfig) Validate() error {
    if c.AccessSecret == "" {
        return errors.New("access_secret is required")
    }
    if c.RefreshSecret == "" {
        return errors.New("refresh_secret is required")
    }
    if c.AccessSecret == c.RefreshSecret {
        return errors.New("access_secret and refresh_secret must be different")
    }
    if c.AccessTTL <= 0 {
        return errors.New("access_token_expiry must be positive")
    }
    if c.RefreshTTL < 0 {
        return errors.New("refresh_token_expiry must not be negative")
    }
    return nil
}
