package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/auth-session-api/internal/config"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Payload is the identity carried by a token.  Password holds the stored
// hash and is only set on the pair minted at registration.
type Payload struct {
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
}

type claims struct {
	Payload
	Type Kind `json:"typ"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens.  Access and refresh tokens use
// different secrets, so neither verifies as the other.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewIssuer builds an Issuer from a validated JWT config.
func NewIssuer(cfg config.JWTConfig) *Issuer {
	return &Issuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
}

// IssueAccess signs an access token that expires after the configured TTL.
func (i *Issuer) IssueAccess(p Payload) (string, error) {
	return i.IssueAccessTTL(p, i.accessTTL)
}

// IssueAccessTTL signs an access token that expires after ttl.
func (i *Issuer) IssueAccessTTL(p Payload, ttl time.Duration) (string, error) {
	return i.sign(KindAccess, p, ttl)
}

// IssueRefresh signs a refresh token.  It has no expiry unless a refresh
// TTL is configured; revocation happens through logout.
func (i *Issuer) IssueRefresh(p Payload) (string, error) {
	return i.sign(KindRefresh, p, i.refreshTTL)
}

// VerifyAccess validates an access token and returns its payload.
func (i *Issuer) VerifyAccess(token string) (Payload, error) {
	return i.Verify(KindAccess, token)
}

// VerifyRefresh validates a refresh token and returns its payload.
func (i *Issuer) VerifyRefresh(token string) (Payload, error) {
	return i.Verify(KindRefresh, token)
}

// Verify validates token as kind.  Every failure is reported as
// ErrInvalidToken.
func (i *Issuer) Verify(kind Kind, token string) (Payload, error) {
	secret, err := i.secret(kind)
	if err != nil {
		return Payload{}, err
	}

	var c claims
	_, err = jwt.ParseWithClaims(token, &c,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if c.Type != kind || c.Email == "" {
		return Payload{}, ErrInvalidToken
	}
	return c.Payload, nil
}

func (i *Issuer) sign(kind Kind, p Payload, ttl time.Duration) (string, error) {
	secret, err := i.secret(kind)
	if err != nil {
		return "", err
	}

	now := i.now().UTC()
	c := claims{
		Payload: p,
		Type:    kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl != 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

func (i *Issuer) secret(kind Kind) ([]byte, error) {
	switch kind {
	case KindAccess:
		return i.accessSecret, nil
	case KindRefresh:
		return i.refreshSecret, nil
	default:
		return nil, errors.New("unknown token kind " + string(kind))
	}
}
