// Package middleware holds the echo middleware that gates protected routes.
package middleware

import (
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-session-api/internal/auth"
)

// Verifier validates a token of the given kind.  *auth.Issuer satisfies it.
type Verifier interface {
	Verify(kind auth.Kind, token string) (auth.Payload, error)
}

// RequireToken returns a middleware that authenticates the bearer token of
// kind and exposes its payload to handlers through PayloadFrom.  Failures are
// returned as auth gate errors for the HTTP error handler to render.
func RequireToken(v Verifier, kind auth.Kind) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := parseBearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return err
			}

			p, err := v.Verify(kind, raw)
			if err != nil {
				slog.DebugContext(c.Request().Context(), "token rejected", "kind", kind, "error", err)
				return auth.ErrInvalidToken
			}

			setPayload(c, p)
			return next(c)
		}
	}
}

// parseBearer extracts the token from "Bearer <token>".  The header is split
// on single spaces: the scheme is matched case-insensitively and the token
// is the second element, which must not be empty.
func parseBearer(header string) (string, error) {
	if header == "" {
		return "", auth.ErrAuthHeaderMissing
	}
	parts := strings.Split(header, " ")
	if len(parts) < 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", auth.ErrMalformedBearer
	}
	return parts[1], nil
}
