package middleware

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-session-api/internal/auth"
)

// PayloadKey is the echo context key holding the verified token payload.
const PayloadKey = "jwt"

type payloadCtxKey struct{}

func setPayload(c echo.Context, p auth.Payload) {
	c.Set(PayloadKey, p)
	req := c.Request()
	c.SetRequest(req.WithContext(context.WithValue(req.Context(), payloadCtxKey{}, p)))
}

// PayloadFrom returns the payload stored by RequireToken.  ok is false on
// routes the middleware did not run on.
func PayloadFrom(c echo.Context) (auth.Payload, bool) {
	p, ok := c.Get(PayloadKey).(auth.Payload)
	return p, ok
}

// PayloadFromContext is PayloadFrom for code that only has the request
// context.
func PayloadFromContext(ctx context.Context) (auth.Payload, bool) {
	p, ok := ctx.Value(payloadCtxKey{}).(auth.Payload)
	return p, ok
}
