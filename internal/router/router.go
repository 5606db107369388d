// Package router assembles the echo server: middleware, error handling and
// the /v1 auth routes.
package router

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/auth-session-api/internal/auth"
	"github.com/iliyamo/auth-session-api/internal/handler"
	"github.com/iliyamo/auth-session-api/internal/middleware"
)

// Deps are the collaborators the routes need.
type Deps struct {
	Auth     *handler.AuthHandler
	Health   *handler.HealthHandler
	Verifier middleware.Verifier
	// Metrics serves /metrics when non-nil.
	Metrics http.Handler
}

// New returns an echo instance with every route registered.
func New(production bool, logger *slog.Logger, d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(production, logger)

	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(requestLogger(logger))

	RegisterRoutes(e, d)
	return e
}

// RegisterRoutes maps the public and token-gated endpoints.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", d.Health.Health)
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}

	v1 := e.Group("/v1")
	v1.POST("/register", d.Auth.Register)
	v1.POST("/login", d.Auth.Login)
	v1.POST("/token", d.Auth.Token, middleware.RequireToken(d.Verifier, auth.KindRefresh))

	access := middleware.RequireToken(d.Verifier, auth.KindAccess)
	v1.POST("/logout", d.Auth.Logout, access)
	v1.GET("/me", d.Auth.Me, access)
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}
