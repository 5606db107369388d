package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-session-api/internal/auth"
)

// Response is the envelope of every JSON body.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// productionStack replaces error details in production responses.
const productionStack = "Sorry, an error occurred."

var unauthorized = []error{
	auth.ErrInvalidCredentials,
	auth.ErrNotLoggedIn,
	auth.ErrSessionNotFound,
	auth.ErrAuthHeaderMissing,
	auth.ErrMalformedBearer,
	auth.ErrInvalidToken,
}

// ErrorHandler renders every error returned by handlers and middleware.
// Domain and gate errors keep their public message; anything unexpected is
// a 500 whose detail is only shown outside production.
func ErrorHandler(production bool, logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := render(err, production)
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request().Context(), "request failed",
				"method", c.Request().Method, "path", c.Path(), "error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.ErrorContext(c.Request().Context(), "write error response", "error", err)
		}
	}
}

func render(err error, production bool) (int, Response) {
	for _, target := range unauthorized {
		if errors.Is(err, target) {
			return http.StatusUnauthorized, Response{Message: target.Error()}
		}
	}

	var verr *ValidationError
	var herr *echo.HTTPError
	switch {
	case errors.Is(err, auth.ErrUserExists):
		return http.StatusOK, Response{Message: auth.ErrUserExists.Error()}
	case errors.Is(err, auth.ErrUsernameTaken):
		return http.StatusOK, Response{Message: auth.ErrUsernameTaken.Error()}
	case errors.Is(err, auth.ErrInvalidRole), errors.Is(err, auth.ErrPasswordTooLong), errors.As(err, &verr):
		return http.StatusBadRequest, Response{Message: err.Error()}
	case errors.As(err, &herr) && herr.Code < http.StatusInternalServerError:
		msg := http.StatusText(herr.Code)
		if m, ok := herr.Message.(string); ok {
			msg = m
		}
		return herr.Code, Response{Message: msg}
	}

	status := http.StatusInternalServerError
	if herr != nil {
		status = herr.Code
	}
	res := Response{Message: err.Error(), Stack: productionStack}
	if !production {
		res.Stack = chain(err)
	}
	return status, res
}

// chain lists err and every error it wraps, outermost first.
func chain(err error) string {
	var lines []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		lines = append(lines, e.Error())
	}
	return strings.Join(lines, "\n")
}
