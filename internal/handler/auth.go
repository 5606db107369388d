package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-session-api/internal/auth"
	"github.com/iliyamo/auth-session-api/internal/middleware"
)

// AuthHandler exposes the auth service over HTTP.
type AuthHandler struct {
	svc     *auth.Service
	timeout time.Duration
}

func NewAuthHandler(svc *auth.Service, timeout time.Duration) *AuthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AuthHandler{svc: svc, timeout: timeout}
}

type registerReq struct {
	Email     string   `json:"email" validate:"required,email,max=100"`
	Password  string   `json:"password" validate:"required,bcrypt"`
	Roles     []string `json:"roles" validate:"omitempty,dive,oneof=Admin User Guest"`
	Username  string   `json:"username" validate:"omitempty,max=50"`
	FirstName string   `json:"firstName" validate:"omitempty,max=50"`
	LastName  string   `json:"lastName" validate:"omitempty,max=50"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type accessData struct {
	AccessToken string `json:"accessToken"`
}

// bind decodes and validates the JSON body into req.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return c.Validate(req)
}

// Register creates an account and returns its first token pair.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	pair, err := h.svc.Register(ctx, auth.Registration{
		Email:     req.Email,
		Password:  req.Password,
		Roles:     req.Roles,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Success: true, Message: "User successfully registered", Data: pair})
}

// Login verifies credentials and returns the session's token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return auth.ErrInvalidCredentials
		}
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	pair, err := h.svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Success: true, Message: "Successfully logged in", Data: pair})
}

// Token exchanges a refresh token for a new access token.
func (h *AuthHandler) Token(c echo.Context) error {
	p, ok := middleware.PayloadFrom(c)
	if !ok {
		return auth.ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	access, err := h.svc.Refresh(ctx, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Success: true, Data: accessData{AccessToken: access}})
}

// Logout ends the session of the access token's user.
func (h *AuthHandler) Logout(c echo.Context) error {
	p, ok := middleware.PayloadFrom(c)
	if !ok {
		return auth.ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	if err := h.svc.Logout(ctx, p); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Success: true, Message: "Successfully logged out"})
}

// Me returns the profile of the access token's user.
func (h *AuthHandler) Me(c echo.Context) error {
	p, ok := middleware.PayloadFrom(c)
	if !ok {
		return auth.ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	prof, err := h.svc.Profile(ctx, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Success: true, Data: prof})
}
