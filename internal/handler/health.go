package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports the status of the service's dependencies.
type HealthHandler struct {
	db  *sql.DB
	rdb *redis.Client
}

// NewHealthHandler checks db and, when non-nil, rdb.
func NewHealthHandler(db *sql.DB, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb}
}

// Health answers 200 while the database is reachable and 503 otherwise.
// Redis is optional and never fails the check.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok", "redis": "disabled"}
	status := http.StatusOK
	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = "down"
		status = http.StatusServiceUnavailable
	}
	if h.rdb != nil {
		checks["redis"] = "ok"
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			checks["redis"] = "down"
		}
	}

	state := "ok"
	if status != http.StatusOK {
		state = "unavailable"
	}
	return c.JSON(status, echo.Map{"success": status == http.StatusOK, "status": state, "checks": checks})
}
