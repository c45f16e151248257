package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// Pinger is anything with a health probe; both the pgx pool and the local
// kv store satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// poolPinger adapts *pgxpool.Pool, whose Ping matches Pinger already.
var _ Pinger = (*pgxpool.Pool)(nil)

// HealthHandler reports service liveness plus storage reachability.
func HealthHandler(version string, store Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		if store != nil {
			if err := store.Ping(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
					"status":  "unhealthy",
					"version": version,
					"error":   err.Error(),
				})
			}
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"version": version,
		})
	}
}
