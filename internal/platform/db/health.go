package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const healthTimeout = 5 * time.Second

// PoolUsage summarizes connection pool occupancy.
type PoolUsage struct {
	Total     int32 `json:"total"`
	Idle      int32 `json:"idle"`
	InUse     int32 `json:"in_use"`
	Max       int32 `json:"max"`
	Saturated bool  `json:"saturated"`
}

func poolUsage(pool *pgxpool.Pool) PoolUsage {
	stat := pool.Stat()
	return PoolUsage{
		Total:     stat.TotalConns(),
		Idle:      stat.IdleConns(),
		InUse:     stat.AcquiredConns(),
		Max:       stat.MaxConns(),
		Saturated: stat.MaxConns() > 0 && stat.AcquiredConns() >= stat.MaxConns(),
	}
}

// Health is the body of GET /health/db. SchemaVersion is the highest
// applied migration, so a deploy that skipped migrate shows up here.
type Health struct {
	Status        string    `json:"status"`
	SchemaVersion int       `json:"schema_version"`
	Pool          PoolUsage `json:"pool"`
}

// SchemaVersion returns the highest applied migration version, 0 when none.
func SchemaVersion(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var v int
	err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM _migrations`).Scan(&v)
	return v, err
}

// HealthHandler serves GET /health/db. Failures answer 503 and are logged;
// the driver error stays out of the body.
func HealthHandler(pool *pgxpool.Pool, logger zerolog.Logger) echo.HandlerFunc {
	return healthHandler(
		func(ctx context.Context) (int, error) { return SchemaVersion(ctx, pool) },
		func() PoolUsage { return poolUsage(pool) },
		logger,
	)
}

func healthHandler(version func(context.Context) (int, error), usage func() PoolUsage, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		h := Health{Status: "ok", Pool: usage()}
		v, err := version(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("database health check failed")
			h.Status = "unavailable"
			return c.JSON(http.StatusServiceUnavailable, h)
		}
		h.SchemaVersion = v
		if h.Pool.Saturated {
			h.Status = "saturated"
		}
		return c.JSON(http.StatusOK, h)
	}
}
