package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const readinessTimeout = 3 * time.Second

type dbPinger interface {
	PingContext(ctx context.Context) error
}

type dependencyStatus struct {
	Status string `json:"status"`
}

type readinessResponse struct {
	Status       string                      `json:"status"`
	Dependencies map[string]dependencyStatus `json:"dependencies"`
}

type HealthController struct {
	db    dbPinger
	redis redis.Cmdable
}

// NewHealthController builds the probes. rdb may be nil when rate limiting is
// disabled; Redis is then left out of readiness.
func NewHealthController(db dbPinger, rdb redis.Cmdable) *HealthController {
	return &HealthController{db: db, redis: rdb}
}

func (h *HealthController) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthController) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
	defer cancel()

	deps := make(map[string]dependencyStatus)
	healthy := true

	if err := h.db.PingContext(ctx); err != nil {
		logrus.WithError(err).WithField("dependency", "mysql").Warn("Readiness check failed")
		deps["mysql"] = dependencyStatus{Status: "unhealthy"}
		healthy = false
	} else {
		deps["mysql"] = dependencyStatus{Status: "ok"}
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			logrus.WithError(err).WithField("dependency", "redis").Warn("Readiness check failed")
			deps["redis"] = dependencyStatus{Status: "unhealthy"}
			healthy = false
		} else {
			deps["redis"] = dependencyStatus{Status: "ok"}
		}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	return c.JSON(code, readinessResponse{Status: status, Dependencies: deps})
}
