package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rolechat/internal/bootstrap"
	"rolechat/internal/platform/rabbitmq"
	"rolechat/internal/platform/redis"
)

type HealthHandler struct {
	app *bootstrap.App
}

type dependencyStatus struct {
	Enabled bool   `json:"enabled"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

// Check reports 503 when any enabled dependency is unreachable.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := h.checkDatabase(ctx)
	redisStatus := h.checkRedis(ctx)
	rmqStatus := h.checkRabbitMQ()

	allOK := dbStatus.OK && redisStatus.OK && rmqStatus.OK
	statusCode := http.StatusOK
	if !allOK {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"app":        h.app.Config.App.Name,
		"env":        h.app.Config.App.Env,
		"uptime_sec": int(time.Since(h.app.StartedAt).Seconds()),
		"dependencies": gin.H{
			"database": dbStatus,
			"redis":    redisStatus,
			"rabbitmq": rmqStatus,
		},
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) dependencyStatus {
	sqlDB, err := h.app.DB.DB()
	if err != nil {
		return dependencyStatus{Enabled: true, Message: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return dependencyStatus{Enabled: true, Message: err.Error()}
	}
	return dependencyStatus{Enabled: true, OK: true}
}

func (h *HealthHandler) checkRedis(ctx context.Context) dependencyStatus {
	if h.app.Redis == nil {
		return dependencyStatus{OK: true, Message: "disabled"}
	}
	if err := redis.Ping(ctx, h.app.Redis); err != nil {
		return dependencyStatus{Enabled: true, Message: err.Error()}
	}
	return dependencyStatus{Enabled: true, OK: true}
}

func (h *HealthHandler) checkRabbitMQ() dependencyStatus {
	if h.app.MQConn == nil {
		return dependencyStatus{OK: true, Message: "disabled"}
	}
	if err := rabbitmq.Ping(h.app.MQConn); err != nil {
		return dependencyStatus{Enabled: true, Message: err.Error()}
	}
	return dependencyStatus{Enabled: true, OK: true}
}
