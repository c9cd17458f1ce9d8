package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"finetune-orchestrator/internal/bootstrap"
	mysqlClient "finetune-orchestrator/internal/platform/mysql"
	rabbitmqClient "finetune-orchestrator/internal/platform/rabbitmq"
	redisClient "finetune-orchestrator/internal/platform/redis"
)

type HealthHandler struct {
	app *bootstrap.App
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	mysqlStatus := statusOf(mysqlClient.Ping(ctx, h.app.MySQL))
	redisStatus := statusOf(redisClient.Ping(ctx, h.app.Redis))
	rmqStatus := statusOf(rabbitmqClient.Ping(h.app.MQConn))

	statusCode := http.StatusOK
	if !mysqlStatus.OK || !redisStatus.OK || !rmqStatus.OK {
		statusCode = http.StatusServiceUnavailable
	}

	trainingMode := "simulated"
	if h.app.Config.RemoteEnabled() {
		trainingMode = "remote"
	}

	c.JSON(statusCode, gin.H{
		"app":           h.app.Config.App.Name,
		"env":           h.app.Config.App.Env,
		"training_mode": trainingMode,
		"uptime_sec":    int(time.Since(h.app.StartedAt).Seconds()),
		"dependencies": gin.H{
			"mysql":    mysqlStatus,
			"redis":    redisStatus,
			"rabbitmq": rmqStatus,
		},
	})
}

func statusOf(err error) dependencyStatus {
	if err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}
