package http

import (
	"github.com/gin-gonic/gin"

	"finetune-orchestrator/internal/bootstrap"
	"finetune-orchestrator/internal/transport/http/handler"
	"finetune-orchestrator/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.MaxMultipartMemory = app.Config.Storage.MaxUploadSize

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	documentHandler := handler.NewDocumentHandler(app.Documents, app.FineTune, app.Config.BatchTimeout(), app.Config.Storage.MaxUploadSize)
	playgroundHandler := handler.NewPlaygroundHandler(app.Generation)
	logHandler := handler.NewLogHandler(app.GenerationLogs)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))

	docGroup := v1.Group("/documents")
	docGroup.POST("", documentHandler.Upload)
	docGroup.GET("", documentHandler.List)
	docGroup.GET("/:id", documentHandler.Get)
	docGroup.DELETE("/:id", documentHandler.Delete)
	docGroup.POST("/fine-tune", documentHandler.FineTune)

	jobGroup := v1.Group("/fine-tune/jobs")
	jobGroup.GET("/:batchID", documentHandler.Job)
	jobGroup.GET("/:batchID/logs", documentHandler.TrainingLogs)

	playground := v1.Group("/playground")
	playground.POST("/competency", playgroundHandler.Competency)
	playground.POST("/normalize", playgroundHandler.Normalize)

	logGroup := v1.Group("/logs")
	logGroup.GET("", logHandler.List)
	logGroup.GET("/stats", logHandler.Stats)
	logGroup.GET("/:id", logHandler.Get)

	return router
}
