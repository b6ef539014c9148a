package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/homebase/internal/transport/http/handler"
	"github.com/ErlanBelekov/homebase/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

func NewRouter(logger *slog.Logger, scheduleHandler *handler.ScheduleHandler, executionHandler *handler.ExecutionHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	schedules := r.Group("/schedules")
	schedules.POST("", scheduleHandler.Create)
	schedules.GET("", scheduleHandler.List)
	schedules.GET("/active", scheduleHandler.Active)
	schedules.GET("/:id", scheduleHandler.GetByID)
	schedules.PATCH("/:id", scheduleHandler.Update)
	schedules.DELETE("/:id", scheduleHandler.Delete)
	schedules.GET("/:id/executions", executionHandler.ListByDefinition)

	r.GET("/weather", executionHandler.LatestWeather)

	return r
}
