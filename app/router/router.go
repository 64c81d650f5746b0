package router

import (
	"loadsentry/app/handler"
	"loadsentry/app/middleware"
	"loadsentry/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	detectorHandler *handler.DetectorHandler
	healthHandler   *handler.HealthHandler
	metrics         *monitoring.Metrics
}

// NewRouter creates a new Router
func NewRouter(detectorHandler *handler.DetectorHandler, healthHandler *handler.HealthHandler, metrics *monitoring.Metrics) *Router {
	return &Router{
		detectorHandler: detectorHandler,
		healthHandler:   healthHandler,
		metrics:         metrics,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	engine.GET("/healthz", r.healthHandler.Healthz)
	engine.GET("/metrics", gin.WrapH(r.metrics.Handler()))

	v1 := engine.Group("/v1")
	{
		det := v1.Group("/detector")
		{
			det.GET("/status", r.detectorHandler.GetStatus)
			det.GET("/detected", r.detectorHandler.GetDetected)
			det.POST("/detect", r.detectorHandler.Detect)
			det.POST("/load", r.detectorHandler.SetLoad)
			det.GET("/ws", r.detectorHandler.Stream)
		}
	}
}
