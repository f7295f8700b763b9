package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/obs"
)

// NewRouter wires the order, health and metrics routes.
func NewRouter(pub OrderPublisher, gatherer prometheus.Gatherer, metrics *obs.Metrics, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), instrument(metrics, logger))

	h := NewOrderHandler(pub, logger)
	router.GET("/health", h.HealthCheck)
	router.POST("/orders", h.CreateOrder)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return router
}

func instrument(metrics *obs.Metrics, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		status := c.Writer.Status()
		metrics.ObserveHTTPRequest(route, c.Request.Method, status, elapsed)

		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
		)
	}
}
