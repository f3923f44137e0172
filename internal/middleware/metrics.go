package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/sis-api/internal/service"
)

// Metrics records method, templated path, status and latency for every
// request. Admission rejections come back as 4xx, so this is also where
// registration-window error rates show up on the dashboards.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, status, duration)
	}
}
