package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/afetnet/mesh-registry-api/internal/service"
)

// Metrics records method, route template, status, and latency for every
// request. The route template (not the raw URL) keeps label cardinality
// bounded.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
