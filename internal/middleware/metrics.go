package middleware

import (
	"brokerage_system/internal/metrics" // Prometheus counters
	"strconv"                           // Status code formatting

	"github.com/gin-gonic/gin" // Gin web framework
)

// RequestMetricsMiddleware counts every served request by route template
func RequestMetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()             // Serve the request first
		path := c.FullPath() // Route template keeps label cardinality bounded
		if path == "" {
			path = "unmatched" // No route matched
		}
		m.HTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status())) // Count the request
	}
}
