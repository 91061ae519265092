package middleware

import (
	"time"

	"github.com/GoPolymarket/polyclob/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
)

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		// Route template keeps /v1/books/:asset_id to one series.
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.LatencyBucket.WithLabelValues("ops " + endpoint).Observe(duration)
	}
}
