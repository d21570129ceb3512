package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterHTTPRoutes 注册健康检查HTTP路由
func RegisterHTTPRoutes(r gin.IRoutes, aggregator *Aggregator) {
	ready := func(c *gin.Context) {
		if !aggregator.Ready(c.Request.Context()) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"ready":   false,
				"pending": aggregator.Readiness().Pending(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ready": true})
	}
	live := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"alive": aggregator.Alive()})
	}

	// 详细健康检查，降级仍返回200
	r.GET("/health", func(c *gin.Context) {
		report := aggregator.Report(c.Request.Context())
		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, report)
	})
	r.GET("/health/ready", ready)
	r.GET("/readyz", ready)
	r.GET("/health/live", live)
	r.GET("/healthz", live)
}
