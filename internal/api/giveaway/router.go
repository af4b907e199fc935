package giveaway

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aimd54/giveaway-engine/pkg/logger"
)

// NewRouter builds the HTTP router. metricsPath is left unmounted when empty.
func NewRouter(h *Handler, metricsPath string, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	h.Register(router)
	if metricsPath != "" {
		router.GET(metricsPath, gin.WrapH(promhttp.Handler()))
	}
	return router
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		log.Debug().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	}
}
