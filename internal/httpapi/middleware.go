package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shythm/road-cctv-recanalyzer/internal/logx"
)

// RequestID stamps every request with an opaque id (attached to the
// request context and echoed in the X-Request-Id response header),
// grounded on internal/logx's request-id helper and the teacher's
// AuthMiddleware's position as the first thing in the chain.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = logx.NewRequestID()
		}
		ctx := logx.WithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Request-Id", id)
		c.Next()
	}
}

// AccessLog replaces gin.Logger with a structured zerolog line per
// request, grounded on ManuGH-xg2g's access-log shape.
func AccessLog() gin.HandlerFunc {
	log := logx.Component("httpapi")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("request_id", logx.RequestID(c.Request.Context())).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
