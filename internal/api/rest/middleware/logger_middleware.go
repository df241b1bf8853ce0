package middleware

import (
	"time"

	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader заголовок с идентификатором запроса
const RequestIDHeader = "X-Request-ID"

// LoggerMiddleware создает middleware для логирования запросов
func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDHeader, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		latencyTime := time.Since(startTime)
		statusCode := c.Writer.Status()

		switch {
		case statusCode >= 500:
			log.Error("[%s] %s %d %s %s %s", c.Request.Method, c.Request.RequestURI, statusCode,
				latencyTime.String(), c.ClientIP(), requestID)
		case statusCode >= 400:
			log.Warn("[%s] %s %d %s %s %s", c.Request.Method, c.Request.RequestURI, statusCode,
				latencyTime.String(), c.ClientIP(), requestID)
		default:
			log.Info("[%s] %s %d %s %s %s", c.Request.Method, c.Request.RequestURI, statusCode,
				latencyTime.String(), c.ClientIP(), requestID)
		}
	}
}
