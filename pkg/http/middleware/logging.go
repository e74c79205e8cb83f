package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"MarketLabel/pkg/logger"
)

// RequestLogging logs every HTTP request at debug level.
func RequestLogging(log logger.Interface) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)

			log.Debug("http request",
				logger.String("method", req.Method),
				logger.String("uri", req.RequestURI),
				logger.String("remote", c.RealIP()),
				logger.Int("status", c.Response().Status),
				logger.Duration("latency_ms", time.Since(start)),
			)

			return err
		}
	}
}
