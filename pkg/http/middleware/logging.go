package middleware

import (
	"time"

	applogger "ClientPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs one structured line per request. Probe endpoints are
// skipped so scrapes do not drown the estimate traffic.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if path == "/healthz" || path == "/metrics" {
				return next(c)
			}
			start := time.Now()

			err := next(c)

			l.Info("http request",
				applogger.String("method", c.Request().Method),
				applogger.String("path", path),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", c.Response().Status),
				applogger.Duration("latency", time.Since(start)))
			return err
		}
	}
}
