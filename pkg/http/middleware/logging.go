package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// RequestLogging emits one structured line per request. Detailed error and
// slow-request logging lives in the metrics middleware; this is the access
// log.
func RequestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)

			log.Debug().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote", c.RealIP()).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("http request")

			return err
		}
	}
}
