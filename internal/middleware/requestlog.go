package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bandou-movie/internal/logging"
	"github.com/iliyamo/bandou-movie/internal/metrics"
)

// RequestLogger writes one structured line per request and records the
// request counters.  It must run after RequestID.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			status := c.Response().Status
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			elapsed := time.Since(start)
			metrics.RecordAPIRequest(c.Request().Method, route, status, elapsed)

			ev := logging.Ctx(c.Request().Context()).Info()
			if status >= 500 {
				ev = logging.Ctx(c.Request().Context()).Error()
			}
			if err != nil {
				ev = ev.Err(err)
			}
			ev.Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Str("route", route).
				Int("status", status).
				Dur("latency", elapsed).
				Str("ip", c.RealIP()).
				Msg("request")
			return nil
		}
	}
}
