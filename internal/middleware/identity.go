package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// identity returns the authenticated user id as a string, or "guest".  The
// rate limiter and cache key on it.
func identity(c echo.Context) string {
	if id, ok := c.Get(KeyUserID).(uint64); ok && id != 0 {
		return strconv.FormatUint(id, 10)
	}
	return "guest"
}
