package handler // HTTP handlers for the Echo router

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bandou-movie/internal/fetch"
	"github.com/iliyamo/bandou-movie/internal/logging"
	"github.com/iliyamo/bandou-movie/internal/repository"
	"github.com/iliyamo/bandou-movie/internal/service"
	"github.com/iliyamo/bandou-movie/internal/validation"
)

const requestTimeout = 5 * time.Second

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// getUserID extracts the user_id set by the JWT middleware.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get("user_id").(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// optionalUserID is getUserID for routes that also serve anonymous callers.
func optionalUserID(c echo.Context) *uint64 {
	id, err := getUserID(c)
	if err != nil || id == 0 {
		return nil
	}
	return &id
}

// mustUserID answers 401 when the context carries no user.
func mustUserID(c echo.Context) (uint64, bool) {
	id, err := getUserID(c)
	if err != nil || id == 0 {
		_ = c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		return 0, false
	}
	return id, true
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		_ = c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// bindValid binds the body into dst and runs struct validation, answering
// 400 itself on failure.
func bindValid(c echo.Context, dst any) bool {
	if err := c.Bind(dst); err != nil {
		_ = c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
		return false
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		_ = c.JSON(http.StatusBadRequest, verr.Body())
		return false
	}
	return true
}

// clientIP takes the first X-Forwarded-For entry, else the remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeError maps domain errors onto status codes.
func writeError(c echo.Context, err error) error {
	var (
		verr *validation.RequestValidationError
		rl   *service.RateLimitedError
	)
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, verr.Body())
	case errors.Is(err, repository.ErrUsernameExists):
		return c.JSON(http.StatusBadRequest, validation.NewFieldError("username", err.Error()).Body())
	case errors.Is(err, repository.ErrEmailExists):
		return c.JSON(http.StatusBadRequest, validation.NewFieldError("email", err.Error()).Body())
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "permission denied"})
	case errors.As(err, &rl):
		c.Response().Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter()))
		return c.JSON(http.StatusTooManyRequests, echo.Map{"error": rl.Error(), "retry_after": rl.RetryAfter()})
	case errors.Is(err, service.ErrUnavailable):
		logging.Ctx(c.Request().Context()).Warn().Err(err).Msg("backing service unavailable")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service temporarily unavailable"})
	case errors.Is(err, fetch.ErrUpstream), errors.Is(err, fetch.ErrTooLarge):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "upstream fetch failed"})
	case errors.Is(err, service.ErrDelivery):
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to send email"})
	case errors.Is(err, context.DeadlineExceeded):
		logging.Ctx(c.Request().Context()).Error().Err(err).Msg("request timed out")
		return c.JSON(http.StatusGatewayTimeout, echo.Map{"error": "timeout"})
	}
	ev := logging.Ctx(c.Request().Context()).Error().Err(err).Str("path", c.Path())
	if errors.Is(err, repository.ErrInconsistent) {
		ev = ev.Bool("inconsistent", true)
	}
	ev.Msg("request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
