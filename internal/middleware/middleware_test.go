package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bandou-movie/internal/config"
	"github.com/iliyamo/bandou-movie/internal/logging"
	"github.com/iliyamo/bandou-movie/internal/utils"
)

const testSecret = "test-secret"

func serve(e *echo.Echo, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func bearerFor(t *testing.T, id uint64, role string) map[string]string {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, id, role, 5)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok.Token}
}

func TestJWTAuthAndRole(t *testing.T) {
	e := echo.New()
	admin := e.Group("/admin", JWTAuth(testSecret), RequireRole(utils.RoleAdmin))
	admin.GET("/who", func(c echo.Context) error {
		return c.String(http.StatusOK, strconv.FormatUint(c.Get(KeyUserID).(uint64), 10))
	})

	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/admin/who", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		serve(e, http.MethodGet, "/admin/who", map[string]string{"Authorization": "Bearer junk"}).Code)
	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/admin/who", bearerFor(t, 3, utils.RoleUser)).Code)

	rec := serve(e, http.MethodGet, "/admin/who", bearerFor(t, 9, utils.RoleAdmin))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "9", rec.Body.String())
}

func TestOptionalJWTLeavesAnonymous(t *testing.T) {
	e := echo.New()
	e.GET("/r", func(c echo.Context) error { return c.String(http.StatusOK, identity(c)) }, OptionalJWT(testSecret))

	assert.Equal(t, "guest", serve(e, http.MethodGet, "/r", nil).Body.String())
	assert.Equal(t, "guest", serve(e, http.MethodGet, "/r", map[string]string{"Authorization": "Bearer bad"}).Body.String())
	assert.Equal(t, "4", serve(e, http.MethodGet, "/r", bearerFor(t, 4, utils.RoleUser)).Body.String())
}

func TestTokenBucketBlocksWhenEmpty(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip_route",
		Prefix:         "rl:test",
	}
	e := echo.New()
	e.POST("/login", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, NewTokenBucket(cfg, rdb))

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusNoContent, serve(e, http.MethodPost, "/login", nil).Code)
	}
	rec := serve(e, http.MethodPost, "/login", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.True(t, retry >= 1 && retry <= 60)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestTokenBucketDisabledWithoutRedis(t *testing.T) {
	e := echo.New()
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1}
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, NewTokenBucket(cfg, nil))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/x", nil).Code)
	}
}

func TestRedisCacheReplaysResponse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	calls := 0
	e := echo.New()
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "img", MaxBodyBytes: 1024}
	e.GET("/proxy_image/", func(c echo.Context) error {
		calls++
		c.Response().Header().Set("Cache-Control", "max-age=86400")
		return c.Blob(http.StatusOK, "image/png", []byte("img"))
	}, NewRedisCache(cfg, rdb))

	first := serve(e, http.MethodGet, "/proxy_image/?url=a", nil)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := serve(e, http.MethodGet, "/proxy_image/?url=a", nil)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, "img", second.Body.String())
	assert.Equal(t, "image/png", second.Header().Get("Content-Type"))
	assert.Equal(t, "max-age=86400", second.Header().Get("Cache-Control"))
	assert.Equal(t, 1, calls)

	serve(e, http.MethodGet, "/proxy_image/?url=b", nil)
	assert.Equal(t, 2, calls)
}

func TestRequestIDPropagates(t *testing.T) {
	e := echo.New()
	e.Use(RequestID())
	e.GET("/id", func(c echo.Context) error {
		return c.String(http.StatusOK, logging.RequestIDFromContext(c.Request().Context()))
	})

	rec := serve(e, http.MethodGet, "/id", map[string]string{HeaderRequestID: "abc-123"})
	assert.Equal(t, "abc-123", rec.Body.String())
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))

	rec = serve(e, http.MethodGet, "/id", map[string]string{HeaderRequestID: "bad id with spaces"})
	assert.Len(t, rec.Body.String(), 36)
}
