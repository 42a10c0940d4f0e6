package router // package router defines how HTTP routes are registered for the API

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/bandou-movie/internal/handler"
	"github.com/iliyamo/bandou-movie/internal/middleware"
	"github.com/iliyamo/bandou-movie/internal/utils"
)

// Options carries the cross-cutting pieces every route group shares.
type Options struct {
	JWTSecret   string
	CORSOrigins []string
	BodyLimit   string // e.g. "10M"
	MediaRoot   string // served under /media when set
	RateLimit   echo.MiddlewareFunc
	AuthLimit   echo.MiddlewareFunc // applied on credential endpoints
	ImageCache  echo.MiddlewareFunc // applied on the image proxy
}

func orPass(mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	if mw == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return mw
}

// Setup installs the global middleware chain.  Order matters: the request
// id must exist before the logger runs, and the rate limiter sits behind
// both so throttled requests are still logged.
func Setup(e *echo.Echo, o Options) {
	e.HideBanner = true
	e.Use(echomw.Recover())
	origins := o.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, middleware.HeaderRequestID},
	}))
	if o.BodyLimit != "" {
		e.Use(echomw.BodyLimit(o.BodyLimit))
	}
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger())
	e.Use(orPass(o.RateLimit))
}

// RegisterRoutes registers the operational endpoints and the media files.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler, o Options) {
	// Liveness for load balancers; ?deep=1 also pings MySQL and Redis.
	e.GET("/healthz", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if o.MediaRoot != "" {
		e.Static("/media", o.MediaRoot)
	}
}

// RegisterAuth registers account creation, login and token endpoints.  The
// unauthenticated ones are throttled by the auth limiter.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, o Options) {
	limited := orPass(o.AuthLimit)
	e.POST("/api/user/register", a.Register, limited)
	e.POST("/api/user/login", a.Login, limited)
	e.POST("/api/token/refresh", a.Refresh, limited)
	e.POST("/api/user/password_reset/request", a.RequestPasswordReset, limited)
	e.POST("/api/user/password_reset/confirm", a.ConfirmPasswordReset, limited)

	auth := e.Group("/api/user",
		middleware.JWTAuth(o.JWTSecret),
		middleware.RequireRole(utils.RoleUser, utils.RoleAdmin),
	)
	auth.POST("/logout", a.Logout)
	auth.GET("/profile", a.Profile)
	auth.PATCH("/profile", a.UpdateProfile)
	auth.PATCH("/avatar", a.UpdateAvatar)
	auth.POST("/change_password", a.ChangePassword, limited)
}

// RegisterPublic registers the catalog endpoints open to guests.
func RegisterPublic(e *echo.Echo, m *handler.MovieHandler, p *handler.ImageProxyHandler, o Options) {
	e.GET("/bandou/movies", m.ListByCategory)
	e.GET("/bandou/movies/:id", m.Get)
	e.GET("/movies/ranking", m.Ranking)

	e.GET("/api/movies/search", m.Search)
	// Anonymous callers get a cold-start list, signed in users a
	// personalised one.
	e.GET("/api/movies/recommend", m.Recommend, middleware.OptionalJWT(o.JWTSecret))
	e.GET("/api/movies/:movie_id/ratings", m.MovieRatings)
	e.GET("/api/movies/:movie_id/rating_stats", m.RatingStats)
	e.GET("/api/movies/:movie_id/comments", m.MovieComments)

	e.GET("/proxy_image/", p.Proxy, orPass(o.ImageCache))
}
