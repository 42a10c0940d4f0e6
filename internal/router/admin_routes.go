package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bandou-movie/internal/handler"
	"github.com/iliyamo/bandou-movie/internal/middleware"
	"github.com/iliyamo/bandou-movie/internal/utils"
)

// RegisterAdmin registers catalog management, analytics and user
// moderation under /api/admin.  All routes require the ADMIN role.
func RegisterAdmin(e *echo.Echo, mv *handler.AdminMovieHandler, us *handler.AdminUserHandler, o Options) {
	g := e.Group("/api/admin",
		middleware.JWTAuth(o.JWTSecret),
		middleware.RequireRole(utils.RoleAdmin),
	)

	// ---- Analytics ----
	// Static segments win over :id in Echo's router.
	g.GET("/movies/category_stats", mv.CategoryStats)
	g.GET("/movies/rating_distribution", mv.RatingDistribution)
	g.GET("/movies/movie_types", mv.MovieTypes)
	g.GET("/movies/:id/rating_trend", mv.RatingTrend)

	// ---- Movies ----
	g.GET("/movies", mv.List)
	g.POST("/movies", mv.Create)
	g.POST("/movies/bulk_delete", mv.BulkDelete)
	g.GET("/movies/:id", mv.Get)
	g.PUT("/movies/:id", mv.Update)
	g.PATCH("/movies/:id", mv.Update)
	g.DELETE("/movies/:id", mv.Delete)

	// ---- Users ----
	g.GET("/users", us.List)
	g.POST("/users/:id/ban", us.Ban)
	g.POST("/users/:id/unban", us.Unban)
	g.GET("/users/:id/login_records", us.LoginRecords)
}
