package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bandou-movie/internal/handler"
	"github.com/iliyamo/bandou-movie/internal/middleware"
	"github.com/iliyamo/bandou-movie/internal/utils"
)

// RegisterUser registers the rating and comment endpoints of signed in
// users.  Both USER and ADMIN tokens are accepted.
func RegisterUser(e *echo.Echo, m *handler.MovieHandler, o Options) {
	g := e.Group("/api",
		middleware.JWTAuth(o.JWTSecret),
		middleware.RequireRole(utils.RoleUser, utils.RoleAdmin),
	)

	// ---- Ratings ----
	g.GET("/movies/:movie_id/my_rating", m.MyRating)
	g.POST("/movies/:movie_id/my_rating", m.RateMovie)
	g.GET("/user/ratings", m.UserRatings)
	g.POST("/user/ratings", m.CreateUserRating)
	g.PATCH("/user/ratings/:id", m.UpdateUserRating)
	g.DELETE("/user/ratings/:id", m.DeleteUserRating)

	// ---- Comments ----
	g.GET("/user/comments", m.UserComments)
	g.POST("/user/comments", m.CreateComment)
	g.DELETE("/comments/:id", m.DeleteComment)
	g.POST("/comments/:id/reply", m.ReplyComment)
}
