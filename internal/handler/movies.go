package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bandou-movie/internal/category"
	"github.com/iliyamo/bandou-movie/internal/model"
	"github.com/iliyamo/bandou-movie/internal/repository"
	"github.com/iliyamo/bandou-movie/internal/service"
	"github.com/iliyamo/bandou-movie/internal/storage"
)

// MovieHandler serves the public catalog, ratings, comments and
// recommendations.
type MovieHandler struct {
	Movies      *repository.MovieRepo
	Ratings     *service.RatingService
	Comments    *service.CommentService
	Recommender *service.Recommender
	Media       storage.Storage
}

func NewMovieHandler(movies *repository.MovieRepo, ratings *service.RatingService, comments *service.CommentService,
	rec *service.Recommender, media storage.Storage) *MovieHandler {
	if movies == nil || ratings == nil || comments == nil || rec == nil || media == nil {
		panic("nil dependency passed to NewMovieHandler")
	}
	return &MovieHandler{Movies: movies, Ratings: ratings, Comments: comments, Recommender: rec, Media: media}
}

func (h *MovieHandler) views(ms []model.Movie) []service.MovieView {
	return service.NewMovieViews(ms, h.Media)
}

// ListByCategory lists movies best first, optionally narrowed by
// ?category=comedy|action|drama|other.
func (h *MovieHandler) ListByCategory(c echo.Context) error {
	match, ok := category.Matcher(strings.ToLower(strings.TrimSpace(c.QueryParam("category"))))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown category"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	all, err := h.Movies.Ranking(ctx, 0)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]model.Movie, 0, len(all))
	for _, m := range all {
		if match(m.Category) {
			out = append(out, m)
		}
	}
	return c.JSON(http.StatusOK, h.views(out))
}

// Get returns one movie.
func (h *MovieHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Movies.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, service.NewMovieView(*m, h.Media))
}

// Search matches ?keyword= across the text columns; a blank keyword finds
// nothing.
func (h *MovieHandler) Search(c echo.Context) error {
	kw := strings.TrimSpace(c.QueryParam("keyword"))
	if kw == "" {
		return c.JSON(http.StatusOK, []service.MovieView{})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ms, err := h.Movies.Search(ctx, kw)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, h.views(ms))
}

// Ranking lists movies by score; ?limit= caps the list.
func (h *MovieHandler) Ranking(c echo.Context) error {
	limit := 0
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
		limit = n
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ms, err := h.Movies.Ranking(ctx, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, h.views(ms))
}

// Recommend answers a bare list for users with rating history and an
// object with a message otherwise.
func (h *MovieHandler) Recommend(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	rec, err := h.Recommender.Recommend(ctx, optionalUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	if rec.Personal {
		return c.JSON(http.StatusOK, rec.Movies)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"movies":       rec.Movies,
		"is_anonymous": rec.Anonymous,
		"message":      rec.Message,
	})
}
