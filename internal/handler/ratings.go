package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type ratingReq struct {
	Rating *float64 `json:"rating" validate:"required,gte=0,lte=5"`
}

type userRatingReq struct {
	Movie  uint64   `json:"movie" validate:"required"`
	Rating *float64 `json:"rating" validate:"required,gte=0,lte=5"`
}

type ratingPatchReq struct {
	Movie  *uint64  `json:"movie"`
	Rating *float64 `json:"rating" validate:"required,gte=0,lte=5"`
}

func upsertStatus(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
}

// MovieRatings lists a movie's ratings newest first.
func (h *MovieHandler) MovieRatings(c echo.Context) error {
	id, ok := pathID(c, "movie_id")
	if !ok {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	rs, err := h.Ratings.ListForMovie(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rs)
}

// RatingStats returns {avg_rating, rating_count}.
func (h *MovieHandler) RatingStats(c echo.Context) error {
	id, ok := pathID(c, "movie_id")
	if !ok {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	st, err := h.Ratings.Stats(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// MyRating returns the caller's rating of the movie, or {"id": null, "rating": 0}.
func (h *MovieHandler) MyRating(c echo.Context) error {
	uid, ok := mustUserID(c)
	if !ok {
		return nil
	}
	id, ok := pathID(c, "movie_id")
	if !ok {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	v, err := h.Ratings.Get(ctx, uid, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// RateMovie creates or overwrites the caller's rating: 201 on create, 200
// on overwrite.
func (h *MovieHandler) RateMovie(c echo.Context) error {
	uid, ok := mustUserID(c)
	if !ok {
		return nil
	}
	id, ok := pathID(c, "movie_id")
	if !ok {
		return nil
	}
	var req ratingReq
	if !bindValid(c, &req) {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	v, created, err := h.Ratings.Upsert(ctx, uid, id, *req.Rating)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(upsertStatus(created), v)
}

// UserRatings lists the caller's ratings.
func (h *MovieHandler) UserRatings(c echo.Context) error {
	uid, ok := mustUserID(c)
	if !ok {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	rs, err := h.Ratings.ListForUser(ctx, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rs)
}

// CreateUserRating is RateMovie with the movie id in the body.
func (h *MovieHandler) CreateUserRating(c echo.Context) error {
	uid, ok := mustUserID(c)
	if !ok {
		return nil
	}
	var req userRatingReq
	if !bindValid(c, &req) {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	v, created, err := h.Ratings.Upsert(ctx, uid, req.Movie, *req.Rating)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(upsertStatus(created), v)
}

// UpdateUserRating changes the value of one of the caller's ratings.
func (h *MovieHandler) UpdateUserRating(c echo.Context) error {
	uid, ok := mustUserID(c)
	if !ok {
		return nil
	}
	id, ok := pathID(c, "id")
	if !ok {
		return nil
	}
	var req ratingPatchReq
	if !bindValid(c, &req) {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	v, err := h.Ratings.Update(ctx, uid, id, req.Movie, *req.Rating)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// DeleteUserRating removes one of the caller's ratings.
func (h *MovieHandler) DeleteUserRating(c echo.Context) error {
	uid, ok := mustUserID(c)
	if !ok {
		return nil
	}
	id, ok := pathID(c, "id")
	if !ok {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Ratings.Delete(ctx, uid, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
