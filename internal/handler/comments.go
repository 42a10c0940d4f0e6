package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type commentReq struct {
	Movie   uint64 `json:"movie" validate:"required"`
	Comment string `json:"comment"`
}

type replyReq struct {
	Comment string `json:"comment"`
}

// MovieComments returns the movie's comment threads.
func (h *MovieHandler) MovieComments(c echo.Context) error {
	id, ok := pathID(c, "movie_id")
	if !ok {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Comments.ListForMovie(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// UserComments lists the caller's comments newest first.
func (h *MovieHandler) UserComments(c echo.Context) error {
	uid, ok := mustUserID(c)
	if !ok {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Comments.ListForUser(ctx, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// CreateComment posts a top-level comment.  Blank text is rejected by the
// service.
func (h *MovieHandler) CreateComment(c echo.Context) error {
	uid, ok := mustUserID(c)
	if !ok {
		return nil
	}
	var req commentReq
	if !bindValid(c, &req) {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	v, err := h.Comments.Create(ctx, uid, req.Movie, req.Comment)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, v)
}

// ReplyComment answers the comment in the path.
func (h *MovieHandler) ReplyComment(c echo.Context) error {
	uid, ok := mustUserID(c)
	if !ok {
		return nil
	}
	id, ok := pathID(c, "id")
	if !ok {
		return nil
	}
	var req replyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	v, err := h.Comments.Reply(ctx, uid, id, req.Comment)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, v)
}

// DeleteComment removes the caller's comment together with its replies.
func (h *MovieHandler) DeleteComment(c echo.Context) error {
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
	removed, err := h.Comments.Delete(ctx, uid, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": removed})
}
