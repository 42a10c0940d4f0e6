package handler

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bandou-movie/internal/logging"
	"github.com/iliyamo/bandou-movie/internal/model"
	"github.com/iliyamo/bandou-movie/internal/repository"
	"github.com/iliyamo/bandou-movie/internal/service"
	"github.com/iliyamo/bandou-movie/internal/storage"
	"github.com/iliyamo/bandou-movie/internal/validation"
)

// RecentReleaseDays is the window of filter_type=recent_release.
const RecentReleaseDays = 30

// AdminMovieHandler manages the catalog and serves the admin analytics.
type AdminMovieHandler struct {
	Movies    *repository.MovieRepo
	Analytics *service.Analytics
	Media     storage.Storage
}

func NewAdminMovieHandler(movies *repository.MovieRepo, analytics *service.Analytics, media storage.Storage) *AdminMovieHandler {
	if movies == nil || analytics == nil || media == nil {
		panic("nil dependency passed to NewAdminMovieHandler")
	}
	return &AdminMovieHandler{Movies: movies, Analytics: analytics, Media: media}
}

// movieReq is accepted as JSON or multipart form; a multipart "cover" file
// replaces cover_url.
type movieReq struct {
	Title       *string `json:"title" validate:"omitempty,notblank,max=255"`
	Brief       *string `json:"brief"`
	CoverURL    *string `json:"cover_url" validate:"omitempty,max=500"`
	ReleaseDate *string `json:"release_date"`
	Director    *string `json:"director" validate:"omitempty,max=255"`
	Starring    *string `json:"starring" validate:"omitempty,max=255"`
	Category    *string `json:"category" validate:"omitempty,max=255"`
}

func isMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// bindMovie reads a movieReq from JSON or from multipart form values,
// keeping absent form fields nil.
func bindMovie(c echo.Context) (movieReq, bool) {
	var req movieReq
	if !isMultipart(c) {
		return req, bindValid(c, &req)
	}
	form, err := c.MultipartForm()
	if err != nil {
		_ = c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
		return req, false
	}
	field := func(name string) *string {
		if vs, ok := form.Value[name]; ok && len(vs) > 0 {
			v := vs[0]
			return &v
		}
		return nil
	}
	req.Title = field("title")
	req.Brief = field("brief")
	req.CoverURL = field("cover_url")
	req.ReleaseDate = field("release_date")
	req.Director = field("director")
	req.Starring = field("starring")
	req.Category = field("category")
	if verr := validation.ValidateStruct(&req); verr != nil {
		_ = c.JSON(http.StatusBadRequest, verr.Body())
		return req, false
	}
	return req, true
}

type bulkDeleteReq struct {
	IDs []uint64 `json:"ids" validate:"required,min=1,dive,gt=0"`
}

// apply copies the present fields onto m.  An empty release_date clears it.
func (r movieReq) apply(m *model.Movie) *validation.RequestValidationError {
	if r.Title != nil {
		m.Title = strings.TrimSpace(*r.Title)
	}
	if r.Brief != nil {
		m.Brief = *r.Brief
	}
	if r.CoverURL != nil {
		m.CoverURL = strings.TrimSpace(*r.CoverURL)
	}
	if r.Director != nil {
		m.Director = strings.TrimSpace(*r.Director)
	}
	if r.Starring != nil {
		m.Starring = strings.TrimSpace(*r.Starring)
	}
	if r.Category != nil {
		m.Category = strings.TrimSpace(*r.Category)
	}
	if r.ReleaseDate != nil {
		s := strings.TrimSpace(*r.ReleaseDate)
		if s == "" {
			m.ReleaseDate = nil
		} else {
			d, err := time.Parse("2006-01-02", s)
			if err != nil {
				return validation.NewFieldError("release_date", "must be a date in YYYY-MM-DD format")
			}
			m.ReleaseDate = &d
		}
	}
	return nil
}

// coverFile returns the uploaded cover, nil when none was sent.
func coverFile(c echo.Context) (*multipart.FileHeader, *validation.RequestValidationError) {
	if !isMultipart(c) {
		return nil, nil
	}
	fh, err := c.FormFile("cover")
	if err != nil {
		return nil, nil
	}
	if verr := validation.ValidateImage("cover", fh); verr != nil {
		return nil, verr
	}
	return fh, nil
}

func (h *AdminMovieHandler) saveCover(c echo.Context, fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	return h.Media.Save(c.Request().Context(), "covers", fh.Filename, src)
}

// dropCover removes an uploaded cover; scraped absolute URLs are left alone.
func (h *AdminMovieHandler) dropCover(c echo.Context, key string) {
	if key == "" {
		return
	}
	if err := h.Media.Delete(c.Request().Context(), key); err != nil {
		logging.Ctx(c.Request().Context()).Warn().Err(err).Str("key", key).Msg("cover not removed")
	}
}

func pageParams(c echo.Context) (int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > repository.MaxPageSize {
		size = repository.MaxPageSize
	}
	return page, size
}

// parseMovieQuery reads the admin listing filters from the query string.
func parseMovieQuery(c echo.Context) (repository.MovieListQuery, *validation.RequestValidationError) {
	var (
		q    repository.MovieListQuery
		verr = &validation.RequestValidationError{}
	)
	q.Page, q.PageSize = pageParams(c)
	q.Search = c.QueryParam("search")
	for name, dst := range map[string]**float64{"min_score": &q.MinScore, "max_score": &q.MaxScore} {
		if s := c.QueryParam(name); s != "" {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil || f < 0 || f > 5 {
				verr.Add(name, "must be a number between 0 and 5")
				continue
			}
			*dst = &f
		}
	}
	if s := c.QueryParam("no_rating"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			verr.Add("no_rating", "must be a boolean")
		}
		q.NoRating = b
	}
	for name, dst := range map[string]**time.Time{"release_date_start": &q.ReleaseDateStart, "release_date_end": &q.ReleaseDateEnd} {
		if s := c.QueryParam(name); s != "" {
			d, err := time.Parse("2006-01-02", s)
			if err != nil {
				verr.Add(name, "must be a date in YYYY-MM-DD format")
				continue
			}
			*dst = &d
		}
	}
	switch c.QueryParam("filter_type") {
	case "":
	case "recent_release":
		q.RecentDays = RecentReleaseDays
	default:
		verr.Add("filter_type", "unknown filter type")
	}
	q.Ordering = c.QueryParam("ordering")
	if !repository.ValidOrdering(q.Ordering) {
		verr.Add("ordering", "unsupported ordering")
	}
	if len(verr.Errors()) > 0 {
		return q, verr
	}
	return q, nil
}

// List returns one filtered page of the catalog.
func (h *AdminMovieHandler) List(c echo.Context) error {
	q, verr := parseMovieQuery(c)
	if verr != nil {
		return c.JSON(http.StatusBadRequest, verr.Body())
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ms, total, err := h.Movies.AdminList(ctx, q)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"count":     total,
		"page":      q.Page,
		"page_size": q.PageSize,
		"results":   service.NewMovieViews(ms, h.Media),
	})
}

// Get returns one movie.
func (h *AdminMovieHandler) Get(c echo.Context) error {
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

// Create adds a movie.  Score starts empty.
func (h *AdminMovieHandler) Create(c echo.Context) error {
	req, ok := bindMovie(c)
	if !ok {
		return nil
	}
	if req.Title == nil {
		return c.JSON(http.StatusBadRequest, validation.NewFieldError("title", "title is required").Body())
	}
	fh, verr := coverFile(c)
	if verr != nil {
		return c.JSON(http.StatusBadRequest, verr.Body())
	}
	var m model.Movie
	if verr := req.apply(&m); verr != nil {
		return c.JSON(http.StatusBadRequest, verr.Body())
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	if fh != nil {
		key, err := h.saveCover(c, fh)
		if err != nil {
			return writeError(c, err)
		}
		m.CoverURL = key
	}
	if err := h.Movies.Create(ctx, &m); err != nil {
		if fh != nil {
			h.dropCover(c, m.CoverURL)
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, service.NewMovieView(m, h.Media))
}

// Update serves PUT and PATCH.  PUT requires a title; PATCH changes only
// the fields present.
func (h *AdminMovieHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return nil
	}
	req, ok := bindMovie(c)
	if !ok {
		return nil
	}
	if c.Request().Method == http.MethodPut && req.Title == nil {
		return c.JSON(http.StatusBadRequest, validation.NewFieldError("title", "title is required").Body())
	}
	fh, verr := coverFile(c)
	if verr != nil {
		return c.JSON(http.StatusBadRequest, verr.Body())
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Movies.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	oldCover := m.CoverURL
	if verr := req.apply(m); verr != nil {
		return c.JSON(http.StatusBadRequest, verr.Body())
	}
	if fh != nil {
		key, err := h.saveCover(c, fh)
		if err != nil {
			return writeError(c, err)
		}
		m.CoverURL = key
	}
	if err := h.Movies.Update(ctx, m); err != nil {
		if fh != nil {
			h.dropCover(c, m.CoverURL)
		}
		return writeError(c, err)
	}
	if m.CoverURL != oldCover {
		h.dropCover(c, oldCover)
	}
	return c.JSON(http.StatusOK, service.NewMovieView(*m, h.Media))
}

// Delete removes a movie with its ratings, comments and uploaded cover.
func (h *AdminMovieHandler) Delete(c echo.Context) error {
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
	if err := h.Movies.Delete(ctx, id); err != nil {
		return writeError(c, err)
	}
	h.dropCover(c, m.CoverURL)
	return c.NoContent(http.StatusNoContent)
}

// BulkDelete removes every listed movie.  Uploaded covers of bulk deleted
// movies are not cleaned up.
func (h *AdminMovieHandler) BulkDelete(c echo.Context) error {
	var req bulkDeleteReq
	if !bindValid(c, &req) {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	n, err := h.Movies.BulkDelete(ctx, req.IDs)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": n})
}

// CategoryStats returns [{category, count}].
func (h *AdminMovieHandler) CategoryStats(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Analytics.CategoryStats(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// RatingDistribution returns the score buckets per category.
func (h *AdminMovieHandler) RatingDistribution(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Analytics.RatingDistribution(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// MovieTypes returns the sorted distinct categories.
func (h *AdminMovieHandler) MovieTypes(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Analytics.MovieTypes(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// RatingTrend returns eight daily points ending today.
func (h *AdminMovieHandler) RatingTrend(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Analytics.RatingTrend(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
