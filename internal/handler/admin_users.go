package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bandou-movie/internal/logging"
	"github.com/iliyamo/bandou-movie/internal/repository"
	"github.com/iliyamo/bandou-movie/internal/storage"
	"github.com/iliyamo/bandou-movie/internal/validation"
)

// AdminUserHandler lists accounts, bans them and shows login history.
type AdminUserHandler struct {
	Users       *repository.UserRepo
	Tokens      *repository.TokenRepo
	Logins      *repository.LoginRecordRepo
	Media       storage.Storage
	RecordLimit int
}

func NewAdminUserHandler(u *repository.UserRepo, t *repository.TokenRepo, l *repository.LoginRecordRepo,
	media storage.Storage, recordLimit int) *AdminUserHandler {
	if u == nil || t == nil || l == nil || media == nil {
		panic("nil dependency passed to NewAdminUserHandler")
	}
	return &AdminUserHandler{Users: u, Tokens: t, Logins: l, Media: media, RecordLimit: recordLimit}
}

type loginRecordResp struct {
	ID        uint64 `json:"id"`
	LoginTime string `json:"login_time"`
	LoginIP   string `json:"login_ip"`
}

func optionalBool(c echo.Context, name string, verr *validation.RequestValidationError) *bool {
	s := c.QueryParam(name)
	if s == "" {
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		verr.Add(name, "must be a boolean")
		return nil
	}
	return &b
}

// List returns one page of users; ?search=, ?is_active= and ?is_staff=
// narrow it.
func (h *AdminUserHandler) List(c echo.Context) error {
	verr := &validation.RequestValidationError{}
	q := repository.UserListQuery{
		Search:   c.QueryParam("search"),
		IsActive: optionalBool(c, "is_active", verr),
		IsStaff:  optionalBool(c, "is_staff", verr),
	}
	if len(verr.Errors()) > 0 {
		return c.JSON(http.StatusBadRequest, verr.Body())
	}
	q.Page, q.PageSize = pageParams(c)

	ctx, cancel := reqCtx(c)
	defer cancel()
	users, total, err := h.Users.List(ctx, q)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]userPart, 0, len(users))
	for i := range users {
		out = append(out, newUserPart(&users[i], h.Media))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"count":     total,
		"page":      q.Page,
		"page_size": q.PageSize,
		"results":   out,
	})
}

// Ban deactivates the account and revokes its refresh tokens.  Admins
// cannot ban themselves.
func (h *AdminUserHandler) Ban(c echo.Context) error {
	return h.setActive(c, false)
}

// Unban reactivates the account.
func (h *AdminUserHandler) Unban(c echo.Context) error {
	return h.setActive(c, true)
}

func (h *AdminUserHandler) setActive(c echo.Context, active bool) error {
	id, ok := pathID(c, "id")
	if !ok {
		return nil
	}
	if self, err := getUserID(c); err == nil && self == id && !active {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot ban yourself"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Users.SetActive(ctx, id, active); err != nil {
		return writeError(c, err)
	}
	if !active {
		if err := h.Tokens.RevokeAllForUser(ctx, id); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Uint64("user_id", id).Msg("sessions not revoked after ban")
		}
	}
	logging.Ctx(ctx).Info().Uint64("user_id", id).Bool("active", active).Msg("user status changed")
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newUserPart(u, h.Media))
}

// LoginRecords returns the user's most recent logins.
func (h *AdminUserHandler) LoginRecords(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if _, err := h.Users.GetByID(ctx, id); err != nil {
		return writeError(c, err)
	}
	recs, err := h.Logins.ListRecent(ctx, id, h.RecordLimit)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]loginRecordResp, 0, len(recs))
	for _, r := range recs {
		out = append(out, loginRecordResp{
			ID:        r.ID,
			LoginTime: r.LoginTime.UTC().Format("2006-01-02 15:04:05"),
			LoginIP:   r.LoginIP,
		})
	}
	return c.JSON(http.StatusOK, out)
}
