package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bandou-movie/internal/config"
	"github.com/iliyamo/bandou-movie/internal/logging"
	"github.com/iliyamo/bandou-movie/internal/model"
	"github.com/iliyamo/bandou-movie/internal/queue"
	"github.com/iliyamo/bandou-movie/internal/repository"
	"github.com/iliyamo/bandou-movie/internal/service"
	"github.com/iliyamo/bandou-movie/internal/storage"
	"github.com/iliyamo/bandou-movie/internal/utils"
	"github.com/iliyamo/bandou-movie/internal/validation"
)

// AuthHandler bundles dependencies for account endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
	Logins *repository.LoginRecordRepo
	Media  storage.Storage
	Reset  *service.PasswordReset
	Events queue.Publisher
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo, l *repository.LoginRecordRepo,
	media storage.Storage, reset *service.PasswordReset, events queue.Publisher) *AuthHandler {
	if u == nil || t == nil || l == nil || media == nil || reset == nil {
		panic("nil dependency passed to NewAuthHandler")
	}
	if events == nil {
		events = queue.NopPublisher{}
	}
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Logins: l, Media: media, Reset: reset, Events: events}
}

// ----- DTOs -----

type registerReq struct {
	Username        string  `json:"username" validate:"required,notblank,max=150"`
	Email           string  `json:"email" validate:"required,email,max=254"`
	Password        string  `json:"password" validate:"required,password_policy"`
	ConfirmPassword string  `json:"confirm_password" validate:"required,eqfield=Password"`
	Phone           *string `json:"phone" validate:"omitempty,max=20"`
}

type loginReq struct {
	Username string `json:"username" validate:"required,notblank"` // username or email
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required,notblank"`
}

type resetRequestReq struct {
	Email string `json:"email" validate:"required,email"`
}

type resetConfirmReq struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
	NewPassword string `json:"new_password" validate:"required,password_policy"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID         uint64     `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	Phone      *string    `json:"phone"`
	AvatarURL  *string    `json:"avatar_url"`
	IsStaff    bool       `json:"is_staff"`
	IsActive   bool       `json:"is_active"`
	Role       string     `json:"role"`
	LastLogin  *time.Time `json:"last_login"`
	DateJoined time.Time  `json:"date_joined"`
}

type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func newUserPart(u *model.User, media storage.Storage) userPart {
	p := userPart{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Phone:      u.Phone,
		IsStaff:    u.IsStaff,
		IsActive:   u.IsActive,
		Role:       utils.RoleFor(u.IsStaff),
		LastLogin:  u.LastLogin,
		DateJoined: u.CreatedAt,
	}
	if u.Avatar != nil && *u.Avatar != "" {
		s := media.URL(*u.Avatar)
		p.AvatarURL = &s
	}
	return p
}

// issue mints an access/refresh pair and stores the refresh hash.
func (h *AuthHandler) issue(c echo.Context, u *model.User) (authResp, error) {
	ctx, cancel := reqCtx(c)
	defer cancel()
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, utils.RoleFor(u.IsStaff), h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    newUserPart(u, h.Media),
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	}, nil
}

// Register creates the account and returns tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if !bindValid(c, &req) {
		return nil
	}
	if req.Phone != nil && strings.TrimSpace(*req.Phone) == "" {
		req.Phone = nil
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	userTaken, emailTaken, err := h.Users.Taken(ctx, req.Username, req.Email, 0)
	if err != nil {
		return writeError(c, err)
	}
	if userTaken || emailTaken {
		verr := &validation.RequestValidationError{}
		if userTaken {
			verr.Add("username", repository.ErrUsernameExists.Error())
		}
		if emailTaken {
			verr.Add("email", repository.ErrEmailExists.Error())
		}
		return c.JSON(http.StatusBadRequest, verr.Body())
	}

	uid, err := h.Users.Create(ctx, req.Username, req.Email, req.Phone, req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return writeError(c, err)
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return writeError(c, err)
	}
	resp, err := h.issue(c, u)
	if err != nil {
		return writeError(c, err)
	}
	logging.Ctx(ctx).Info().Uint64("user_id", uid).Msg("user registered")
	return c.JSON(http.StatusCreated, resp)
}

// Login accepts a username or email.  Banned accounts get 403.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if !bindValid(c, &req) {
		return nil
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByLogin(ctx, req.Username)
	if errors.Is(err, repository.ErrUserNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if err != nil {
		return writeError(c, err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if !u.IsActive {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account is disabled"})
	}

	now := time.Now().UTC()
	ip := clientIP(c.Request())
	if err := h.Users.TouchLastLogin(ctx, u.ID, now); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Uint64("user_id", u.ID).Msg("last_login not updated")
	}
	if err := h.Logins.Create(ctx, u.ID, ip, now); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Uint64("user_id", u.ID).Msg("login record not stored")
	}
	u.LastLogin = &now

	resp, err := h.issue(c, u)
	if err != nil {
		return writeError(c, err)
	}
	ev := queue.NewEvent(queue.UserLogin, u.ID)
	ev.IP = ip
	h.Events.Publish(ctx, ev)
	return c.JSON(http.StatusOK, resp)
}

// Refresh exchanges a refresh token for a new pair; the old one is revoked.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if !bindValid(c, &req) {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	newRef, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return writeError(c, err)
	}
	uid, err := h.Tokens.Rotate(ctx, utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken)),
		utils.HashRefreshRaw(newRef.Raw), newRef.Exp)
	if errors.Is(err, repository.ErrRefreshInvalid) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err != nil {
		return writeError(c, err)
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return writeError(c, err)
	}
	if !u.IsActive {
		_ = h.Tokens.RevokeAllForUser(ctx, uid)
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account is disabled"})
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, uid, utils.RoleFor(u.IsStaff), h.Cfg.AccessTTLMin)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, authResp{
		User:    newUserPart(u, h.Media),
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: newRef.Raw, Expires: newRef.Exp},
	})
}

// Logout revokes the supplied refresh token, or every session of the
// caller when the body names none.
func (h *AuthHandler) Logout(c echo.Context) error {
	uid, ok := mustUserID(c)
	if !ok {
		return nil
	}
	var req refreshReq
	_ = c.Bind(&req)

	ctx, cancel := reqCtx(c)
	defer cancel()

	var err error
	if raw := strings.TrimSpace(req.RefreshToken); raw != "" {
		err = h.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(raw))
	} else {
		err = h.Tokens.RevokeAllForUser(ctx, uid)
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RequestPasswordReset emails a six digit code.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req resetRequestReq
	if !bindValid(c, &req) {
		return nil
	}
	// SMTP delivery gets more time than a database call.
	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()
	if err := h.Reset.Request(ctx, req.Email); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "verification code sent"})
}

// ConfirmPasswordReset redeems the code and sets the new password.
func (h *AuthHandler) ConfirmPasswordReset(c echo.Context) error {
	var req resetConfirmReq
	if !bindValid(c, &req) {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Reset.Confirm(ctx, req.Email, req.Code, req.NewPassword); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password has been reset"})
}
