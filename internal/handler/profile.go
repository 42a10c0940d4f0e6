package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bandou-movie/internal/logging"
	"github.com/iliyamo/bandou-movie/internal/utils"
	"github.com/iliyamo/bandou-movie/internal/validation"
)

type profilePatchReq struct {
	Username *string `json:"username" validate:"omitempty,notblank,max=150"`
	Email    *string `json:"email" validate:"omitempty,email,max=254"`
	Phone    *string `json:"phone" validate:"omitempty,max=20"`
}

type changePasswordReq struct {
	OldPassword     string `json:"old_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,password_policy"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

// Profile returns the caller's account.
func (h *AuthHandler) Profile(c echo.Context) error {
	uid, ok := mustUserID(c)
	if !ok {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newUserPart(u, h.Media))
}

// UpdateProfile changes any of username, email and phone.  An empty phone
// clears it.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	uid, ok := mustUserID(c)
	if !ok {
		return nil
	}
	var req profilePatchReq
	if !bindValid(c, &req) {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return writeError(c, err)
	}
	username, email, phone := u.Username, u.Email, u.Phone
	if req.Username != nil {
		username = strings.TrimSpace(*req.Username)
	}
	if req.Email != nil {
		email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Phone != nil {
		phone = req.Phone
		if strings.TrimSpace(*req.Phone) == "" {
			phone = nil
		}
	}

	userTaken, emailTaken, err := h.Users.Taken(ctx, username, email, uid)
	if err != nil {
		return writeError(c, err)
	}
	if userTaken || emailTaken {
		verr := &validation.RequestValidationError{}
		if userTaken {
			verr.Add("username", "username already exists")
		}
		if emailTaken {
			verr.Add("email", "email already exists")
		}
		return c.JSON(http.StatusBadRequest, verr.Body())
	}
	if err := h.Users.UpdateProfile(ctx, uid, username, email, phone); err != nil {
		return writeError(c, err)
	}
	u.Username, u.Email, u.Phone = username, email, phone
	return c.JSON(http.StatusOK, newUserPart(u, h.Media))
}

// UpdateAvatar replaces the avatar from the multipart field "avatar" and
// removes the previous file.
func (h *AuthHandler) UpdateAvatar(c echo.Context) error {
	uid, ok := mustUserID(c)
	if !ok {
		return nil
	}
	fh, err := c.FormFile("avatar")
	if err != nil {
		fh = nil
	}
	if verr := validation.ValidateImage("avatar", fh); verr != nil {
		return c.JSON(http.StatusBadRequest, verr.Body())
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return writeError(c, err)
	}

	src, err := fh.Open()
	if err != nil {
		return writeError(c, err)
	}
	defer src.Close()
	key, err := h.Media.Save(ctx, "avatars", fh.Filename, src)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.Users.UpdateAvatar(ctx, uid, key); err != nil {
		_ = h.Media.Delete(ctx, key)
		return writeError(c, err)
	}
	if u.Avatar != nil && *u.Avatar != "" {
		if err := h.Media.Delete(ctx, *u.Avatar); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("key", *u.Avatar).Msg("old avatar not removed")
		}
	}
	u.Avatar = &key
	return c.JSON(http.StatusOK, newUserPart(u, h.Media))
}

// ChangePassword verifies the old password, stores the new one and signs
// out every session.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	uid, ok := mustUserID(c)
	if !ok {
		return nil
	}
	var req changePasswordReq
	if !bindValid(c, &req) {
		return nil
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return writeError(c, err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.OldPassword) {
		return c.JSON(http.StatusBadRequest, validation.NewFieldError("old_password", "old password is incorrect").Body())
	}
	hash, err := utils.HashPassword(req.NewPassword, h.Cfg.BcryptCost)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.Users.UpdatePassword(ctx, uid, hash); err != nil {
		return writeError(c, err)
	}
	if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Uint64("user_id", uid).Msg("sessions not revoked after password change")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed, please log in again"})
}
