package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/bandou-movie/internal/logging"
	"github.com/iliyamo/bandou-movie/internal/mail"
	"github.com/iliyamo/bandou-movie/internal/repository"
	"github.com/iliyamo/bandou-movie/internal/utils"
)

const (
	ResetCooldown = 60 * time.Second
	ResetCodeTTL  = 5 * time.Minute
	resetDigits   = 6
)

func resetCodeKey(email string) string { return "reset_code:" + email }
func resetTimestampKey(email string) string { return "reset_timestamp:" + email }
func resetCooldownKey(email string) string { return "reset_cooldown:" + email }

// PasswordReset issues emailed one-time codes and redeems them.  Codes and
// the per-email cooldown live in Redis.
type PasswordReset struct {
	rdb        *redis.Client
	users      *repository.UserRepo
	tokens     *repository.TokenRepo
	mailer     mail.Sender
	bcryptCost int
	now        func() time.Time
}

// NewPasswordReset accepts a nil redis client; every call then fails with
// ErrUnavailable.
func NewPasswordReset(rdb *redis.Client, users *repository.UserRepo, tokens *repository.TokenRepo,
	mailer mail.Sender, bcryptCost int) *PasswordReset {
	if users == nil || tokens == nil || mailer == nil {
		panic("nil dependency passed to NewPasswordReset")
	}
	return &PasswordReset{rdb: rdb, users: users, tokens: tokens, mailer: mailer, bcryptCost: bcryptCost,
		now: func() time.Time { return time.Now().UTC() }}
}

// Request sends a fresh code to email.  A second request inside
// ResetCooldown returns *RateLimitedError with the remaining wait.
func (p *PasswordReset) Request(ctx context.Context, email string) error {
	if p.rdb == nil {
		return ErrUnavailable
	}
	u, err := p.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	email = u.Email

	ok, err := p.rdb.SetNX(ctx, resetCooldownKey(email), 1, ResetCooldown).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		wait, err := p.rdb.TTL(ctx, resetCooldownKey(email)).Result()
		if err != nil || wait <= 0 {
			wait = ResetCooldown
		}
		return &RateLimitedError{Wait: wait}
	}

	code, err := utils.NewNumericCode(resetDigits)
	if err != nil {
		return err
	}
	_, err = p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, resetCodeKey(email), code, ResetCodeTTL)
		pipe.Set(ctx, resetTimestampKey(email), p.now().Unix(), ResetCodeTTL)
		return nil
	})
	if err != nil {
		p.clear(ctx, email, true)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	body := fmt.Sprintf("您的密码重置验证码是：%s\n验证码 %d 分钟内有效。", code, int(ResetCodeTTL/time.Minute))
	if err := p.mailer.Send(ctx, email, "Bandou 密码重置", body); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("email", email).Msg("password reset mail failed")
		p.clear(ctx, email, true)
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	logging.Ctx(ctx).Info().Uint64("user_id", u.ID).Msg("password reset code sent")
	return nil
}

// Confirm checks code and, when it matches, sets the new password and
// revokes every refresh token of the user.
func (p *PasswordReset) Confirm(ctx context.Context, email, code, newPassword string) error {
	if p.rdb == nil {
		return ErrUnavailable
	}
	if !utils.PasswordStrong(newPassword) {
		return invalid("new_password", "password must be at least 8 characters and contain upper case, lower case and digits")
	}
	u, err := p.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	email = u.Email

	stored, err := p.rdb.Get(ctx, resetCodeKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return invalid("code", "verification code is invalid or expired")
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return invalid("code", "verification code is invalid or expired")
	}

	hash, err := utils.HashPassword(newPassword, p.bcryptCost)
	if err != nil {
		return err
	}
	if err := p.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return err
	}
	if err := p.tokens.RevokeAllForUser(ctx, u.ID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Uint64("user_id", u.ID).Msg("revoke after password reset failed")
	}
	p.clear(ctx, email, false)
	return nil
}

func (p *PasswordReset) clear(ctx context.Context, email string, cooldown bool) {
	keys := []string{resetCodeKey(email), resetTimestampKey(email)}
	if cooldown {
		keys = append(keys, resetCooldownKey(email))
	}
	if err := p.rdb.Del(ctx, keys...).Err(); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("password reset keys not cleared")
	}
}
