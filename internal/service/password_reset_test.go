package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bandou-movie/internal/repository"
	"github.com/iliyamo/bandou-movie/internal/validation"
)

type recordedMail struct{ to, subject, body string }

type fakeMailer struct {
	sent []recordedMail
	err  error
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, recordedMail{to, subject, body})
	return nil
}

var userCols = []string{"id", "username", "email", "password_hash", "phone", "avatar",
	"is_active", "is_staff", "last_login", "created_at", "updated_at"}

func expectUserByEmail(mock sqlmock.Sqlmock, email string) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email=? LIMIT 1")).
		WithArgs(email).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(3, "alice", email, "x", nil, nil, true, false, nil, now, now))
}

func newResetFixture(t *testing.T, mailer *fakeMailer) (*PasswordReset, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	p := NewPasswordReset(rdb, repository.NewUserRepo(db), repository.NewTokenRepo(db), mailer, 4)
	return p, mock, mr
}

func TestResetRequestSendsCodeAndStartsCooldown(t *testing.T) {
	mailer := &fakeMailer{}
	p, mock, mr := newResetFixture(t, mailer)
	ctx := context.Background()

	expectUserByEmail(mock, "alice@example.com")
	require.NoError(t, p.Request(ctx, "Alice@Example.com"))

	code, err := mr.Get("reset_code:alice@example.com")
	require.NoError(t, err)
	assert.Regexp(t, `^\d{6}$`, code)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "alice@example.com", mailer.sent[0].to)
	assert.Contains(t, mailer.sent[0].body, code)
	assert.True(t, mr.Exists("reset_timestamp:alice@example.com"))

	mr.FastForward(20 * time.Second)
	expectUserByEmail(mock, "alice@example.com")
	err = p.Request(ctx, "alice@example.com")
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 40, rl.RetryAfter())
	assert.Len(t, mailer.sent, 1)

	mr.FastForward(41 * time.Second)
	expectUserByEmail(mock, "alice@example.com")
	require.NoError(t, p.Request(ctx, "alice@example.com"))
	assert.Len(t, mailer.sent, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetRequestMailFailureClearsState(t *testing.T) {
	p, mock, mr := newResetFixture(t, &fakeMailer{err: errors.New("relay down")})
	expectUserByEmail(mock, "alice@example.com")

	err := p.Request(context.Background(), "alice@example.com")
	assert.ErrorIs(t, err, ErrDelivery)
	assert.False(t, mr.Exists("reset_code:alice@example.com"))
	assert.False(t, mr.Exists("reset_cooldown:alice@example.com"))
}

func TestResetConfirm(t *testing.T) {
	p, mock, mr := newResetFixture(t, &fakeMailer{})
	ctx := context.Background()
	require.NoError(t, mr.Set("reset_code:alice@example.com", "123456"))

	expectUserByEmail(mock, "alice@example.com")
	err := p.Confirm(ctx, "alice@example.com", "654321", "NewPassw0rd")
	var verr *validation.RequestValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields(), "code")

	expectUserByEmail(mock, "alice@example.com")
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET password_hash=? WHERE id=?")).
		WithArgs(sqlmock.AnyArg(), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE user_id=?")).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, p.Confirm(ctx, "alice@example.com", "123456", "NewPassw0rd"))
	assert.False(t, mr.Exists("reset_code:alice@example.com"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetConfirmRejectsWeakPassword(t *testing.T) {
	p, mock, _ := newResetFixture(t, &fakeMailer{})
	err := p.Confirm(context.Background(), "alice@example.com", "123456", "short")
	var verr *validation.RequestValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields(), "new_password")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetWithoutRedisIsUnavailable(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := NewPasswordReset(nil, repository.NewUserRepo(db), repository.NewTokenRepo(db), &fakeMailer{}, 4)
	assert.ErrorIs(t, p.Request(context.Background(), "a@b.c"), ErrUnavailable)
}
