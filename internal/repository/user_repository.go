package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/bandou-movie/internal/model"
	"github.com/iliyamo/bandou-movie/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,username,email,password_hash,phone,avatar,is_active,is_staff,last_login,created_at,updated_at"

func scanUser(s rowScanner) (*model.User, error) {
	var (
		u      model.User
		phone  sql.NullString
		avatar sql.NullString
		last   sql.NullTime
	)
	if err := s.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &phone, &avatar,
		&u.IsActive, &u.IsStaff, &last, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Phone = strPtr(phone)
	u.Avatar = strPtr(avatar)
	u.LastLogin = timePtr(last)
	return &u, nil
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// duplicateUserErr maps a 1062 on users onto the field that collided.
func duplicateUserErr(err error) error {
	if !isDuplicate(err) {
		return err
	}
	if strings.Contains(duplicateKey(err), "username") {
		return ErrUsernameExists
	}
	return ErrEmailExists
}

// Create hashes password with cost, inserts the user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, username, email string, phone *string, password string, cost int) (uint64, error) {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, phone) VALUES (?,?,?,?)",
		strings.TrimSpace(username), normalizeEmail(email), hash, nullString(phone))
	if err != nil {
		return 0, duplicateUserErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (r *UserRepo) getOne(ctx context.Context, where string, arg any) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+where+" LIMIT 1", arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.getOne(ctx, "id=?", id)
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "email=?", normalizeEmail(email))
}

// GetByLogin accepts either a username or an email address.
func (r *UserRepo) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	login = strings.TrimSpace(login)
	if strings.Contains(login, "@") {
		return r.GetByEmail(ctx, login)
	}
	return r.getOne(ctx, "username=?", login)
}

// Taken reports which of username/email already belong to a user other than
// excludeID.  Pass excludeID 0 during registration.
func (r *UserRepo) Taken(ctx context.Context, username, email string, excludeID uint64) (usernameTaken, emailTaken bool, err error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT username, email FROM users WHERE (username=? OR email=?) AND id<>?",
		strings.TrimSpace(username), normalizeEmail(email), excludeID)
	if err != nil {
		return false, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var u, e string
		if err := rows.Scan(&u, &e); err != nil {
			return false, false, err
		}
		usernameTaken = usernameTaken || u == strings.TrimSpace(username)
		emailTaken = emailTaken || e == normalizeEmail(email)
	}
	return usernameTaken, emailTaken, rows.Err()
}

// UpdateProfile overwrites username, email and phone.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, username, email string, phone *string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET username=?, email=?, phone=? WHERE id=?",
		strings.TrimSpace(username), normalizeEmail(email), nullString(phone), id)
	if err != nil {
		return duplicateUserErr(err)
	}
	return expectOne(res, ErrUserNotFound)
}

// UpdateAvatar stores the new avatar key.
func (r *UserRepo) UpdateAvatar(ctx context.Context, id uint64, key string) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET avatar=? WHERE id=?", key, id)
	if err != nil {
		return err
	}
	return expectOne(res, ErrUserNotFound)
}

// UpdatePassword stores a new bcrypt hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET password_hash=? WHERE id=?", hash, id)
	if err != nil {
		return err
	}
	return expectOne(res, ErrUserNotFound)
}

// TouchLastLogin records a successful login time.
func (r *UserRepo) TouchLastLogin(ctx context.Context, id uint64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET last_login=? WHERE id=?", at, id)
	return err
}

// SetActive bans (false) or unbans (true) a user.
func (r *UserRepo) SetActive(ctx context.Context, id uint64, active bool) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET is_active=? WHERE id=?", active, id)
	if err != nil {
		return err
	}
	return expectOne(res, ErrUserNotFound)
}

// UserListQuery filters the admin user listing.
type UserListQuery struct {
	Search   string // matches username or email
	IsActive *bool
	IsStaff  *bool
	Page     int
	PageSize int
}

// List returns one page of users ordered by id and the total match count.
func (r *UserRepo) List(ctx context.Context, q UserListQuery) ([]model.User, int64, error) {
	where := []string{}
	args := []any{}
	if s := strings.TrimSpace(q.Search); s != "" {
		where = append(where, "(LOWER(username) LIKE ? OR LOWER(email) LIKE ?)")
		like := "%" + strings.ToLower(s) + "%"
		args = append(args, like, like)
	}
	if q.IsActive != nil {
		where = append(where, "is_active=?")
		args = append(args, *q.IsActive)
	}
	if q.IsStaff != nil {
		where = append(where, "is_staff=?")
		args = append(args, *q.IsStaff)
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, size := normalizePage(q.Page, q.PageSize)
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+cond+" ORDER BY id LIMIT ? OFFSET ?",
		append(append([]any{}, args...), size, (page-1)*size)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.User, 0, size)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *u)
	}
	return out, total, rows.Err()
}

// expectOne turns a zero row update into notFound.
func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// MaxPageSize bounds every paginated listing.
const MaxPageSize = 100

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}
