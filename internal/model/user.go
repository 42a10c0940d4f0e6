package model

import "time"

// User represents an application user record as stored in the `users`
// table.  The struct has no json tags; handlers shape their own responses
// so the password hash never leaks by accident.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Username     – unique login name.
//  Email        – unique, lower-cased email address.
//  PasswordHash – bcrypt hashed password.
//  Phone        – optional phone number.
//  Avatar       – storage key of the avatar image relative to the media root.
//  IsActive     – false once an administrator bans the account.
//  IsStaff      – administrator flag; staff tokens carry the ADMIN role.
//  LastLogin    – time of the last successful login.
type User struct {
	ID           uint64     // users.id
	Username     string     // users.username
	Email        string     // users.email
	PasswordHash string     // users.password_hash
	Phone        *string    // users.phone (nullable)
	Avatar       *string    // users.avatar (nullable)
	IsActive     bool       // users.is_active
	IsStaff      bool       // users.is_staff
	LastLogin    *time.Time // users.last_login (nullable)
	CreatedAt    time.Time  // users.created_at
	UpdatedAt    time.Time  // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  The plain
// token is never stored, only its SHA-256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}

// LoginRecord is one row of the append-only `login_records` audit table.
type LoginRecord struct {
	ID        uint64    // login_records.id
	UserID    uint64    // login_records.user_id
	LoginTime time.Time // login_records.login_time
	LoginIP   string    // login_records.login_ip
}
