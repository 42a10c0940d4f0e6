package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/bandou-movie/internal/model"
)

// LoginRecordRepo appends and reads the login audit trail.
type LoginRecordRepo struct{ db *sql.DB }

func NewLoginRecordRepo(db *sql.DB) *LoginRecordRepo { return &LoginRecordRepo{db: db} }

// Create appends one record.  Records are never updated.
func (r *LoginRecordRepo) Create(ctx context.Context, userID uint64, ip string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO login_records (user_id, login_time, login_ip) VALUES (?,?,?)",
		userID, at, ip)
	return err
}

// ListRecent returns at most limit records for userID, newest first.
func (r *LoginRecordRepo) ListRecent(ctx context.Context, userID uint64, limit int) ([]model.LoginRecord, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, login_time, COALESCE(login_ip, '')
		   FROM login_records WHERE user_id=? ORDER BY login_time DESC, id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.LoginRecord, 0, limit)
	for rows.Next() {
		var lr model.LoginRecord
		if err := rows.Scan(&lr.ID, &lr.UserID, &lr.LoginTime, &lr.LoginIP); err != nil {
			return nil, err
		}
		out = append(out, lr)
	}
	return out, rows.Err()
}
