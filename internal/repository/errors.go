// Package repository holds the MySQL data access layer.  Sentinel errors
// defined here let services and handlers branch with errors.Is: every
// *NotFound value wraps ErrNotFound, ErrForbidden means the caller does not
// own the row, and ErrInconsistent flags data that violates an invariant the
// schema is supposed to guarantee.
package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is wrapped by every entity specific not-found error.
var ErrNotFound = errors.New("not found")

var (
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrMovieNotFound   = fmt.Errorf("movie %w", ErrNotFound)
	ErrRatingNotFound  = fmt.Errorf("rating %w", ErrNotFound)
	ErrCommentNotFound = fmt.Errorf("comment %w", ErrNotFound)
)

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers translate it into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrInconsistent marks a broken invariant, e.g. a rating whose movie row is
// gone.  It is logged at error level and surfaces as HTTP 500.
var ErrInconsistent = errors.New("data inconsistency")

var (
	ErrUsernameExists = errors.New("username already exists")
	ErrEmailExists    = errors.New("email already exists")
)

// isDuplicate reports a MySQL unique key violation (error 1062).
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return err != nil && strings.Contains(err.Error(), "1062")
}

// duplicateKey names the violated unique index when the driver reports it.
func duplicateKey(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, "for key '"); i >= 0 {
		rest := msg[i+len("for key '"):]
		if j := strings.IndexByte(rest, '\''); j >= 0 {
			return rest[:j]
		}
	}
	return ""
}
