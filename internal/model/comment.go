package model

import "time"

// Comment mirrors the `comments` table.  ParentID is nil for top-level
// comments; replies point at any earlier comment of the same movie.
type Comment struct {
	ID          uint64
	UserID      uint64
	MovieID     uint64
	Text        string
	CommentTime time.Time
	ParentID    *uint64
}

// CommentDetail carries the joined columns needed to render a comment
// without further queries.
type CommentDetail struct {
	Comment
	Username       string
	Avatar         *string
	MovieTitle     string
	AuthorRating   *float64 // the author's rating of the same movie
	ParentUsername *string
}
