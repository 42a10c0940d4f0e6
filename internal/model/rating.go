package model

import "time"

// Rating mirrors the `ratings` table.  (UserID, MovieID) is unique.
type Rating struct {
	ID         uint64
	UserID     uint64
	MovieID    uint64
	Value      float64 // 0..5 inclusive
	RatingTime time.Time
}

// RatingDetail is a Rating joined with the author's username and the movie
// title, the shape every rating endpoint returns.
type RatingDetail struct {
	Rating
	Username   string
	MovieTitle string
}
