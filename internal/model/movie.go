package model

import "time"

// Movie mirrors the `movies` table.  Score is nil until the first rating
// lands and returns to nil when the last one is removed.  Starring and
// Category are "/" separated lists kept as raw text.
type Movie struct {
	ID          uint64
	Title       string
	Brief       string
	CoverURL    string
	Score       *float64
	ReleaseDate *time.Time
	Director    string
	Starring    string
	Category    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
