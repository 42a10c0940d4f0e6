package service

import (
	"time"

	"github.com/iliyamo/bandou-movie/internal/model"
)

// URLResolver turns a stored media key into a public URL.
type URLResolver interface {
	URL(key string) string
}

// MovieView is the public JSON shape of a movie.
type MovieView struct {
	ID          uint64   `json:"id"`
	Title       string   `json:"title"`
	Brief       string   `json:"brief"`
	CoverURL    string   `json:"cover_url"`
	Score       *float64 `json:"score"`
	ReleaseDate *string  `json:"release_date"`
	Director    string   `json:"director"`
	Starring    string   `json:"starring"`
	Category    string   `json:"category"`
}

// NewMovieView resolves the cover through urls; nil leaves it untouched.
func NewMovieView(m model.Movie, urls URLResolver) MovieView {
	v := MovieView{
		ID:       m.ID,
		Title:    m.Title,
		Brief:    m.Brief,
		CoverURL: m.CoverURL,
		Score:    m.Score,
		Director: m.Director,
		Starring: m.Starring,
		Category: m.Category,
	}
	if urls != nil {
		v.CoverURL = urls.URL(m.CoverURL)
	}
	if m.ReleaseDate != nil {
		d := m.ReleaseDate.Format("2006-01-02")
		v.ReleaseDate = &d
	}
	return v
}

// NewMovieViews maps a slice; the result is never nil.
func NewMovieViews(ms []model.Movie, urls URLResolver) []MovieView {
	out := make([]MovieView, 0, len(ms))
	for _, m := range ms {
		out = append(out, NewMovieView(m, urls))
	}
	return out
}

// RatingView is returned by every rating endpoint.  The "no rating yet"
// value has a nil ID and a zero Rating.
type RatingView struct {
	ID         *uint64    `json:"id"`
	User       uint64     `json:"user,omitempty"`
	Movie      uint64     `json:"movie,omitempty"`
	MovieTitle string     `json:"movie_title,omitempty"`
	Username   string     `json:"username,omitempty"`
	Rating     float64    `json:"rating"`
	RatingTime *time.Time `json:"rating_time,omitempty"`
}

// NoRating is the placeholder returned when a user has not rated a movie.
func NoRating() RatingView { return RatingView{ID: nil, Rating: 0} }

func newRatingView(d model.RatingDetail) RatingView {
	id, at := d.ID, d.RatingTime
	return RatingView{
		ID:         &id,
		User:       d.UserID,
		Movie:      d.MovieID,
		MovieTitle: d.MovieTitle,
		Username:   d.Username,
		Rating:     d.Value,
		RatingTime: &at,
	}
}

func newRatingViews(ds []model.RatingDetail) []RatingView {
	out := make([]RatingView, 0, len(ds))
	for _, d := range ds {
		out = append(out, newRatingView(d))
	}
	return out
}

// RatingStats is the aggregate block of a movie's ratings.
type RatingStats struct {
	AvgRating   *float64 `json:"avg_rating"`
	RatingCount int64    `json:"rating_count"`
}

// CommentView is one rendered comment with its replies nested below.
type CommentView struct {
	ID                uint64         `json:"id"`
	User              uint64         `json:"user"`
	Movie             uint64         `json:"movie"`
	MovieTitle        string         `json:"movie_title"`
	Username          string         `json:"username"`
	AvatarURL         *string        `json:"avatar_url"`
	Comment           string         `json:"comment"`
	CommentTime       time.Time      `json:"comment_time"`
	Rating            *float64       `json:"rating"`
	Replies           []*CommentView `json:"replies"`
	ParentComment     *uint64        `json:"parent_comment"`
	ParentCommentUser *string        `json:"parent_comment_user"`
}

func newCommentView(d model.CommentDetail, urls URLResolver) *CommentView {
	v := &CommentView{
		ID:                d.ID,
		User:              d.UserID,
		Movie:             d.MovieID,
		MovieTitle:        d.MovieTitle,
		Username:          d.Username,
		Comment:           d.Text,
		CommentTime:       d.CommentTime,
		Rating:            d.AuthorRating,
		Replies:           []*CommentView{},
		ParentComment:     d.ParentID,
		ParentCommentUser: d.ParentUsername,
	}
	if d.Avatar != nil && *d.Avatar != "" && urls != nil {
		u := urls.URL(*d.Avatar)
		v.AvatarURL = &u
	}
	return v
}
