package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/bandou-movie/internal/model"
)

// RatingRepo reads and writes the ratings table.  Write methods take a
// *sql.Tx because every rating change is paired with a score recompute.
type RatingRepo struct {
	db *sql.DB
}

func NewRatingRepo(db *sql.DB) *RatingRepo { return &RatingRepo{db: db} }

const ratingDetailSelect = `SELECT r.id, r.user_id, r.movie_id, r.rating, r.rating_time, u.username, m.title
	FROM ratings r
	JOIN users u  ON u.id = r.user_id
	JOIN movies m ON m.id = r.movie_id`

func scanRatingDetail(s rowScanner) (*model.RatingDetail, error) {
	var d model.RatingDetail
	if err := s.Scan(&d.ID, &d.UserID, &d.MovieID, &d.Value, &d.RatingTime, &d.Username, &d.MovieTitle); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *RatingRepo) list(ctx context.Context, q string, args ...any) ([]model.RatingDetail, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.RatingDetail{}
	for rows.Next() {
		d, err := scanRatingDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// FindForPairTx locks and returns the rating for (userID, movieID), or nil
// when the pair has not rated yet.
func (r *RatingRepo) FindForPairTx(ctx context.Context, tx *sql.Tx, userID, movieID uint64) (*model.Rating, error) {
	var rt model.Rating
	err := tx.QueryRowContext(ctx,
		"SELECT id, user_id, movie_id, rating, rating_time FROM ratings WHERE user_id=? AND movie_id=? FOR UPDATE",
		userID, movieID).Scan(&rt.ID, &rt.UserID, &rt.MovieID, &rt.Value, &rt.RatingTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// MovieOfTx reads the movie of ratingID without locking, so callers can
// lock the movie row before the rating row.
func (r *RatingRepo) MovieOfTx(ctx context.Context, tx *sql.Tx, id uint64) (uint64, error) {
	var movieID uint64
	err := tx.QueryRowContext(ctx, "SELECT movie_id FROM ratings WHERE id=?", id).Scan(&movieID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrRatingNotFound
	}
	return movieID, err
}

// GetByIDTx locks and returns one rating.
func (r *RatingRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Rating, error) {
	var rt model.Rating
	err := tx.QueryRowContext(ctx,
		"SELECT id, user_id, movie_id, rating, rating_time FROM ratings WHERE id=? FOR UPDATE",
		id).Scan(&rt.ID, &rt.UserID, &rt.MovieID, &rt.Value, &rt.RatingTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRatingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// CreateTx inserts rt and fills in its ID.
func (r *RatingRepo) CreateTx(ctx context.Context, tx *sql.Tx, rt *model.Rating) error {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO ratings (user_id, movie_id, rating, rating_time) VALUES (?,?,?,?)",
		rt.UserID, rt.MovieID, rt.Value, rt.RatingTime)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rt.ID = uint64(id)
	return nil
}

// UpdateValueTx overwrites value and timestamp of an existing rating.
func (r *RatingRepo) UpdateValueTx(ctx context.Context, tx *sql.Tx, id uint64, value float64, at time.Time) error {
	res, err := tx.ExecContext(ctx, "UPDATE ratings SET rating=?, rating_time=? WHERE id=?", value, at, id)
	if err != nil {
		return err
	}
	return expectOne(res, ErrRatingNotFound)
}

// DeleteTx removes one rating.
func (r *RatingRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM ratings WHERE id=?", id)
	if err != nil {
		return err
	}
	return expectOne(res, ErrRatingNotFound)
}

// GetDetail returns a rating with username and movie title.
func (r *RatingRepo) GetDetail(ctx context.Context, id uint64) (*model.RatingDetail, error) {
	d, err := scanRatingDetail(r.db.QueryRowContext(ctx, ratingDetailSelect+" WHERE r.id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRatingNotFound
	}
	return d, err
}

// GetForPair returns the detail for (userID, movieID) or ErrRatingNotFound.
func (r *RatingRepo) GetForPair(ctx context.Context, userID, movieID uint64) (*model.RatingDetail, error) {
	d, err := scanRatingDetail(r.db.QueryRowContext(ctx,
		ratingDetailSelect+" WHERE r.user_id=? AND r.movie_id=?", userID, movieID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRatingNotFound
	}
	return d, err
}

// ListForMovie returns every rating of movieID, newest first.
func (r *RatingRepo) ListForMovie(ctx context.Context, movieID uint64) ([]model.RatingDetail, error) {
	return r.list(ctx, ratingDetailSelect+" WHERE r.movie_id=? ORDER BY r.rating_time DESC, r.id DESC", movieID)
}

// ListForUser returns every rating by userID, newest first.
func (r *RatingRepo) ListForUser(ctx context.Context, userID uint64) ([]model.RatingDetail, error) {
	return r.list(ctx, ratingDetailSelect+" WHERE r.user_id=? ORDER BY r.rating_time DESC, r.id DESC", userID)
}

// Stats returns the raw mean and count for movieID.
func (r *RatingRepo) Stats(ctx context.Context, movieID uint64) (sql.NullFloat64, int64, error) {
	var (
		avg   sql.NullFloat64
		count int64
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT AVG(rating), COUNT(*) FROM ratings WHERE movie_id=?", movieID).Scan(&avg, &count)
	return avg, count, err
}

// DailyAverage is the mean rating of one calendar day.
type DailyAverage struct {
	Day string // YYYY-MM-DD
	Avg float64
}

// DailyAverages groups movieID's ratings by day within [from, to].
func (r *RatingRepo) DailyAverages(ctx context.Context, movieID uint64, from, to time.Time) ([]DailyAverage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DATE_FORMAT(DATE(rating_time), '%Y-%m-%d') AS d, AVG(rating)
		   FROM ratings
		  WHERE movie_id=? AND DATE(rating_time) BETWEEN ? AND ?
		  GROUP BY d ORDER BY d`,
		movieID, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DailyAverage
	for rows.Next() {
		var da DailyAverage
		if err := rows.Scan(&da.Day, &da.Avg); err != nil {
			return nil, err
		}
		out = append(out, da)
	}
	return out, rows.Err()
}

// LatestDayAverageBefore returns the mean of the most recent rating day
// strictly before day, or nil when there is none.
func (r *RatingRepo) LatestDayAverageBefore(ctx context.Context, movieID uint64, day time.Time) (*float64, error) {
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		`SELECT AVG(rating) FROM ratings
		  WHERE movie_id=? AND DATE(rating_time) = (
		        SELECT MAX(DATE(rating_time)) FROM ratings WHERE movie_id=? AND DATE(rating_time) < ?)`,
		movieID, movieID, day.Format("2006-01-02")).Scan(&avg)
	if err != nil {
		return nil, err
	}
	return floatPtr(avg), nil
}
