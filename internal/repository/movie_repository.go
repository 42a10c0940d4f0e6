package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/bandou-movie/internal/model"
)

// MovieRepo provides access to the movies catalog.  Score is never written
// from here except by InsertIfTitleAbsent, which seeds the value scraped
// from the source site; afterwards only ScoreAggregator touches it.
type MovieRepo struct {
	db *sql.DB
}

func NewMovieRepo(db *sql.DB) *MovieRepo { return &MovieRepo{db: db} }

const movieColumns = "id,title,COALESCE(brief,''),COALESCE(cover_url,''),score,release_date,COALESCE(director,''),COALESCE(starring,''),COALESCE(category,''),created_at,updated_at"

// scoreOrder sorts scored movies first, best first, then by id.
const scoreOrder = "score IS NULL, score DESC, id ASC"

func scanMovie(s rowScanner) (*model.Movie, error) {
	var (
		m       model.Movie
		score   sql.NullFloat64
		release sql.NullTime
	)
	if err := s.Scan(&m.ID, &m.Title, &m.Brief, &m.CoverURL, &score, &release,
		&m.Director, &m.Starring, &m.Category, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Score = floatPtr(score)
	m.ReleaseDate = timePtr(release)
	return &m, nil
}

func (r *MovieRepo) query(ctx context.Context, q string, args ...any) ([]model.Movie, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Movie
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Create inserts an admin supplied movie.  Score always starts NULL.
func (r *MovieRepo) Create(ctx context.Context, m *model.Movie) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO movies (title, brief, cover_url, release_date, director, starring, category)
		 VALUES (?,?,?,?,?,?,?)`,
		m.Title, m.Brief, m.CoverURL, nullTime(m.ReleaseDate), m.Director, m.Starring, m.Category)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	m.Score = nil
	return nil
}

// GetByID fetches one movie.
func (r *MovieRepo) GetByID(ctx context.Context, id uint64) (*model.Movie, error) {
	m, err := scanMovie(r.db.QueryRowContext(ctx, "SELECT "+movieColumns+" FROM movies WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMovieNotFound
	}
	return m, err
}

// LockTx takes a row lock on the movie, serialising concurrent rating
// writes for it, and returns its title.
func (r *MovieRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (string, error) {
	var title string
	err := tx.QueryRowContext(ctx, "SELECT title FROM movies WHERE id=? FOR UPDATE", id).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrMovieNotFound
	}
	return title, err
}

// Update overwrites the editable columns.  Score is not editable.
func (r *MovieRepo) Update(ctx context.Context, m *model.Movie) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE movies SET title=?, brief=?, cover_url=?, release_date=?, director=?, starring=?, category=?
		 WHERE id=?`,
		m.Title, m.Brief, m.CoverURL, nullTime(m.ReleaseDate), m.Director, m.Starring, m.Category, m.ID)
	if err != nil {
		return err
	}
	return expectOne(res, ErrMovieNotFound)
}

// Delete removes a movie; ratings and comments cascade.
func (r *MovieRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM movies WHERE id=?", id)
	if err != nil {
		return err
	}
	return expectOne(res, ErrMovieNotFound)
}

// BulkDelete removes every listed movie and reports how many existed.
func (r *MovieRepo) BulkDelete(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM movies WHERE id IN ("+placeholders(len(ids))+")", idArgs(ids)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListAll returns the whole catalog ordered by id.  Analytics and the
// category listings group in Go on top of this.
func (r *MovieRepo) ListAll(ctx context.Context) ([]model.Movie, error) {
	return r.query(ctx, "SELECT "+movieColumns+" FROM movies ORDER BY id")
}

// Search matches keyword against title, brief, director, starring and
// category, best score first.
func (r *MovieRepo) Search(ctx context.Context, keyword string) ([]model.Movie, error) {
	like := "%" + strings.TrimSpace(keyword) + "%"
	return r.query(ctx,
		"SELECT "+movieColumns+` FROM movies
		  WHERE title LIKE ? OR brief LIKE ? OR director LIKE ? OR starring LIKE ? OR category LIKE ?
		  ORDER BY `+scoreOrder,
		like, like, like, like, like)
}

// Ranking lists movies by score, unscored ones last.  limit<=0 means all.
func (r *MovieRepo) Ranking(ctx context.Context, limit int) ([]model.Movie, error) {
	q := "SELECT " + movieColumns + " FROM movies ORDER BY " + scoreOrder
	if limit > 0 {
		return r.query(ctx, q+" LIMIT ?", limit)
	}
	return r.query(ctx, q)
}

// UnratedBy returns the movies userID has not rated, best score first.
func (r *MovieRepo) UnratedBy(ctx context.Context, userID uint64) ([]model.Movie, error) {
	return r.query(ctx,
		"SELECT "+movieColumns+` FROM movies m
		  WHERE NOT EXISTS (SELECT 1 FROM ratings r WHERE r.movie_id = m.id AND r.user_id = ?)
		  ORDER BY `+scoreOrder,
		userID)
}

// RatedCategories returns the raw category strings of every movie userID
// has rated.
func (r *MovieRepo) RatedCategories(ctx context.Context, userID uint64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT COALESCE(m.category,'') FROM ratings r JOIN movies m ON m.id = r.movie_id
		  WHERE r.user_id = ? ORDER BY r.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertIfTitleAbsent stores a scraped movie unless one with the same title
// exists.  It reports whether a row was inserted.
func (r *MovieRepo) InsertIfTitleAbsent(ctx context.Context, m *model.Movie) (bool, error) {
	var score sql.NullFloat64
	if m.Score != nil {
		score = sql.NullFloat64{Float64: *m.Score, Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO movies (title, brief, cover_url, score, release_date, director, starring, category)
		 SELECT ?,?,?,?,?,?,?,? FROM DUAL
		  WHERE NOT EXISTS (SELECT 1 FROM movies WHERE title = ?)`,
		m.Title, m.Brief, m.CoverURL, score, nullTime(m.ReleaseDate), m.Director, m.Starring, m.Category, m.Title)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if id, err := res.LastInsertId(); err == nil {
		m.ID = uint64(id)
	}
	return true, nil
}

// MovieListQuery drives the admin listing.
type MovieListQuery struct {
	Search           string
	MinScore         *float64
	MaxScore         *float64
	NoRating         bool
	ReleaseDateStart *time.Time
	ReleaseDateEnd   *time.Time
	RecentDays       int // >0 keeps movies released in the last N days
	Ordering         string
	Page             int
	PageSize         int
}

var movieOrderings = map[string]string{
	"id":            "id ASC",
	"-id":           "id DESC",
	"title":         "title ASC, id ASC",
	"-title":        "title DESC, id ASC",
	"score":         "score IS NULL, score ASC, id ASC",
	"-score":        scoreOrder,
	"release_date":  "release_date IS NULL, release_date ASC, id ASC",
	"-release_date": "release_date IS NULL, release_date DESC, id ASC",
}

// ValidOrdering reports whether o is an accepted ordering key.
func ValidOrdering(o string) bool {
	_, ok := movieOrderings[o]
	return o == "" || ok
}

// AdminList returns one filtered page of movies and the total match count.
func (r *MovieRepo) AdminList(ctx context.Context, q MovieListQuery) ([]model.Movie, int64, error) {
	where := []string{}
	args := []any{}
	if s := strings.TrimSpace(q.Search); s != "" {
		where = append(where, "(title LIKE ? OR director LIKE ? OR starring LIKE ?)")
		like := "%" + s + "%"
		args = append(args, like, like, like)
	}
	if q.NoRating {
		where = append(where, "score IS NULL")
	} else {
		if q.MinScore != nil {
			where = append(where, "score >= ?")
			args = append(args, *q.MinScore)
		}
		if q.MaxScore != nil {
			where = append(where, "score <= ?")
			args = append(args, *q.MaxScore)
		}
	}
	if q.ReleaseDateStart != nil {
		where = append(where, "release_date >= ?")
		args = append(args, q.ReleaseDateStart.Format("2006-01-02"))
	}
	if q.ReleaseDateEnd != nil {
		where = append(where, "release_date <= ?")
		args = append(args, q.ReleaseDateEnd.Format("2006-01-02"))
	}
	if q.RecentDays > 0 {
		where = append(where, "release_date >= DATE_SUB(CURDATE(), INTERVAL ? DAY)")
		args = append(args, q.RecentDays)
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM movies WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order, ok := movieOrderings[q.Ordering]
	if !ok {
		order = "id DESC"
	}
	page, size := normalizePage(q.Page, q.PageSize)
	out, err := r.query(ctx,
		"SELECT "+movieColumns+" FROM movies WHERE "+cond+" ORDER BY "+order+" LIMIT ? OFFSET ?",
		append(append([]any{}, args...), size, (page-1)*size)...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
