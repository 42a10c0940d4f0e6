package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bandou-movie/internal/model"
)

var movieCols = []string{"id", "title", "brief", "cover_url", "score", "release_date",
	"director", "starring", "category", "created_at", "updated_at"}

func TestInsertIfTitleAbsent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewMovieRepo(db)
	score := 4.0

	mock.ExpectExec(regexp.QuoteMeta("WHERE NOT EXISTS (SELECT 1 FROM movies WHERE title = ?)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO movies")).
		WillReturnResult(sqlmock.NewResult(42, 1))

	inserted, err := repo.InsertIfTitleAbsent(context.Background(), &model.Movie{Title: "旧片", Score: &score})
	require.NoError(t, err)
	assert.False(t, inserted)

	m := &model.Movie{Title: "新片"}
	inserted, err = repo.InsertIfTitleAbsent(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, uint64(42), m.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMovieGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM movies WHERE id=?")).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows(movieCols))

	_, err = NewMovieRepo(db).GetByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrMovieNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRankingScansNullScore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM movies ORDER BY score IS NULL, score DESC, id ASC LIMIT ?")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows(movieCols).
			AddRow(1, "A", "", "", 4.5, now, "", "", "喜剧", now, now).
			AddRow(2, "B", "", "", nil, nil, "", "", "", now, now))

	ms, err := NewMovieRepo(db).Ranking(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	require.NotNil(t, ms[0].Score)
	assert.Equal(t, 4.5, *ms[0].Score)
	assert.Nil(t, ms[1].Score)
	assert.Nil(t, ms[1].ReleaseDate)
}

func TestAdminListBuildsFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	lo := 3.0
	q := MovieListQuery{Search: " x ", MinScore: &lo, Ordering: "-score", Page: 2, PageSize: 10}
	cond := "(title LIKE ? OR director LIKE ? OR starring LIKE ?) AND score >= ?"

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM movies WHERE "+cond)).
		WithArgs("%x%", "%x%", "%x%", 3.0).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(11))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE "+cond+" ORDER BY score IS NULL, score DESC, id ASC LIMIT ? OFFSET ?")).
		WithArgs("%x%", "%x%", "%x%", 3.0, 10, 10).
		WillReturnRows(sqlmock.NewRows(movieCols))

	ms, total, err := NewMovieRepo(db).AdminList(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int64(11), total)
	assert.Empty(t, ms)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminListNoRatingIgnoresBounds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	hi := 2.0
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM movies WHERE score IS NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE score IS NULL ORDER BY id DESC LIMIT ? OFFSET ?")).
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows(movieCols))

	_, _, err = NewMovieRepo(db).AdminList(context.Background(), MovieListQuery{NoRating: true, MaxScore: &hi})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidOrdering(t *testing.T) {
	assert.True(t, ValidOrdering(""))
	assert.True(t, ValidOrdering("-release_date"))
	assert.False(t, ValidOrdering("score; DROP TABLE movies"))
}

func TestBulkDeleteEmptyIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	n, err := NewMovieRepo(db).BulkDelete(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
