package service

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bandou-movie/internal/repository"
	"github.com/iliyamo/bandou-movie/internal/validation"
)

var fixedNow = time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

func newRatingServiceMock(t *testing.T) (*RatingService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := NewRatingService(db, repository.NewMovieRepo(db), repository.NewRatingRepo(db),
		repository.NewScoreAggregator(), nil)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func expectLockMovie(mock sqlmock.Sqlmock, movieID uint64) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT title FROM movies WHERE id=? FOR UPDATE")).
		WithArgs(movieID).
		WillReturnRows(sqlmock.NewRows([]string{"title"}).AddRow("M"))
}

func expectPair(mock sqlmock.Sqlmock, userID, movieID uint64, existing *float64, id uint64) {
	rows := sqlmock.NewRows([]string{"id", "user_id", "movie_id", "rating", "rating_time"})
	if existing != nil {
		rows.AddRow(id, userID, movieID, *existing, fixedNow.Add(-time.Hour))
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM ratings WHERE user_id=? AND movie_id=? FOR UPDATE")).
		WithArgs(userID, movieID).
		WillReturnRows(rows)
}

func expectRecompute(mock sqlmock.Sqlmock, movieID uint64, avg any, count int64, stored any) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM movies WHERE id=? FOR UPDATE")).
		WithArgs(movieID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(movieID))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT AVG(rating), COUNT(*) FROM ratings WHERE movie_id=?")).
		WithArgs(movieID).
		WillReturnRows(sqlmock.NewRows([]string{"avg", "count"}).AddRow(avg, count))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE movies SET score=? WHERE id=?")).
		WithArgs(stored, movieID).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func expectDetail(mock sqlmock.Sqlmock, id, userID, movieID uint64, value float64) {
	mock.ExpectQuery(regexp.QuoteMeta("WHERE r.id=?")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "movie_id", "rating", "rating_time", "username", "title"}).
			AddRow(id, userID, movieID, value, fixedNow, "u", "M"))
}

func TestUpsertCreatesThenOverwrites(t *testing.T) {
	s, mock := newRatingServiceMock(t)
	ctx := context.Background()

	// Users 1 and 2 rate 4 and 5; user 3 then rates 3.
	mock.ExpectBegin()
	expectLockMovie(mock, 9)
	expectPair(mock, 2, 9, nil, 0)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ratings (user_id, movie_id, rating, rating_time) VALUES (?,?,?,?)")).
		WithArgs(2, 9, 5.0, fixedNow).
		WillReturnResult(sqlmock.NewResult(11, 1))
	expectRecompute(mock, 9, 4.5, 2, 4.5)
	mock.ExpectCommit()
	expectDetail(mock, 11, 2, 9, 5)

	v, created, err := s.Upsert(ctx, 2, 9, 5)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, v.ID)
	assert.Equal(t, uint64(11), *v.ID)
	assert.Equal(t, 5.0, v.Rating)

	mock.ExpectBegin()
	expectLockMovie(mock, 9)
	expectPair(mock, 3, 9, nil, 0)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ratings")).
		WithArgs(3, 9, 3.0, fixedNow).
		WillReturnResult(sqlmock.NewResult(12, 1))
	expectRecompute(mock, 9, 4.0, 3, 4.0)
	mock.ExpectCommit()
	expectDetail(mock, 12, 3, 9, 3)

	_, created, err = s.Upsert(ctx, 3, 9, 3)
	require.NoError(t, err)
	assert.True(t, created)

	// Same pair again overwrites in place.
	prev := 3.0
	mock.ExpectBegin()
	expectLockMovie(mock, 9)
	expectPair(mock, 3, 9, &prev, 12)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE ratings SET rating=?, rating_time=? WHERE id=?")).
		WithArgs(2.0, fixedNow, 12).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectRecompute(mock, 9, 11.0/3.0, 3, 3.7)
	mock.ExpectCommit()
	expectDetail(mock, 12, 3, 9, 2)

	v, created, err = s.Upsert(ctx, 3, 9, 2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 2.0, v.Rating)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRejectsOutOfRange(t *testing.T) {
	s, mock := newRatingServiceMock(t)
	for _, v := range []float64{-0.1, 5.01} {
		_, _, err := s.Upsert(context.Background(), 1, 1, v)
		var verr *validation.RequestValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields(), "rating")
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertUnknownMovieRollsBack(t *testing.T) {
	s, mock := newRatingServiceMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT title FROM movies WHERE id=? FOR UPDATE")).
		WithArgs(404).
		WillReturnRows(sqlmock.NewRows([]string{"title"}))
	mock.ExpectRollback()

	_, _, err := s.Upsert(context.Background(), 1, 404, 3)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

// expectLockRating covers the movie-then-rating locking of Update and Delete.
func expectLockRating(mock sqlmock.Sqlmock, ratingID, userID, movieID uint64, value float64) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT movie_id FROM ratings WHERE id=?")).
		WithArgs(ratingID).
		WillReturnRows(sqlmock.NewRows([]string{"movie_id"}).AddRow(movieID))
	expectLockMovie(mock, movieID)
	mock.ExpectQuery(regexp.QuoteMeta("FROM ratings WHERE id=? FOR UPDATE")).
		WithArgs(ratingID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "movie_id", "rating", "rating_time"}).
			AddRow(ratingID, userID, movieID, value, fixedNow))
}

func TestDeleteLastRatingClearsScore(t *testing.T) {
	s, mock := newRatingServiceMock(t)
	mock.ExpectBegin()
	expectLockRating(mock, 5, 1, 9, 4)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM ratings WHERE id=?")).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectRecompute(mock, 9, nil, 0, sql.NullFloat64{})
	mock.ExpectCommit()

	require.NoError(t, s.Delete(context.Background(), 1, 5))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOthersRatingForbidden(t *testing.T) {
	s, mock := newRatingServiceMock(t)
	mock.ExpectBegin()
	expectLockRating(mock, 5, 2, 9, 4)
	mock.ExpectRollback()

	assert.ErrorIs(t, s.Delete(context.Background(), 1, 5), repository.ErrForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingRatingNotFound(t *testing.T) {
	s, mock := newRatingServiceMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT movie_id FROM ratings WHERE id=?")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"movie_id"}))
	mock.ExpectRollback()

	assert.ErrorIs(t, s.Delete(context.Background(), 1, 5), repository.ErrRatingNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateLocksMovieBeforeRating(t *testing.T) {
	s, mock := newRatingServiceMock(t)
	mock.MatchExpectationsInOrder(true)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT movie_id FROM ratings WHERE id=?")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"movie_id"}).AddRow(9))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT title FROM movies WHERE id=? FOR UPDATE")).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"title"}).AddRow("M"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, movie_id, rating, rating_time FROM ratings WHERE id=? FOR UPDATE")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "movie_id", "rating", "rating_time"}).
			AddRow(5, 1, 9, 4.0, fixedNow))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE ratings SET rating=?, rating_time=? WHERE id=?")).
		WithArgs(3.0, fixedNow, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectRecompute(mock, 9, 3.0, 1, 3.0)
	mock.ExpectCommit()
	expectDetail(mock, 5, 1, 9, 3)

	v, err := s.Update(context.Background(), 1, 5, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v.Rating)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRatingMovedUnderLock(t *testing.T) {
	s, mock := newRatingServiceMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT movie_id FROM ratings WHERE id=?")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"movie_id"}).AddRow(9))
	expectLockMovie(mock, 9)
	mock.ExpectQuery(regexp.QuoteMeta("FROM ratings WHERE id=? FOR UPDATE")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "movie_id", "rating", "rating_time"}).
			AddRow(5, 1, 10, 4.0, fixedNow))
	mock.ExpectRollback()

	_, err := s.Update(context.Background(), 1, 5, nil, 3)
	assert.ErrorIs(t, err, repository.ErrInconsistent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCannotMoveRatingToAnotherMovie(t *testing.T) {
	s, mock := newRatingServiceMock(t)
	mock.ExpectBegin()
	expectLockRating(mock, 5, 1, 9, 4)
	mock.ExpectRollback()

	other := uint64(10)
	_, err := s.Update(context.Background(), 1, 5, &other, 3)
	var verr *validation.RequestValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields(), "movie")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWithoutRatingReturnsPlaceholder(t *testing.T) {
	s, mock := newRatingServiceMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE r.user_id=? AND r.movie_id=?")).
		WithArgs(1, 9).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "movie_id", "rating", "rating_time", "username", "title"}))

	v, err := s.Get(context.Background(), 1, 9)
	require.NoError(t, err)
	assert.Nil(t, v.ID)
	assert.Equal(t, 0.0, v.Rating)
	require.NoError(t, mock.ExpectationsWereMet())
}
