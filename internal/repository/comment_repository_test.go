package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u64(v uint64) *uint64 { return &v }

func TestSubtreeCollectsTransitiveReplies(t *testing.T) {
	links := []CommentLink{
		{ID: 1},
		{ID: 2, ParentID: u64(1)},
		{ID: 3, ParentID: u64(2)},
		{ID: 4, ParentID: u64(3)},
		{ID: 5},
		{ID: 6, ParentID: u64(5)},
		{ID: 7, ParentID: u64(1)},
	}
	assert.Equal(t, []uint64{1, 2, 7, 3, 4}, Subtree(1, links))
	assert.Equal(t, []uint64{3, 4}, Subtree(3, links))
	assert.Equal(t, []uint64{6}, Subtree(6, links))
}

func TestSubtreeTerminatesOnCycle(t *testing.T) {
	links := []CommentLink{
		{ID: 1, ParentID: u64(2)},
		{ID: 2, ParentID: u64(1)},
	}
	assert.Equal(t, []uint64{1, 2}, Subtree(1, links))
}

func TestListForMovieScansNullableJoins(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{"id", "user_id", "movie_id", "comment", "comment_time", "parent_comment_id",
		"username", "avatar", "title", "rating", "parent_username"}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT c.id, c.user_id")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, 10, 3, "great", now, nil, "alice", "avatars/a.png", "M", 4.0, nil).
			AddRow(2, 11, 3, "agreed", now.Add(time.Minute), 1, "bob", nil, "M", nil, "alice"))

	got, err := NewCommentRepo(db).ListForMovie(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Nil(t, got[0].ParentID)
	require.NotNil(t, got[0].Avatar)
	assert.Equal(t, "avatars/a.png", *got[0].Avatar)
	require.NotNil(t, got[0].AuthorRating)
	assert.Equal(t, 4.0, *got[0].AuthorRating)

	require.NotNil(t, got[1].ParentID)
	assert.Equal(t, uint64(1), *got[1].ParentID)
	assert.Nil(t, got[1].Avatar)
	assert.Nil(t, got[1].AuthorRating)
	require.NotNil(t, got[1].ParentUsername)
	assert.Equal(t, "alice", *got[1].ParentUsername)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, movie_id, comment")).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = NewCommentRepo(db).GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, ErrCommentNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}
