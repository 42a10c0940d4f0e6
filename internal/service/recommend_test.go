package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bandou-movie/internal/model"
	"github.com/iliyamo/bandou-movie/internal/repository"
)

func score(v float64) *float64 { return &v }

func movie(id uint64, cat string, s *float64) model.Movie {
	return model.Movie{ID: id, Title: "m", Category: cat, Score: s}
}

func ids(ms []model.Movie) []uint64 {
	out := make([]uint64, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}

func TestTopRatedByCategory(t *testing.T) {
	catalog := []model.Movie{
		movie(1, "喜剧", score(3)),
		movie(2, "动作", score(4)),
		movie(3, "喜剧", score(4.5)),
		movie(4, "喜剧", score(4.5)),
		movie(5, "动作/喜剧", nil),
		movie(6, "动作", nil),
		movie(7, "", score(5)),
		movie(8, "动作", score(2)),
	}
	got := TopRatedByCategory(catalog, 2, 10)
	// 喜剧 first (movie 1), then 动作, then the composite value.
	assert.Equal(t, []uint64{3, 4, 2, 8, 5}, ids(got))

	capped := TopRatedByCategory(catalog, 2, 3)
	assert.Equal(t, []uint64{3, 4, 2}, ids(capped))
}

func TestMatchHistoryUsesComponents(t *testing.T) {
	candidates := []model.Movie{
		movie(10, "剧情", score(5)),
		movie(11, "动作/科幻", score(3)),
		movie(12, "科幻", nil),
		movie(13, " 喜剧 ", score(4)),
		movie(14, "爱情/喜剧", nil),
		movie(15, "动作", score(2)),
	}
	// A rated "动作/喜剧" matches a plain "动作" through the shared component.
	got := MatchHistory(candidates, []string{"动作/喜剧"}, 10)
	assert.Equal(t, []uint64{13, 11, 15, 14}, ids(got))
	assert.Len(t, MatchHistory(candidates, []string{"动作/喜剧"}, 1), 1)
}

var movieCols = []string{"id", "title", "brief", "cover_url", "score", "release_date",
	"director", "starring", "category", "created_at", "updated_at"}

func catalogRows() *sqlmock.Rows {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(movieCols).
		AddRow(1, "A", "", "", 4.0, nil, "", "", "喜剧", now, now).
		AddRow(2, "B", "", "", 4.8, nil, "", "", "动作", now, now).
		AddRow(3, "C", "", "", nil, nil, "", "", "喜剧", now, now).
		AddRow(4, "D", "", "", 4.9, nil, "", "", "喜剧", now, now)
}

func TestAnonymousAndColdStartAgree(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	r := NewRecommender(repository.NewMovieRepo(db), nil)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("FROM movies ORDER BY id")).WillReturnRows(catalogRows())
	anon, err := r.Recommend(ctx, nil)
	require.NoError(t, err)
	assert.True(t, anon.Anonymous)
	assert.False(t, anon.Personal)
	assert.NotEmpty(t, anon.Message)

	uid := uint64(42)
	mock.ExpectQuery(regexp.QuoteMeta("FROM ratings r JOIN movies m")).
		WithArgs(uid).
		WillReturnRows(sqlmock.NewRows([]string{"category"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM movies ORDER BY id")).WillReturnRows(catalogRows())
	cold, err := r.Recommend(ctx, &uid)
	require.NoError(t, err)
	assert.False(t, cold.Anonymous)
	assert.False(t, cold.Personal)
	assert.NotEqual(t, anon.Message, cold.Message)

	assert.Equal(t, anon.Movies, cold.Movies)
	require.Len(t, anon.Movies, 3)
	assert.Equal(t, uint64(4), anon.Movies[0].ID)
	assert.Equal(t, uint64(1), anon.Movies[1].ID)
	assert.Equal(t, uint64(2), anon.Movies[2].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecommendFromHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	r := NewRecommender(repository.NewMovieRepo(db), nil)

	uid := uint64(7)
	mock.ExpectQuery(regexp.QuoteMeta("FROM ratings r JOIN movies m")).
		WithArgs(uid).
		WillReturnRows(sqlmock.NewRows([]string{"category"}).AddRow("动作/冒险"))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE NOT EXISTS")).
		WithArgs(uid).
		WillReturnRows(sqlmock.NewRows(movieCols).
			AddRow(5, "E", "", "", 4.2, nil, "", "", "冒险", now, now).
			AddRow(6, "F", "", "", 3.0, nil, "", "", "剧情", now, now).
			AddRow(8, "G", "", "", nil, nil, "", "", "动作/剧情", now, now))

	rec, err := r.Recommend(context.Background(), &uid)
	require.NoError(t, err)
	assert.True(t, rec.Personal)
	require.Len(t, rec.Movies, 2)
	assert.Equal(t, uint64(5), rec.Movies[0].ID)
	assert.Equal(t, uint64(8), rec.Movies[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
