package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/iliyamo/bandou-movie/internal/logging"
	"github.com/iliyamo/bandou-movie/internal/metrics"
)

// ScoreAggregator keeps movies.score equal to the rounded mean of the
// movie's ratings.  RecomputeTx must run inside the transaction that
// changed the ratings so the two writes commit together.
type ScoreAggregator struct{}

func NewScoreAggregator() *ScoreAggregator { return &ScoreAggregator{} }

// RoundScore rounds a mean to one decimal place, half away from zero.
func RoundScore(avg float64) float64 {
	return math.Round(avg*10) / 10
}

// ScoreFrom maps an AVG/COUNT pair onto the stored score: nil when there
// are no ratings, otherwise the rounded mean (an average of 0 stays 0).
func ScoreFrom(avg sql.NullFloat64, count int64) *float64 {
	if count == 0 || !avg.Valid {
		return nil
	}
	s := RoundScore(avg.Float64)
	return &s
}

// RecomputeTx locks the movie row, recomputes its score from the ratings
// table and writes it back.  A missing movie is reported as
// ErrInconsistent since the rating that triggered the call references it.
func (a *ScoreAggregator) RecomputeTx(ctx context.Context, tx *sql.Tx, movieID uint64) (*float64, error) {
	start := time.Now()
	defer func() { metrics.ScoreRecomputeDuration.Observe(time.Since(start).Seconds()) }()

	var id uint64
	err := tx.QueryRowContext(ctx, "SELECT id FROM movies WHERE id=? FOR UPDATE", movieID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		logging.Ctx(ctx).Error().Uint64("movie_id", movieID).Msg("score recompute: movie row missing")
		return nil, fmt.Errorf("movie %d: %w", movieID, ErrInconsistent)
	}
	if err != nil {
		return nil, err
	}

	var (
		avg   sql.NullFloat64
		count int64
	)
	if err := tx.QueryRowContext(ctx,
		"SELECT AVG(rating), COUNT(*) FROM ratings WHERE movie_id=?", movieID).Scan(&avg, &count); err != nil {
		return nil, err
	}

	score := ScoreFrom(avg, count)
	var arg sql.NullFloat64
	if score != nil {
		arg = sql.NullFloat64{Float64: *score, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, "UPDATE movies SET score=? WHERE id=?", arg, movieID); err != nil {
		return nil, err
	}
	return score, nil
}
