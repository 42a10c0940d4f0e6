package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/iliyamo/bandou-movie/internal/logging"
	"github.com/iliyamo/bandou-movie/internal/metrics"
	"github.com/iliyamo/bandou-movie/internal/model"
	"github.com/iliyamo/bandou-movie/internal/queue"
	"github.com/iliyamo/bandou-movie/internal/repository"
)

// Rating bounds, inclusive.
const (
	MinRating = 0.0
	MaxRating = 5.0
)

// RatingService owns every rating write.  Each write locks the movie row,
// changes the rating and recomputes movies.score in one transaction.
type RatingService struct {
	db      *sql.DB
	movies  *repository.MovieRepo
	ratings *repository.RatingRepo
	scores  *repository.ScoreAggregator
	events  queue.Publisher
	now     func() time.Time
}

func NewRatingService(db *sql.DB, movies *repository.MovieRepo, ratings *repository.RatingRepo,
	scores *repository.ScoreAggregator, events queue.Publisher) *RatingService {
	if db == nil || movies == nil || ratings == nil || scores == nil {
		panic("nil dependency passed to NewRatingService")
	}
	if events == nil {
		events = queue.NopPublisher{}
	}
	return &RatingService{db: db, movies: movies, ratings: ratings, scores: scores, events: events,
		now: func() time.Time { return time.Now().UTC() }}
}

func checkValue(v float64) error {
	if math.IsNaN(v) || v < MinRating || v > MaxRating {
		return invalid("rating", "rating must be between 0 and 5")
	}
	return nil
}

// Upsert creates or overwrites userID's rating of movieID.  created reports
// which of the two happened.
func (s *RatingService) Upsert(ctx context.Context, userID, movieID uint64, value float64) (RatingView, bool, error) {
	if err := checkValue(value); err != nil {
		return RatingView{}, false, err
	}
	var (
		ratingID uint64
		created  bool
		score    *float64
	)
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.movies.LockTx(ctx, tx, movieID); err != nil {
			return err
		}
		existing, err := s.ratings.FindForPairTx(ctx, tx, userID, movieID)
		if err != nil {
			return err
		}
		at := s.now()
		if existing == nil {
			rt := &model.Rating{UserID: userID, MovieID: movieID, Value: value, RatingTime: at}
			if err := s.ratings.CreateTx(ctx, tx, rt); err != nil {
				return err
			}
			ratingID, created = rt.ID, true
		} else {
			if err := s.ratings.UpdateValueTx(ctx, tx, existing.ID, value, at); err != nil {
				return err
			}
			ratingID = existing.ID
		}
		score, err = s.scores.RecomputeTx(ctx, tx, movieID)
		return err
	})
	if err != nil {
		return RatingView{}, false, err
	}

	kind, typ := "update", queue.RatingUpdated
	if created {
		kind, typ = "create", queue.RatingCreated
	}
	metrics.RatingWrites.WithLabelValues(kind).Inc()
	s.publish(ctx, typ, userID, movieID, ratingID, &value, score)

	view, err := s.view(ctx, ratingID)
	return view, created, err
}

// Get returns userID's rating of movieID or NoRating.
func (s *RatingService) Get(ctx context.Context, userID, movieID uint64) (RatingView, error) {
	d, err := s.ratings.GetForPair(ctx, userID, movieID)
	if errors.Is(err, repository.ErrRatingNotFound) {
		return NoRating(), nil
	}
	if err != nil {
		return RatingView{}, err
	}
	return newRatingView(*d), nil
}

// ListForMovie lists ratings newest first.  Unknown movies are NotFound.
func (s *RatingService) ListForMovie(ctx context.Context, movieID uint64) ([]RatingView, error) {
	if _, err := s.movies.GetByID(ctx, movieID); err != nil {
		return nil, err
	}
	ds, err := s.ratings.ListForMovie(ctx, movieID)
	if err != nil {
		return nil, err
	}
	return newRatingViews(ds), nil
}

// ListForUser lists userID's ratings newest first.
func (s *RatingService) ListForUser(ctx context.Context, userID uint64) ([]RatingView, error) {
	ds, err := s.ratings.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return newRatingViews(ds), nil
}

// Stats returns the rounded mean and count of movieID's ratings.
func (s *RatingService) Stats(ctx context.Context, movieID uint64) (RatingStats, error) {
	if _, err := s.movies.GetByID(ctx, movieID); err != nil {
		return RatingStats{}, err
	}
	avg, count, err := s.ratings.Stats(ctx, movieID)
	if err != nil {
		return RatingStats{}, err
	}
	return RatingStats{AvgRating: repository.ScoreFrom(avg, count), RatingCount: count}, nil
}

// Update changes the value of ratingID.  movieID, when supplied, must equal
// the rating's movie; the association cannot be changed.
func (s *RatingService) Update(ctx context.Context, userID, ratingID uint64, movieID *uint64, value float64) (RatingView, error) {
	if err := checkValue(value); err != nil {
		return RatingView{}, err
	}
	var (
		rt    *model.Rating
		score *float64
	)
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		if rt, err = s.lockRating(ctx, tx, ratingID); err != nil {
			return err
		}
		if rt.UserID != userID {
			return repository.ErrForbidden
		}
		if movieID != nil && *movieID != rt.MovieID {
			return invalid("movie", "cannot change movie association")
		}
		if err := s.ratings.UpdateValueTx(ctx, tx, rt.ID, value, s.now()); err != nil {
			return err
		}
		score, err = s.scores.RecomputeTx(ctx, tx, rt.MovieID)
		return err
	})
	if err != nil {
		return RatingView{}, err
	}
	metrics.RatingWrites.WithLabelValues("update").Inc()
	s.publish(ctx, queue.RatingUpdated, userID, rt.MovieID, rt.ID, &value, score)
	return s.view(ctx, rt.ID)
}

// Delete removes ratingID, which must belong to userID.
func (s *RatingService) Delete(ctx context.Context, userID, ratingID uint64) error {
	var (
		rt    *model.Rating
		score *float64
	)
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		if rt, err = s.lockRating(ctx, tx, ratingID); err != nil {
			return err
		}
		if rt.UserID != userID {
			return repository.ErrForbidden
		}
		if err := s.ratings.DeleteTx(ctx, tx, rt.ID); err != nil {
			return err
		}
		score, err = s.scores.RecomputeTx(ctx, tx, rt.MovieID)
		return err
	})
	if err != nil {
		return err
	}
	metrics.RatingWrites.WithLabelValues("delete").Inc()
	s.publish(ctx, queue.RatingDeleted, userID, rt.MovieID, rt.ID, nil, score)
	return nil
}

// lockRating locks the rating's movie row and then the rating row, the
// order Upsert uses, so writers on one movie queue on the movie lock.
func (s *RatingService) lockRating(ctx context.Context, tx *sql.Tx, ratingID uint64) (*model.Rating, error) {
	movieID, err := s.ratings.MovieOfTx(ctx, tx, ratingID)
	if err != nil {
		return nil, err
	}
	if _, err := s.movies.LockTx(ctx, tx, movieID); err != nil {
		if errors.Is(err, repository.ErrMovieNotFound) {
			// The movie went away and took the rating with it.
			return nil, repository.ErrRatingNotFound
		}
		return nil, err
	}
	rt, err := s.ratings.GetByIDTx(ctx, tx, ratingID)
	if err != nil {
		return nil, err
	}
	if rt.MovieID != movieID {
		return nil, repository.ErrInconsistent
	}
	return rt, nil
}

func (s *RatingService) view(ctx context.Context, ratingID uint64) (RatingView, error) {
	d, err := s.ratings.GetDetail(ctx, ratingID)
	if err != nil {
		return RatingView{}, err
	}
	return newRatingView(*d), nil
}

func (s *RatingService) publish(ctx context.Context, typ string, userID, movieID, ratingID uint64, value, score *float64) {
	ev := queue.NewEvent(typ, userID)
	ev.MovieID, ev.RatingID, ev.Rating, ev.Score = movieID, ratingID, value, score
	s.events.Publish(ctx, ev)
	logging.Ctx(ctx).Debug().Str("event", typ).Uint64("movie_id", movieID).Msg("rating written")
}
