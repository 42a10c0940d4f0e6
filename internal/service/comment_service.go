package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/bandou-movie/internal/logging"
	"github.com/iliyamo/bandou-movie/internal/model"
	"github.com/iliyamo/bandou-movie/internal/queue"
	"github.com/iliyamo/bandou-movie/internal/repository"
)

// CommentService creates, lists and deletes threaded comments.
type CommentService struct {
	db       *sql.DB
	movies   *repository.MovieRepo
	comments *repository.CommentRepo
	urls     URLResolver
	events   queue.Publisher
	maxDepth int
	now      func() time.Time
}

func NewCommentService(db *sql.DB, movies *repository.MovieRepo, comments *repository.CommentRepo,
	urls URLResolver, events queue.Publisher) *CommentService {
	if db == nil || movies == nil || comments == nil {
		panic("nil dependency passed to NewCommentService")
	}
	if events == nil {
		events = queue.NopPublisher{}
	}
	return &CommentService{db: db, movies: movies, comments: comments, urls: urls, events: events,
		maxDepth: MaxReplyDepth, now: func() time.Time { return time.Now().UTC() }}
}

func checkText(text string) (string, error) {
	text = cleanText(text)
	if text == "" {
		return "", invalid("comment", "comment may not be blank")
	}
	return text, nil
}

// Create adds a top-level comment to movieID.
func (s *CommentService) Create(ctx context.Context, userID, movieID uint64, text string) (*CommentView, error) {
	text, err := checkText(text)
	if err != nil {
		return nil, err
	}
	if _, err := s.movies.GetByID(ctx, movieID); err != nil {
		return nil, err
	}
	return s.insert(ctx, &model.Comment{UserID: userID, MovieID: movieID, Text: text})
}

// Reply answers parentID.  The reply belongs to the parent's movie.
func (s *CommentService) Reply(ctx context.Context, userID, parentID uint64, text string) (*CommentView, error) {
	text, err := checkText(text)
	if err != nil {
		return nil, err
	}
	parent, err := s.comments.GetByID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	pid := parent.ID
	return s.insert(ctx, &model.Comment{UserID: userID, MovieID: parent.MovieID, Text: text, ParentID: &pid})
}

func (s *CommentService) insert(ctx context.Context, c *model.Comment) (*CommentView, error) {
	c.CommentTime = s.now()
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, err
	}
	ev := queue.NewEvent(queue.CommentCreated, c.UserID)
	ev.MovieID, ev.CommentID = c.MovieID, c.ID
	s.events.Publish(ctx, ev)

	d, err := s.comments.GetDetail(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return newCommentView(*d, s.urls), nil
}

// ListForMovie returns the top-level comments of movieID oldest first, each
// carrying its reply tree.
func (s *CommentService) ListForMovie(ctx context.Context, movieID uint64) ([]*CommentView, error) {
	if _, err := s.movies.GetByID(ctx, movieID); err != nil {
		return nil, err
	}
	details, err := s.comments.ListForMovie(ctx, movieID)
	if err != nil {
		return nil, err
	}
	roots, dropped := BuildThreads(details, s.maxDepth, s.urls)
	if dropped > 0 {
		logging.Ctx(ctx).Warn().Uint64("movie_id", movieID).Int("dropped", dropped).
			Int("max_depth", s.maxDepth).Msg("comment replies left out of thread")
	}
	return roots, nil
}

// ListForUser returns userID's comments, newest first, without nesting.
func (s *CommentService) ListForUser(ctx context.Context, userID uint64) ([]*CommentView, error) {
	details, err := s.comments.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*CommentView, 0, len(details))
	for _, d := range details {
		out = append(out, newCommentView(d, s.urls))
	}
	return out, nil
}

// Delete removes commentID and every reply below it.  Only the author may
// delete.  It returns the number of rows removed.
func (s *CommentService) Delete(ctx context.Context, userID, commentID uint64) (int64, error) {
	var (
		removed int64
		movieID uint64
	)
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		c, err := s.comments.GetForUpdateTx(ctx, tx, commentID)
		if err != nil {
			return err
		}
		if c.UserID != userID {
			return repository.ErrForbidden
		}
		movieID = c.MovieID
		links, err := s.comments.LinksForMovieTx(ctx, tx, c.MovieID)
		if err != nil {
			return err
		}
		removed, err = s.comments.DeleteIDsTx(ctx, tx, repository.Subtree(c.ID, links))
		return err
	})
	if err != nil {
		return 0, err
	}
	ev := queue.NewEvent(queue.CommentDeleted, userID)
	ev.MovieID, ev.CommentID, ev.Removed = movieID, commentID, removed
	s.events.Publish(ctx, ev)
	return removed, nil
}
