package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/bandou-movie/internal/model"
)

// CommentRepo stores threaded comments as an adjacency list on
// parent_comment_id.
type CommentRepo struct {
	db *sql.DB
}

func NewCommentRepo(db *sql.DB) *CommentRepo { return &CommentRepo{db: db} }

// commentDetailSelect joins author, movie, the author's rating of the same
// movie and the parent's author in one pass.
const commentDetailSelect = `SELECT c.id, c.user_id, c.movie_id, c.comment, c.comment_time, c.parent_comment_id,
	       u.username, u.avatar, m.title, r.rating, pu.username
	  FROM comments c
	  JOIN users u  ON u.id = c.user_id
	  JOIN movies m ON m.id = c.movie_id
	  LEFT JOIN ratings r  ON r.user_id = c.user_id AND r.movie_id = c.movie_id
	  LEFT JOIN comments p ON p.id = c.parent_comment_id
	  LEFT JOIN users pu   ON pu.id = p.user_id`

func scanCommentDetail(s rowScanner) (*model.CommentDetail, error) {
	var (
		d      model.CommentDetail
		parent sql.NullInt64
		avatar sql.NullString
		rating sql.NullFloat64
		puser  sql.NullString
	)
	if err := s.Scan(&d.ID, &d.UserID, &d.MovieID, &d.Text, &d.CommentTime, &parent,
		&d.Username, &avatar, &d.MovieTitle, &rating, &puser); err != nil {
		return nil, err
	}
	d.ParentID = uintPtr(parent)
	d.Avatar = strPtr(avatar)
	d.AuthorRating = floatPtr(rating)
	d.ParentUsername = strPtr(puser)
	return &d, nil
}

func (r *CommentRepo) list(ctx context.Context, q string, args ...any) ([]model.CommentDetail, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.CommentDetail{}
	for rows.Next() {
		d, err := scanCommentDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// Create inserts c and fills in its ID.
func (r *CommentRepo) Create(ctx context.Context, c *model.Comment) error {
	var parent sql.NullInt64
	if c.ParentID != nil {
		parent = sql.NullInt64{Int64: int64(*c.ParentID), Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO comments (user_id, movie_id, comment, comment_time, parent_comment_id) VALUES (?,?,?,?,?)",
		c.UserID, c.MovieID, c.Text, c.CommentTime, parent)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	return nil
}

// GetByID returns the bare comment row.
func (r *CommentRepo) GetByID(ctx context.Context, id uint64) (*model.Comment, error) {
	var (
		c      model.Comment
		parent sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, movie_id, comment, comment_time, parent_comment_id FROM comments WHERE id=?",
		id).Scan(&c.ID, &c.UserID, &c.MovieID, &c.Text, &c.CommentTime, &parent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCommentNotFound
	}
	if err != nil {
		return nil, err
	}
	c.ParentID = uintPtr(parent)
	return &c, nil
}

// GetDetail returns one enriched comment.
func (r *CommentRepo) GetDetail(ctx context.Context, id uint64) (*model.CommentDetail, error) {
	d, err := scanCommentDetail(r.db.QueryRowContext(ctx, commentDetailSelect+" WHERE c.id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCommentNotFound
	}
	return d, err
}

// ListForMovie returns every comment of movieID, replies included, oldest
// first.  Callers assemble the tree.
func (r *CommentRepo) ListForMovie(ctx context.Context, movieID uint64) ([]model.CommentDetail, error) {
	return r.list(ctx, commentDetailSelect+" WHERE c.movie_id=? ORDER BY c.comment_time ASC, c.id ASC", movieID)
}

// ListForUser returns userID's comments, newest first.
func (r *CommentRepo) ListForUser(ctx context.Context, userID uint64) ([]model.CommentDetail, error) {
	return r.list(ctx, commentDetailSelect+" WHERE c.user_id=? ORDER BY c.comment_time DESC, c.id DESC", userID)
}

// CommentLink is one parent edge of the reply graph.
type CommentLink struct {
	ID       uint64
	ParentID *uint64
}

// GetForUpdateTx locks one comment row.
func (r *CommentRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Comment, error) {
	var (
		c      model.Comment
		parent sql.NullInt64
	)
	err := tx.QueryRowContext(ctx,
		"SELECT id, user_id, movie_id, comment, comment_time, parent_comment_id FROM comments WHERE id=? FOR UPDATE",
		id).Scan(&c.ID, &c.UserID, &c.MovieID, &c.Text, &c.CommentTime, &parent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCommentNotFound
	}
	if err != nil {
		return nil, err
	}
	c.ParentID = uintPtr(parent)
	return &c, nil
}

// LinksForMovieTx locks and returns the reply edges of one movie.  Replies
// always share their parent's movie, so a subtree never leaves this set.
func (r *CommentRepo) LinksForMovieTx(ctx context.Context, tx *sql.Tx, movieID uint64) ([]CommentLink, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT id, parent_comment_id FROM comments WHERE movie_id=? FOR UPDATE", movieID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CommentLink
	for rows.Next() {
		var (
			l      CommentLink
			parent sql.NullInt64
		)
		if err := rows.Scan(&l.ID, &parent); err != nil {
			return nil, err
		}
		l.ParentID = uintPtr(parent)
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteIDsTx removes the listed comments.  The FK cascade covers any reply
// inserted after the links were read.
func (r *CommentRepo) DeleteIDsTx(ctx context.Context, tx *sql.Tx, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := tx.ExecContext(ctx,
		"DELETE FROM comments WHERE id IN ("+placeholders(len(ids))+")", idArgs(ids)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Subtree returns root followed by every transitive reply to it found in
// links, breadth first.  It walks with an explicit queue and a visited set,
// so cycles in corrupt data terminate.
func Subtree(root uint64, links []CommentLink) []uint64 {
	children := make(map[uint64][]uint64, len(links))
	for _, l := range links {
		if l.ParentID != nil {
			children[*l.ParentID] = append(children[*l.ParentID], l.ID)
		}
	}
	out := []uint64{root}
	seen := map[uint64]bool{root: true}
	for i := 0; i < len(out); i++ {
		for _, c := range children[out[i]] {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}
