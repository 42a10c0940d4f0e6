package service

import "github.com/iliyamo/bandou-movie/internal/model"

// MaxReplyDepth bounds how deep BuildThreads nests replies.
const MaxReplyDepth = 32

type frame struct {
	node  *CommentView
	depth int
}

// BuildThreads arranges the comments of one movie into reply trees.  Input
// must be ordered oldest first; roots and every reply list keep that order.
// Nodes deeper than maxDepth, orphans and cycle members are left out and
// counted in dropped.
func BuildThreads(details []model.CommentDetail, maxDepth int, urls URLResolver) (roots []*CommentView, dropped int) {
	views := make(map[uint64]*CommentView, len(details))
	children := make(map[uint64][]uint64, len(details))
	roots = []*CommentView{}
	for _, d := range details {
		views[d.ID] = newCommentView(d, urls)
		if d.ParentID == nil {
			roots = append(roots, views[d.ID])
		} else {
			children[*d.ParentID] = append(children[*d.ParentID], d.ID)
		}
	}

	attached := len(roots)
	seen := make(map[uint64]bool, len(details))
	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		seen[roots[i].ID] = true
		stack = append(stack, frame{node: roots[i]})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.depth >= maxDepth {
			continue
		}
		for _, id := range children[f.node.ID] {
			if seen[id] {
				continue
			}
			seen[id] = true
			child := views[id]
			f.node.Replies = append(f.node.Replies, child)
			attached++
			stack = append(stack, frame{node: child, depth: f.depth + 1})
		}
	}
	return roots, len(details) - attached
}
