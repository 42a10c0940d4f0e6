package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bandou-movie/internal/model"
)

type prefixURLs string

func (p prefixURLs) URL(key string) string { return string(p) + key }

func detail(id uint64, parent *uint64) model.CommentDetail {
	return model.CommentDetail{
		Comment: model.Comment{
			ID:          id,
			UserID:      1,
			MovieID:     1,
			Text:        "c",
			CommentTime: time.Date(2024, 1, 1, 0, 0, int(id), 0, time.UTC),
			ParentID:    parent,
		},
		Username: "u",
	}
}

func ref(id uint64) *uint64 { return &id }

func TestBuildThreadsNestsInOrder(t *testing.T) {
	in := []model.CommentDetail{
		detail(1, nil),
		detail(2, ref(1)),
		detail(3, nil),
		detail(4, ref(2)),
		detail(5, ref(1)),
	}
	roots, dropped := BuildThreads(in, MaxReplyDepth, nil)
	assert.Zero(t, dropped)
	require.Len(t, roots, 2)
	assert.Equal(t, uint64(1), roots[0].ID)
	assert.Equal(t, uint64(3), roots[1].ID)

	require.Len(t, roots[0].Replies, 2)
	assert.Equal(t, uint64(2), roots[0].Replies[0].ID)
	assert.Equal(t, uint64(5), roots[0].Replies[1].ID)
	require.Len(t, roots[0].Replies[0].Replies, 1)
	assert.Equal(t, uint64(4), roots[0].Replies[0].Replies[0].ID)
	assert.NotNil(t, roots[1].Replies, "empty reply lists render as []")
}

func TestBuildThreadsDropsOrphansCyclesAndDeepNodes(t *testing.T) {
	in := []model.CommentDetail{
		detail(1, nil),
		detail(2, ref(1)),
		detail(3, ref(2)),
		detail(8, ref(99)),
		detail(10, ref(11)),
		detail(11, ref(10)),
	}
	roots, dropped := BuildThreads(in, 1, nil)
	require.Len(t, roots, 1)
	require.Len(t, roots[0].Replies, 1)
	assert.Empty(t, roots[0].Replies[0].Replies)
	// 3 is too deep, 8 is orphaned, 10 and 11 only reach each other.
	assert.Equal(t, 4, dropped)
}

func TestBuildThreadsResolvesAvatars(t *testing.T) {
	d := detail(1, nil)
	avatar := "avatars/a.png"
	d.Avatar = &avatar
	roots, _ := BuildThreads([]model.CommentDetail{d}, MaxReplyDepth, prefixURLs("http://cdn/"))
	require.NotNil(t, roots[0].AvatarURL)
	assert.Equal(t, "http://cdn/avatars/a.png", *roots[0].AvatarURL)
}
