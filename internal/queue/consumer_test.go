package queue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineIncludesSetFieldsOnly(t *testing.T) {
	score := 4.5
	ev := ActivityEvent{Type: RatingCreated, UserID: 3, MovieID: 9, RatingID: 12, Score: &score, OccurredAt: "2024-05-01T00:00:00Z"}
	assert.Equal(t, "[2024-05-01T00:00:00Z] rating.created | user_id=3 | movie_id=9 | rating_id=12 | score=4.5\n", ev.Line())

	login := ActivityEvent{Type: UserLogin, UserID: 3, IP: "10.0.0.1", OccurredAt: "t"}
	assert.Equal(t, "[t] user.login | user_id=3 | ip=10.0.0.1\n", login.Line())
}

func TestHandleAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "activity.log")
	c := &Consumer{LogPath: path}

	for _, ev := range []ActivityEvent{NewEvent(CommentCreated, 1), NewEvent(RatingDeleted, 2)} {
		body, err := json.Marshal(ev)
		require.NoError(t, err)
		require.NoError(t, c.Handle(body))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "comment.created | user_id=1")
	assert.Contains(t, lines[1], "rating.deleted | user_id=2")
}

func TestHandleRejectsBadPayload(t *testing.T) {
	c := &Consumer{LogPath: filepath.Join(t.TempDir(), "a.log")}
	assert.Error(t, c.Handle([]byte("not json")))
	assert.Error(t, c.Handle([]byte(`{"user_id":1}`)))
}
