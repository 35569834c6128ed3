package http

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basebuzz/domain"
)

func userPath(id int, suffix string) string {
	return "/api/users/" + strconv.Itoa(id) + suffix
}

func TestFollow(t *testing.T) {
	ts := newTestServer(t, Config{})
	alice, aliceID := ts.login(t)
	bob, bobID := ts.login(t)

	rec := ts.do(t, "POST", userPath(aliceID, "/follow"), nil, bob)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var follow domain.Follow
	decode(t, rec, &follow)
	assert.Equal(t, bobID, follow.FollowerID)
	assert.Equal(t, aliceID, follow.FollowedID)

	t.Run("rejects", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, ts.do(t, "POST", userPath(aliceID, "/follow"), nil, bob).Code)
		assert.Equal(t, http.StatusBadRequest, ts.do(t, "POST", userPath(aliceID, "/follow"), nil, alice).Code)
		assert.Equal(t, http.StatusNotFound, ts.do(t, "POST", userPath(999, "/follow"), nil, bob).Code)
	})

	rec = ts.do(t, "GET", userPath(aliceID, "/followers"), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var users []domain.User
	decode(t, rec, &users)
	require.Len(t, users, 1)
	assert.Equal(t, bobID, users[0].ID)

	rec = ts.do(t, "GET", userPath(bobID, "/following"), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &users)
	require.Len(t, users, 1)
	assert.Equal(t, aliceID, users[0].ID)

	rec = ts.do(t, "GET", "/api/user", nil, bob)
	var me domain.User
	decode(t, rec, &me)
	assert.Equal(t, 1, me.FollowingCount)

	rec = ts.do(t, "DELETE", userPath(aliceID, "/follow"), nil, bob)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, "DELETE", userPath(aliceID, "/follow"), nil, bob)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, "GET", userPath(aliceID, "/followers"), nil, "")
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.Equal(t, http.StatusNotFound, ts.do(t, "GET", userPath(999, "/followers"), nil, "").Code)
}

func TestNotifications(t *testing.T) {
	ts := newTestServer(t, Config{})
	author, authorID := ts.login(t)
	fan, fanID := ts.login(t)
	post := createTestPost(t, ts, author, "notify me")

	require.Equal(t, http.StatusCreated, ts.do(t, "POST", postPath(post.ID, "/like"), nil, fan).Code)
	require.Equal(t, http.StatusCreated, ts.do(t, "POST", postPath(post.ID, "/reply"), map[string]string{"content": "hey"}, fan).Code)
	require.Equal(t, http.StatusCreated, ts.do(t, "POST", postPath(post.ID, "/repost"), nil, fan).Code)
	require.Equal(t, http.StatusCreated, ts.do(t, "POST", userPath(authorID, "/follow"), nil, fan).Code)
	// Own actions never notify.
	require.Equal(t, http.StatusCreated, ts.do(t, "POST", postPath(post.ID, "/like"), nil, author).Code)

	rec := ts.do(t, "GET", "/api/notifications/unread", nil, author)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":4}`, rec.Body.String())

	rec = ts.do(t, "GET", "/api/notifications", nil, author)
	require.Equal(t, http.StatusOK, rec.Code)
	var ns []domain.Notification
	decode(t, rec, &ns)
	require.Len(t, ns, 4)
	assert.Equal(t, domain.NotificationFollow, ns[0].Type)
	for _, n := range ns {
		require.NotNil(t, n.Actor)
		assert.Equal(t, fanID, n.Actor.ID)
		assert.False(t, n.Read)
	}

	rec = ts.do(t, "POST", "/api/notifications/read", map[string][]int{"ids": {ns[0].ID}}, author)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, "GET", "/api/notifications/unread", nil, author)
	assert.JSONEq(t, `{"count":3}`, rec.Body.String())

	// An empty body marks all read.
	rec = ts.do(t, "POST", "/api/notifications/read", nil, author)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, "GET", "/api/notifications/unread", nil, author)
	assert.JSONEq(t, `{"count":0}`, rec.Body.String())

	rec = ts.do(t, "GET", "/api/notifications/unread", nil, fan)
	assert.JSONEq(t, `{"count":0}`, rec.Body.String())
}
