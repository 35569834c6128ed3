package crud

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basebuzz/domain"
	"basebuzz/errs"
)

func TestLikeAndUnlike(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	ada := createUser(t, s, 1)
	bob := createUser(t, s, 2)
	p := createPost(t, s, ada.ID, "like me")

	like := &domain.Like{UserID: bob.ID, PostID: p.ID}
	require.NoError(t, s.Like.Create(ctx, like))
	assert.NotZero(t, like.ID)

	err := s.Like.Create(ctx, &domain.Like{UserID: bob.ID, PostID: p.ID})
	assert.Equal(t, errs.EINVALID, errs.ErrorCode(err))

	err = s.Like.Create(ctx, &domain.Like{UserID: bob.ID, PostID: 999})
	assert.Equal(t, errs.ENOTFOUND, errs.ErrorCode(err))

	err = s.Like.Create(ctx, &domain.Like{PostID: p.ID})
	assert.Equal(t, errs.EINVALID, errs.ErrorCode(err))

	// Liking one's own post does not notify.
	require.NoError(t, s.Like.Create(ctx, &domain.Like{UserID: ada.ID, PostID: p.ID}))
	notifications, err := s.Notification.ByRecipient(ctx, ada.ID, domain.Page{})
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, domain.NotificationLike, notifications[0].Type)
	require.NotNil(t, notifications[0].PostID)
	assert.Equal(t, p.ID, *notifications[0].PostID)

	require.NoError(t, s.Like.Delete(ctx, &domain.Like{UserID: bob.ID, PostID: p.ID}))
	err = s.Like.Delete(ctx, &domain.Like{UserID: bob.ID, PostID: p.ID})
	assert.Equal(t, errs.ENOTFOUND, errs.ErrorCode(err))
}
