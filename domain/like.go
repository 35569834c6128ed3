package domain

import (
	"context"
	"time"
)

// Like represents a many-to-many relationship between a User and a Post.
// A Like is created when a user likes a post. It's destroyed when the user
// unlikes the post again, or when the post gets deleted.
type Like struct {
	ID     int   `json:"id"`
	UserID int   `json:"user_id" gorm:"notNull;uniqueIndex:idx_like_user_post"`
	PostID int   `json:"post_id" gorm:"notNull;uniqueIndex:idx_like_user_post;index"`
	Post   *Post `json:"post,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// LikeService is a set of methods to manipulate and work with the Like model.
type LikeService interface {
	Create(ctx context.Context, like *Like) error
	Delete(ctx context.Context, like *Like) error
}
