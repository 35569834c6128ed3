package domain

import (
	"context"
	"time"
)

// Follow represents a self-referential many-to-many relationship between two users.
// The FollowerID is the ID of the user that follows, and the FollowedID is the ID of the
// user that is being followed.
type Follow struct {
	ID         int   `json:"id"`
	FollowerID int   `json:"follower_id" gorm:"notNull;uniqueIndex:idx_follow_pair"`
	Follower   *User `json:"follower,omitempty"`
	FollowedID int   `json:"followed_id" gorm:"notNull;uniqueIndex:idx_follow_pair;index"`
	Followed   *User `json:"followed,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// FollowService is a set of methods to manipulate and work with the Follow model.
type FollowService interface {
	Create(ctx context.Context, follow *Follow) error
	Delete(ctx context.Context, follow *Follow) error
	Followers(ctx context.Context, userID int, page Page) ([]User, error)
	Following(ctx context.Context, userID int, page Page) ([]User, error)
	CountFollowers(ctx context.Context, userID int) (int, error)
	CountFollowing(ctx context.Context, userID int) (int, error)
	Follows(ctx context.Context, followerID, followedID int) (bool, error)
}
