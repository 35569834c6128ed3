package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

const (
	// PostMaxLength is the maximum number of runes in a post's content.
	PostMaxLength = 280
	// PostMaxImages is the maximum number of images attached to one post.
	PostMaxImages = 4

	// FeedLatest lists every post, newest first.
	FeedLatest = "latest"
	// FeedFollowing lists the posts of the users the authed user follows, and their own.
	FeedFollowing = "following"

	// TabPosts lists a user's originals and reposts.
	TabPosts = "posts"
	// TabReplies lists a user's replies.
	TabReplies = "replies"
	// TabMedia lists a user's posts that have images.
	TabMedia = "media"
	// TabLikes lists the posts a user liked.
	TabLikes = "likes"
)

// Post is a short message. A post with a ReplyToID is a reply to another post, a post with
// a RepostOfID is a repost of another post and carries no content of its own. A user
// reposts a post at most once, enforced by idx_post_user_repost; reposting again after
// an unrepost restores the soft-deleted row. Deleting a post soft-deletes it together
// with its direct replies and reposts.
type Post struct {
	ID         int     `json:"id"`
	UserID     int     `json:"user_id" gorm:"notNull;index;uniqueIndex:idx_post_user_repost"`
	User       *User   `json:"user,omitempty"`
	Content    string  `json:"content" gorm:"size:1120"`
	ReplyToID  *int    `json:"reply_to_id" gorm:"index"`
	ReplyTo    *Post   `json:"reply_to,omitempty" gorm:"foreignKey:ReplyToID"`
	RepostOfID *int    `json:"repost_of_id" gorm:"index;uniqueIndex:idx_post_user_repost"`
	RepostOf   *Post   `json:"repost_of,omitempty" gorm:"foreignKey:RepostOfID"`
	Replies    []Post  `json:"replies,omitempty" gorm:"foreignKey:ReplyToID"`
	Reposts    []Post  `json:"-" gorm:"foreignKey:RepostOfID"`
	Likes      []Like  `json:"-"`
	ImageCount int     `json:"image_count" gorm:"notNull;default:0"`
	Images     []Image `json:"images,omitempty" gorm:"-"`

	LikeCount    int  `json:"like_count" gorm:"-"`
	RepostCount  int  `json:"repost_count" gorm:"-"`
	ReplyCount   int  `json:"reply_count" gorm:"-"`
	AuthLiked    bool `json:"auth_liked" gorm:"-"`
	AuthReposted bool `json:"auth_reposted" gorm:"-"`

	CreatedAt time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// Page is an offset based window into a list, newest first.
type Page struct {
	Offset int
	Limit  int
}

// PostService is a set of methods to manipulate and work with the Post model.
type PostService interface {
	ByID(ctx context.Context, id int) (*Post, error)
	Create(ctx context.Context, post *Post) error
	Delete(ctx context.Context, post *Post) error
	Repost(ctx context.Context, userID, postID int) (*Post, error)
	Unrepost(ctx context.Context, userID, postID int) error
	Feed(ctx context.Context, page Page) ([]Post, error)
	FollowingFeed(ctx context.Context, userID int, page Page) ([]Post, error)
	ByUserTab(ctx context.Context, userID int, tab string, page Page) ([]Post, error)
	SetImageCount(ctx context.Context, post *Post, n int) error
	SetCounts(ctx context.Context, posts []*Post, authUserID int) error
}
