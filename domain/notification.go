package domain

import (
	"context"
	"time"
)

// Notification types.
const (
	NotificationLike   = "like"
	NotificationReply  = "reply"
	NotificationRepost = "repost"
	NotificationFollow = "follow"
)

// Notification tells a user that another user interacted with them or one of their posts.
type Notification struct {
	ID          int    `json:"id"`
	RecipientID int    `json:"recipient_id" gorm:"notNull;index"`
	ActorID     int    `json:"actor_id" gorm:"notNull"`
	Actor       *User  `json:"actor,omitempty"`
	Type        string `json:"type" gorm:"notNull;size:20"`
	PostID      *int   `json:"post_id"`
	Read        bool   `json:"read" gorm:"column:is_read;notNull;default:false;index"`

	CreatedAt time.Time `json:"created_at"`
}

// NotificationService is a set of methods to manipulate and work with the Notification model.
type NotificationService interface {
	Notify(ctx context.Context, n *Notification) error
	ByRecipient(ctx context.Context, recipientID int, page Page) ([]Notification, error)
	CountUnread(ctx context.Context, recipientID int) (int, error)
	MarkRead(ctx context.Context, recipientID int, ids []int) error
}
