package crud

import (
	"context"

	"gorm.io/gorm"

	"basebuzz/domain"
	"basebuzz/errs"
)

// NotificationService manages Notifications.
// It implements the domain.NotificationService interface.
type NotificationService struct {
	notificationValidator
}

type notificationValidator struct {
	notificationGorm
}

type notificationGorm struct {
	db *gorm.DB
}

// NewNotificationService returns an instance of NotificationService.
func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{
		notificationValidator{
			notificationGorm{
				db: db,
			},
		},
	}
}

var _ domain.NotificationService = &NotificationService{}

// Notify validates and stores a notification.
func (nv *notificationValidator) Notify(ctx context.Context, n *domain.Notification) error {
	if n.RecipientID <= 0 || n.ActorID <= 0 {
		return errs.UserIdValid
	}
	switch n.Type {
	case domain.NotificationLike, domain.NotificationReply, domain.NotificationRepost:
		if n.PostID == nil {
			return errs.Errorf(errs.EINVALID, "A %s notification needs a post.", n.Type)
		}
	case domain.NotificationFollow:
	default:
		return errs.Errorf(errs.EINVALID, "Unknown notification type %q.", n.Type)
	}
	return nv.notificationGorm.Notify(ctx, n)
}

func (ng *notificationGorm) Notify(ctx context.Context, n *domain.Notification) error {
	return ng.db.WithContext(ctx).Create(n).Error
}

// ByRecipient lists the notifications of a user, newest first, with their actors.
func (ng *notificationGorm) ByRecipient(ctx context.Context, recipientID int, page domain.Page) ([]domain.Notification, error) {
	notifications := []domain.Notification{}
	err := ng.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Preload("Actor").
		Order("created_at desc, id desc").
		Scopes(paginate(page)).
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (ng *notificationGorm) CountUnread(ctx context.Context, recipientID int) (int, error) {
	var count int64
	err := ng.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// MarkRead marks the given notifications of the recipient read, or all of them if ids is empty.
func (ng *notificationGorm) MarkRead(ctx context.Context, recipientID int, ids []int) error {
	q := ng.db.WithContext(ctx).Model(&domain.Notification{}).Where("recipient_id = ?", recipientID)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	return q.Update("is_read", true).Error
}
