package crud

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"basebuzz/domain"
	"basebuzz/errs"
)

// LikeService lets users like and unlike posts. Liking someone else's post notifies them.
type LikeService struct {
	likeValidator
}

type likeValidator struct {
	likeGorm
}

type likeGorm struct {
	db            *gorm.DB
	notifications *NotificationService
}

func NewLikeService(db *gorm.DB, ns *NotificationService) *LikeService {
	return &LikeService{
		likeValidator{
			likeGorm{
				db:            db,
				notifications: ns,
			},
		},
	}
}

var _ domain.LikeService = &LikeService{}

// Create requires an existing post that the user has not liked yet.
func (lv *likeValidator) Create(ctx context.Context, like *domain.Like) error {
	err := runLikeValFns(like,
		lv.userIdValid,
		lv.likedPostExists(ctx),
		lv.notAlreadyLiked(ctx))
	if err != nil {
		return err
	}
	return lv.likeGorm.Create(ctx, like)
}

func (lv *likeValidator) Delete(ctx context.Context, like *domain.Like) error {
	err := runLikeValFns(like, lv.likeExists(ctx))
	if err != nil {
		return err
	}
	return lv.likeGorm.Delete(ctx, like)
}

// runLikeValFns stops at the first failing check.
func runLikeValFns(like *domain.Like, fns ...likeValFn) error {
	for _, fn := range fns {
		if err := fn(like); err != nil {
			return err
		}
	}
	return nil
}

type likeValFn func(like *domain.Like) error

func (lv *likeValidator) likeExists(ctx context.Context) likeValFn {
	return func(like *domain.Like) error {
		err := lv.db.WithContext(ctx).
			Where("user_id = ? AND post_id = ?", like.UserID, like.PostID).
			First(like).Error
		return notFound(err, "You cannot unlike a post you have not liked.")
	}
}

// likedPostExists makes sure that the post to be liked actually exists.
func (lv *likeValidator) likedPostExists(ctx context.Context) likeValFn {
	return func(like *domain.Like) error {
		var post domain.Post
		err := lv.db.WithContext(ctx).First(&post, "id = ?", like.PostID).Error
		if err != nil {
			return notFound(err, "The liked post does not exist.")
		}
		like.Post = &post
		return nil
	}
}

// notAlreadyLiked makes sure that the user doesn't already like the post.
func (lv *likeValidator) notAlreadyLiked(ctx context.Context) likeValFn {
	return func(like *domain.Like) error {
		var count int64
		err := lv.db.WithContext(ctx).Model(&domain.Like{}).
			Where("user_id = ? AND post_id = ?", like.UserID, like.PostID).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return errs.Errorf(errs.EINVALID, "You already like that post.")
		}
		return nil
	}
}

// userIdValid ensures that the userId is not empty.
func (lv *likeValidator) userIdValid(like *domain.Like) error {
	if like.UserID <= 0 {
		return errs.UserIdValid
	}
	return nil
}

// Create stores the data from the Like object in a new database record
// and notifies the author of the liked post.
func (lg *likeGorm) Create(ctx context.Context, like *domain.Like) error {
	err := lg.db.WithContext(ctx).Omit("Post").Create(like).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errs.Errorf(errs.EINVALID, "You already like that post.")
	}
	if err != nil {
		return err
	}
	if like.Post != nil {
		postID := like.PostID
		notify(ctx, lg.notifications, &domain.Notification{
			RecipientID: like.Post.UserID,
			ActorID:     like.UserID,
			Type:        domain.NotificationLike,
			PostID:      &postID,
		})
	}
	return nil
}

// Delete permanently deletes the database record matching the data from the Like object.
func (lg *likeGorm) Delete(ctx context.Context, like *domain.Like) error {
	return lg.db.WithContext(ctx).Delete(like).Error
}
