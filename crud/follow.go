package crud

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"basebuzz/cache"
	"basebuzz/domain"
	"basebuzz/errs"
	"basebuzz/logger"
)

// FollowService manages Follows. Follower counts go through a cache when one is configured.
// It implements the domain.FollowService interface.
type FollowService struct {
	followValidator
}

type followValidator struct {
	followGorm
}

type followGorm struct {
	db            *gorm.DB
	counts        cache.FollowerCounts
	notifications *NotificationService
}

// NewFollowService returns an instance of FollowService. A nil counts disables caching.
func NewFollowService(db *gorm.DB, counts cache.FollowerCounts, ns *NotificationService) *FollowService {
	if counts == nil {
		counts = cache.NoopFollowerCounts{}
	}
	return &FollowService{
		followValidator{
			followGorm{
				db:            db,
				counts:        counts,
				notifications: ns,
			},
		},
	}
}

var _ domain.FollowService = &FollowService{}

func (fv *followValidator) Create(ctx context.Context, follow *domain.Follow) error {
	err := runFollowValFns(follow,
		fv.followerIdValid,
		fv.followedIsNotFollower,
		fv.followedUserExists(ctx),
		fv.notAlreadyFollowed(ctx))
	if err != nil {
		return err
	}
	return fv.followGorm.Create(ctx, follow)
}

func (fv *followValidator) Delete(ctx context.Context, follow *domain.Follow) error {
	err := runFollowValFns(follow, fv.followExists(ctx))
	if err != nil {
		return err
	}
	return fv.followGorm.Delete(ctx, follow)
}

func runFollowValFns(follow *domain.Follow, fns ...followValFn) error {
	for _, fn := range fns {
		if err := fn(follow); err != nil {
			return err
		}
	}
	return nil
}

type followValFn func(follow *domain.Follow) error

func (fv *followValidator) followerIdValid(follow *domain.Follow) error {
	if follow.FollowerID <= 0 {
		return errs.UserIdValid
	}
	return nil
}

func (fv *followValidator) followExists(ctx context.Context) followValFn {
	return func(follow *domain.Follow) error {
		err := fv.db.WithContext(ctx).
			Where("follower_id = ? AND followed_id = ?", follow.FollowerID, follow.FollowedID).
			First(follow).Error
		return notFound(err, "You don't follow this user.")
	}
}

func (fv *followValidator) followedIsNotFollower(follow *domain.Follow) error {
	if follow.FollowerID == follow.FollowedID {
		return errs.Errorf(errs.EINVALID, "You cannot follow yourself.")
	}
	return nil
}

func (fv *followValidator) followedUserExists(ctx context.Context) followValFn {
	return func(follow *domain.Follow) error {
		err := fv.db.WithContext(ctx).First(&domain.User{}, "id = ?", follow.FollowedID).Error
		return notFound(err, "The user to be followed does not exist.")
	}
}

func (fv *followValidator) notAlreadyFollowed(ctx context.Context) followValFn {
	return func(follow *domain.Follow) error {
		followed, err := fv.Follows(ctx, follow.FollowerID, follow.FollowedID)
		if err != nil {
			return err
		}
		if followed {
			return errs.Errorf(errs.EINVALID, "You already follow this user.")
		}
		return nil
	}
}

func (fg *followGorm) Create(ctx context.Context, follow *domain.Follow) error {
	err := fg.db.WithContext(ctx).Create(follow).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errs.Errorf(errs.EINVALID, "You already follow this user.")
	}
	if err != nil {
		return err
	}
	if err := fg.counts.Incr(ctx, follow.FollowedID); err != nil {
		lg := logger.Ctx(ctx)
		lg.Warn().Err(err).Int(logger.FieldUserID, follow.FollowedID).Msg("err incrementing follower count")
	}
	notify(ctx, fg.notifications, &domain.Notification{
		RecipientID: follow.FollowedID,
		ActorID:     follow.FollowerID,
		Type:        domain.NotificationFollow,
	})
	return nil
}

func (fg *followGorm) Delete(ctx context.Context, follow *domain.Follow) error {
	if err := fg.db.WithContext(ctx).Delete(follow).Error; err != nil {
		return err
	}
	if err := fg.counts.Decr(ctx, follow.FollowedID); err != nil {
		lg := logger.Ctx(ctx)
		lg.Warn().Err(err).Int(logger.FieldUserID, follow.FollowedID).Msg("err decrementing follower count")
	}
	return nil
}

// Followers lists the users following userID, most recent follow first.
func (fg *followGorm) Followers(ctx context.Context, userID int, page domain.Page) ([]domain.User, error) {
	users := []domain.User{}
	err := fg.db.WithContext(ctx).
		Select("users.*").
		Joins("JOIN follows ON follows.follower_id = users.id").
		Where("follows.followed_id = ?", userID).
		Order("follows.created_at desc, follows.id desc").
		Scopes(paginate(page)).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Following lists the users userID follows, most recent follow first.
func (fg *followGorm) Following(ctx context.Context, userID int, page domain.Page) ([]domain.User, error) {
	users := []domain.User{}
	err := fg.db.WithContext(ctx).
		Select("users.*").
		Joins("JOIN follows ON follows.followed_id = users.id").
		Where("follows.follower_id = ?", userID).
		Order("follows.created_at desc, follows.id desc").
		Scopes(paginate(page)).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// CountFollowers reads the follower count from the cache, falling back to the database
// and filling the cache on a miss.
func (fg *followGorm) CountFollowers(ctx context.Context, userID int) (int, error) {
	l := logger.Ctx(ctx)
	n, found, err := fg.counts.Get(ctx, userID)
	if err != nil {
		l.Warn().Err(err).Int(logger.FieldUserID, userID).Msg("err reading follower count")
	} else if found {
		return n, nil
	}
	n, err = fg.count(ctx, "followed_id = ?", userID)
	if err != nil {
		return 0, err
	}
	if err := fg.counts.Set(ctx, userID, n); err != nil {
		l.Warn().Err(err).Int(logger.FieldUserID, userID).Msg("err caching follower count")
	}
	return n, nil
}

func (fg *followGorm) CountFollowing(ctx context.Context, userID int) (int, error) {
	return fg.count(ctx, "follower_id = ?", userID)
}

func (fg *followGorm) Follows(ctx context.Context, followerID, followedID int) (bool, error) {
	n, err := fg.count(ctx, "follower_id = ? AND followed_id = ?", followerID, followedID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (fg *followGorm) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	var count int64
	err := fg.db.WithContext(ctx).Model(&domain.Follow{}).Where(query, args...).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
