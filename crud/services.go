package crud

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"basebuzz/cache"
	"basebuzz/domain"
	"basebuzz/errs"
	"basebuzz/logger"
	"basebuzz/storage"
)

const (
	// DefaultPageLimit is used when a list request does not ask for a limit.
	DefaultPageLimit = 20
	// MaxPageLimit caps the limit of every list request.
	MaxPageLimit = 50
)

// A ServicesConfig builds one service into a Services. main.go picks the
// services it needs by passing the matching With* options.
type ServicesConfig func(*Services) error

// Services holds the crud services. They share one database connection.
type Services struct {
	db           *gorm.DB
	User         *UserService
	Post         *PostService
	Follow       *FollowService
	Like         *LikeService
	Notification *NotificationService
	Listing      *ListingService
	Image        *ImageService
}

// NewServices applies cfgs in order.
// WithNotification has to come before the services that notify.
func NewServices(db *gorm.DB, cfgs ...ServicesConfig) (*Services, error) {
	s := Services{
		db: db,
	}
	for _, cfg := range cfgs {
		if err := cfg(&s); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// models lists every table, in creation order.
func models() []interface{} {
	return []interface{}{
		&domain.User{},
		&domain.Post{},
		&domain.Follow{},
		&domain.Like{},
		&domain.Notification{},
		&domain.Listing{},
	}
}

// AutoMigrate creates or updates every table.
func (s *Services) AutoMigrate() error {
	if err := s.db.AutoMigrate(models()...); err != nil {
		return fmt.Errorf("err migrating: %w", err)
	}
	return nil
}

// DestructiveReset drops every table and migrates again. Tests only.
func (s *Services) DestructiveReset() error {
	if err := s.db.Migrator().DropTable(models()...); err != nil {
		return err
	}
	return s.AutoMigrate()
}

// WithUser adds the UserService.
func WithUser() ServicesConfig {
	return func(s *Services) error {
		s.User = NewUserService(s.db)
		return nil
	}
}

// WithNotification adds the NotificationService.
func WithNotification() ServicesConfig {
	return func(s *Services) error {
		s.Notification = NewNotificationService(s.db)
		return nil
	}
}

// WithPost adds the PostService. It notifies through the NotificationService.
func WithPost() ServicesConfig {
	return func(s *Services) error {
		s.Post = NewPostService(s.db, s.Notification)
		return nil
	}
}

// WithFollow adds the FollowService with a follower count cache.
// counts may be nil, follower counts are then always read from the database.
func WithFollow(counts cache.FollowerCounts) ServicesConfig {
	return func(s *Services) error {
		s.Follow = NewFollowService(s.db, counts, s.Notification)
		return nil
	}
}

func WithLike() ServicesConfig {
	return func(s *Services) error {
		s.Like = NewLikeService(s.db, s.Notification)
		return nil
	}
}

func WithListing() ServicesConfig {
	return func(s *Services) error {
		s.Listing = NewListingService(s.db)
		return nil
	}
}

// WithImage adds the ImageService on top of store.
func WithImage(store storage.Storage) ServicesConfig {
	return func(s *Services) error {
		if store == nil {
			return fmt.Errorf("image service requires a storage")
		}
		s.Image = NewImageService(store)
		return nil
	}
}

// paginate applies page to a query, newest first defaults included.
func paginate(page domain.Page) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		limit := page.Limit
		if limit <= 0 {
			limit = DefaultPageLimit
		}
		if limit > MaxPageLimit {
			limit = MaxPageLimit
		}
		offset := page.Offset
		if offset < 0 {
			offset = 0
		}
		return db.Offset(offset).Limit(limit)
	}
}

// notFound turns gorm.ErrRecordNotFound into an ENOTFOUND error carrying msg.
// Other errors are returned as they are.
func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.Errorf(errs.ENOTFOUND, msg)
	}
	return err
}

// notify creates n unless the actor is the recipient or no notifier is set.
// A failed notification is logged and does not fail the action that caused it.
func notify(ctx context.Context, ns *NotificationService, n *domain.Notification) {
	if ns == nil || n.ActorID == n.RecipientID {
		return
	}
	if err := ns.Notify(ctx, n); err != nil {
		lg := logger.Ctx(ctx)
		lg.Warn().Err(err).Str("type", n.Type).Int("recipient_id", n.RecipientID).Msg("err creating notification")
	}
}
