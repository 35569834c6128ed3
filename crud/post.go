package crud

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"basebuzz/domain"
	"basebuzz/errs"
)

// PostService manages posts, replies and reposts.
type PostService struct {
	postValidator
}

// postValidator normalizes and checks post input before it reaches postGorm.
type postValidator struct {
	postGorm
}

type postGorm struct {
	db            *gorm.DB
	notifications *NotificationService
}

// NewPostService returns an instance of PostService.
func NewPostService(db *gorm.DB, ns *NotificationService) *PostService {
	return &PostService{
		postValidator{
			postGorm{
				db:            db,
				notifications: ns,
			},
		},
	}
}

var _ domain.PostService = &PostService{}

// Create runs validations needed for creating new Post database records.
// Reposts are created through Repost.
func (pv *postValidator) Create(ctx context.Context, post *domain.Post) error {
	post.RepostOfID = nil
	err := runPostValFns(post,
		pv.userIdValid,
		pv.contentNormalize,
		pv.contentMinLength,
		pv.contentMaxLength,
		pv.replyToExists(ctx))
	if err != nil {
		return err
	}
	return pv.postGorm.Create(ctx, post)
}

// Delete runs validations needed for deleting existing Post database records.
func (pv *postValidator) Delete(ctx context.Context, post *domain.Post) error {
	if err := runPostValFns(post, pv.idValid); err != nil {
		return err
	}
	return pv.postGorm.Delete(ctx, post)
}

// Repost reposts postID for userID. Reposting a repost reposts its original,
// and each user can repost a post once.
func (pv *postValidator) Repost(ctx context.Context, userID, postID int) (*domain.Post, error) {
	if userID <= 0 {
		return nil, errs.UserIdValid
	}
	original, err := pv.original(ctx, postID)
	if err != nil {
		return nil, err
	}
	if _, err := pv.repostBy(ctx, userID, original.ID); err == nil {
		return nil, errs.Errorf(errs.EINVALID, "You already reposted that post.")
	} else if errs.ErrorCode(err) != errs.ENOTFOUND {
		return nil, err
	}
	if repost, err := pv.restoreRepost(ctx, userID, original.ID); err != nil || repost != nil {
		return repost, err
	}
	repost := &domain.Post{UserID: userID, RepostOfID: &original.ID}
	err = pv.postGorm.Create(ctx, repost)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost a race against a concurrent repost of the same user.
		return nil, errs.Errorf(errs.EINVALID, "You already reposted that post.")
	}
	if err != nil {
		return nil, err
	}
	return repost, nil
}

// Unrepost deletes the user's repost of postID, or of postID's original if it is a repost itself.
func (pv *postValidator) Unrepost(ctx context.Context, userID, postID int) error {
	var post domain.Post
	err := pv.db.WithContext(ctx).Unscoped().First(&post, "id = ?", postID).Error
	if err != nil {
		return notFound(err, "The post does not exist.")
	}
	originalID := post.ID
	if post.RepostOfID != nil {
		originalID = *post.RepostOfID
	}
	repost, err := pv.repostBy(ctx, userID, originalID)
	if err != nil {
		if errs.ErrorCode(err) == errs.ENOTFOUND {
			return errs.Errorf(errs.ENOTFOUND, "You have not reposted that post.")
		}
		return err
	}
	return pv.postGorm.Delete(ctx, repost)
}

// ByUserTab validates the tab before listing a user's posts.
func (pv *postValidator) ByUserTab(ctx context.Context, userID int, tab string, page domain.Page) ([]domain.Post, error) {
	switch tab {
	case "":
		tab = domain.TabPosts
	case domain.TabPosts, domain.TabReplies, domain.TabMedia, domain.TabLikes:
	default:
		return nil, errs.Errorf(errs.EINVALID, "Unknown tab %q.", tab)
	}
	return pv.postGorm.ByUserTab(ctx, userID, tab, page)
}

// SetImageCount makes sure a post never has more than PostMaxImages images.
func (pv *postValidator) SetImageCount(ctx context.Context, post *domain.Post, n int) error {
	if n < 0 || n > domain.PostMaxImages {
		return errs.Errorf(errs.EINVALID, "A post can have up to %d images.", domain.PostMaxImages)
	}
	return pv.postGorm.SetImageCount(ctx, post, n)
}

// runPostValFns runs any number of functions of type postValFn on the passed in Post object.
// If none of them returns an error, it returns nil. Otherwise, it returns the respective error.
func runPostValFns(post *domain.Post, fns ...postValFn) error {
	for _, fn := range fns {
		if err := fn(post); err != nil {
			return err
		}
	}
	return nil
}

// A postValFn is any function that takes in a pointer to a domain.Post object and returns an error.
type postValFn = func(post *domain.Post) error

func (pv *postValidator) contentNormalize(post *domain.Post) error {
	post.Content = strings.TrimSpace(post.Content)
	return nil
}

// contentMinLength makes sure that the Post's content is not empty.
func (pv *postValidator) contentMinLength(post *domain.Post) error {
	if post.Content == "" {
		return errs.Errorf(errs.EINVALID, "Post content must not be empty.")
	}
	return nil
}

// contentMaxLength makes sure that the Post's content does not exceed the maximum content length.
func (pv *postValidator) contentMaxLength(post *domain.Post) error {
	if utf8.RuneCountInString(post.Content) > domain.PostMaxLength {
		return errs.Errorf(errs.EINVALID, "Post content max length is 280 characters.")
	}
	return nil
}

// idValid makes sure that the passed in ID of a Post to be deleted is greater than 0.
func (pv *postValidator) idValid(post *domain.Post) error {
	if post.ID <= 0 {
		return errs.IdInvalid
	}
	return nil
}

// replyToExists makes sure that the Post to be replied to actually exists.
// A reply to a repost becomes a reply to the reposted post.
func (pv *postValidator) replyToExists(ctx context.Context) postValFn {
	return func(post *domain.Post) error {
		if post.ReplyToID == nil {
			return nil
		}
		parent, err := pv.original(ctx, *post.ReplyToID)
		if err != nil {
			if errs.ErrorCode(err) == errs.ENOTFOUND {
				return errs.Errorf(errs.ENOTFOUND, "The post replied to does not exist.")
			}
			return err
		}
		post.ReplyToID = &parent.ID
		post.ReplyTo = parent
		return nil
	}
}

// userIdValid ensures that the userId is not empty.
func (pv *postValidator) userIdValid(post *domain.Post) error {
	if post.UserID <= 0 {
		return errs.UserIdValid
	}
	return nil
}

// original returns the post with the given id, or the post it reposts.
func (pg *postGorm) original(ctx context.Context, id int) (*domain.Post, error) {
	var post domain.Post
	if err := pg.db.WithContext(ctx).First(&post, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "The post does not exist.")
	}
	if post.RepostOfID == nil {
		return &post, nil
	}
	var original domain.Post
	if err := pg.db.WithContext(ctx).First(&original, "id = ?", *post.RepostOfID).Error; err != nil {
		return nil, notFound(err, "The post does not exist.")
	}
	return &original, nil
}

func (pg *postGorm) repostBy(ctx context.Context, userID, originalID int) (*domain.Post, error) {
	var repost domain.Post
	err := pg.db.WithContext(ctx).
		Where("user_id = ? AND repost_of_id = ?", userID, originalID).
		First(&repost).Error
	if err != nil {
		return nil, notFound(err, "The repost does not exist.")
	}
	return &repost, nil
}

// withRelations preloads what every listed post carries: its author, the post it replies
// to and the post it reposts, each with their authors.
func withRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("User").
		Preload("ReplyTo.User").
		Preload("RepostOf.User").
		Preload("RepostOf.ReplyTo.User")
}

// ByID retrieves a single Post by ID, along with its replies, oldest first.
// If the record doesn't exist, it returns errs.ENOTFOUND.
func (pg *postGorm) ByID(ctx context.Context, id int) (*domain.Post, error) {
	var post domain.Post
	err := pg.db.WithContext(ctx).
		Scopes(withRelations).
		Preload("Replies", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at asc, id asc")
		}).
		Preload("Replies.User").
		First(&post, "id = ?", id).
		Error
	if err != nil {
		return nil, notFound(err, "The post does not exist.")
	}
	return &post, nil
}

// Feed lists all posts, newest first.
func (pg *postGorm) Feed(ctx context.Context, page domain.Page) ([]domain.Post, error) {
	posts := []domain.Post{}
	err := pg.db.WithContext(ctx).
		Scopes(withRelations, paginate(page)).
		Order("created_at desc, id desc").
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// FollowingFeed lists the posts of the users userID follows, and the user's own, newest first.
func (pg *postGorm) FollowingFeed(ctx context.Context, userID int, page domain.Page) ([]domain.Post, error) {
	db := pg.db.WithContext(ctx)
	followed := db.Model(&domain.Follow{}).Select("followed_id").Where("follower_id = ?", userID)
	posts := []domain.Post{}
	err := db.
		Scopes(withRelations, paginate(page)).
		Where("user_id IN (?) OR user_id = ?", followed, userID).
		Order("created_at desc, id desc").
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// ByUserTab lists the posts shown on one tab of a user's profile, newest first.
// The likes tab is ordered by when the user liked the post.
func (pg *postGorm) ByUserTab(ctx context.Context, userID int, tab string, page domain.Page) ([]domain.Post, error) {
	q := pg.db.WithContext(ctx).Scopes(withRelations, paginate(page))
	switch tab {
	case domain.TabReplies:
		q = q.Where("user_id = ? AND reply_to_id IS NOT NULL", userID).Order("created_at desc, id desc")
	case domain.TabMedia:
		q = q.Where("user_id = ? AND image_count > 0", userID).Order("created_at desc, id desc")
	case domain.TabLikes:
		q = q.Select("posts.*").
			Joins("JOIN likes ON likes.post_id = posts.id").
			Where("likes.user_id = ?", userID).
			Order("likes.created_at desc, likes.id desc")
	default:
		q = q.Where("user_id = ? AND reply_to_id IS NULL", userID).Order("created_at desc, id desc")
	}
	posts := []domain.Post{}
	if err := q.Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// Create stores the data from the Post object in a new database record and
// notifies the author of the post replied to or reposted.
func (pg *postGorm) Create(ctx context.Context, post *domain.Post) error {
	db := pg.db.WithContext(ctx)
	if err := db.Omit("User", "ReplyTo", "RepostOf", "Replies", "Reposts", "Likes").Create(post).Error; err != nil {
		return err
	}
	if err := db.Scopes(withRelations).First(post, "id = ?", post.ID).Error; err != nil {
		return err
	}
	pg.notifyAuthor(ctx, post)
	return nil
}

// notifyAuthor notifies the author of the post replied to or reposted.
func (pg *postGorm) notifyAuthor(ctx context.Context, post *domain.Post) {
	postID := post.ID
	switch {
	case post.ReplyTo != nil:
		notify(ctx, pg.notifications, &domain.Notification{
			RecipientID: post.ReplyTo.UserID,
			ActorID:     post.UserID,
			Type:        domain.NotificationReply,
			PostID:      &postID,
		})
	case post.RepostOf != nil:
		originalID := post.RepostOf.ID
		notify(ctx, pg.notifications, &domain.Notification{
			RecipientID: post.RepostOf.UserID,
			ActorID:     post.UserID,
			Type:        domain.NotificationRepost,
			PostID:      &originalID,
		})
	}
}

// Delete soft-deletes a Post record from the database, along with its direct
// replies and reposts (not cascading further), and removes its likes.
func (pg *postGorm) Delete(ctx context.Context, post *domain.Post) error {
	return pg.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("reply_to_id = ? OR repost_of_id = ?", post.ID, post.ID).Delete(&domain.Post{}).Error
		if err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&domain.Like{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.Post{}, post.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.Errorf(errs.ENOTFOUND, "The post does not exist.")
		}
		return nil
	})
}

// restoreRepost brings back the user's soft-deleted repost of originalID, since
// idx_post_user_repost keeps its row. It returns nil if there is none to restore.
func (pg *postGorm) restoreRepost(ctx context.Context, userID, originalID int) (*domain.Post, error) {
	db := pg.db.WithContext(ctx)
	now := db.NowFunc()
	res := db.Unscoped().Model(&domain.Post{}).
		Where("user_id = ? AND repost_of_id = ? AND deleted_at IS NOT NULL", userID, originalID).
		Updates(map[string]interface{}{"deleted_at": nil, "created_at": now, "updated_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	repost, err := pg.repostBy(ctx, userID, originalID)
	if err != nil {
		return nil, err
	}
	if err := db.Scopes(withRelations).First(repost, "id = ?", repost.ID).Error; err != nil {
		return nil, err
	}
	pg.notifyAuthor(ctx, repost)
	return repost, nil
}

func (pg *postGorm) SetImageCount(ctx context.Context, post *domain.Post, n int) error {
	err := pg.db.WithContext(ctx).Model(&domain.Post{}).Where("id = ?", post.ID).Update("image_count", n).Error
	if err != nil {
		return err
	}
	post.ImageCount = n
	return nil
}

// idCount is one row of a grouped count.
type idCount struct {
	ID int
	N  int
}

// SetCounts fills in the like, repost and reply counts of posts and of the posts they
// repost, plus whether authUserID liked or reposted them. It runs a fixed number of
// queries however many posts there are.
func (pg *postGorm) SetCounts(ctx context.Context, posts []*domain.Post, authUserID int) error {
	byID := make(map[int][]*domain.Post)
	for _, p := range posts {
		if p == nil {
			continue
		}
		byID[p.ID] = append(byID[p.ID], p)
		if p.RepostOf != nil {
			byID[p.RepostOf.ID] = append(byID[p.RepostOf.ID], p.RepostOf)
		}
	}
	if len(byID) == 0 {
		return nil
	}
	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	db := pg.db.WithContext(ctx)
	counts := []struct {
		model  interface{}
		column string
		set    func(p *domain.Post, n int)
	}{
		{&domain.Like{}, "post_id", func(p *domain.Post, n int) { p.LikeCount = n }},
		{&domain.Post{}, "repost_of_id", func(p *domain.Post, n int) { p.RepostCount = n }},
		{&domain.Post{}, "reply_to_id", func(p *domain.Post, n int) { p.ReplyCount = n }},
	}
	for _, c := range counts {
		var rows []idCount
		err := db.Model(c.model).
			Select(c.column+" AS id, COUNT(*) AS n").
			Where(c.column+" IN ?", ids).
			Group(c.column).
			Scan(&rows).Error
		if err != nil {
			return err
		}
		for _, row := range rows {
			for _, p := range byID[row.ID] {
				c.set(p, row.N)
			}
		}
	}

	if authUserID <= 0 {
		return nil
	}
	var liked []int
	err := db.Model(&domain.Like{}).
		Where("user_id = ? AND post_id IN ?", authUserID, ids).
		Pluck("post_id", &liked).Error
	if err != nil {
		return err
	}
	for _, id := range liked {
		for _, p := range byID[id] {
			p.AuthLiked = true
		}
	}
	var reposted []int
	err = db.Model(&domain.Post{}).
		Where("user_id = ? AND repost_of_id IN ?", authUserID, ids).
		Pluck("repost_of_id", &reposted).Error
	if err != nil {
		return err
	}
	for _, id := range reposted {
		for _, p := range byID[id] {
			p.AuthReposted = true
		}
	}
	return nil
}
