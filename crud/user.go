package crud

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"basebuzz/auth"
	"basebuzz/domain"
	"basebuzz/errs"
)

const (
	usernameMinLength    = 3
	usernameMaxLength    = 30
	displayNameMaxLength = 50
	bioMaxLength         = 160
	websiteMaxLength     = 100
	searchLimit          = 20
)

// UserService manages Users. Users are created on their first wallet connect,
// which makes ConnectWallet the only way in.
// It implements the domain.UserService interface.
type UserService struct {
	userValidator
}

// userValidator runs validations on incoming User data.
// On success, it passes the data on to userGorm.
// Otherwise, it returns the error of the validation that has failed.
type userValidator struct {
	usernameRegex *regexp.Regexp
	userGorm
}

// userGorm runs CRUD operations on the database using incoming User data.
// It assumes that data has been validated. On success, it returns nil.
// Otherwise, it returns the error of the operation that has failed.
type userGorm struct {
	db *gorm.DB
}

// NewUserService returns an instance of UserService.
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{
		userValidator{
			usernameRegex: regexp.MustCompile(`^[a-z0-9_]+$`),
			userGorm: userGorm{
				db: db,
			},
		},
	}
}

// Ensure the UserService struct properly implements the domain.UserService interface.
// If it does not, then this expression becomes invalid and won't compile.
var _ domain.UserService = &UserService{}

// ByWalletAddress normalizes the address before looking it up.
func (uv *userValidator) ByWalletAddress(ctx context.Context, address string) (*domain.User, error) {
	address, err := auth.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return uv.userGorm.ByWalletAddress(ctx, address)
}

// ByUsername looks a username up case-insensitively.
func (uv *userValidator) ByUsername(ctx context.Context, username string) (*domain.User, error) {
	return uv.userGorm.ByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
}

// ConnectWallet returns the user owning address, creating it on first connect.
func (uv *userValidator) ConnectWallet(ctx context.Context, address string) (*domain.User, error) {
	user := domain.User{WalletAddress: address}
	if err := runUserValFns(&user, uv.walletNormalize); err != nil {
		return nil, err
	}
	return uv.userGorm.ConnectWallet(ctx, &user)
}

// LinkProvider attaches an account of the hosted auth provider to user.
func (uv *userValidator) LinkProvider(ctx context.Context, user *domain.User, providerUserID, email string) error {
	if providerUserID == "" {
		return errs.Errorf(errs.EINVALID, "A provider user ID is required.")
	}
	found, err := uv.userGorm.ByProviderUserID(ctx, providerUserID)
	if err == nil && found.ID != user.ID {
		return errs.Errorf(errs.ECONFLICT, "The provider account is linked to another user.")
	} else if err != nil && errs.ErrorCode(err) != errs.ENOTFOUND {
		return err
	}
	return uv.userGorm.LinkProvider(ctx, user, providerUserID, email)
}

// Update applies upd to user after validating the changed fields.
// On failure user is left as it was.
func (uv *userValidator) Update(ctx context.Context, user *domain.User, upd domain.UserUpdate) error {
	updated := *user
	if upd.Username != nil {
		if *upd.Username == "" {
			updated.Username = nil
		} else {
			username := *upd.Username
			updated.Username = &username
		}
	}
	if upd.DisplayName != nil {
		updated.DisplayName = strings.TrimSpace(*upd.DisplayName)
	}
	if upd.Bio != nil {
		updated.Bio = strings.TrimSpace(*upd.Bio)
	}
	if upd.Website != nil {
		updated.Website = strings.TrimSpace(*upd.Website)
	}
	err := runUserValFns(&updated,
		uv.usernameNormalize,
		uv.usernameFormat,
		uv.usernameIsAvail(ctx),
		uv.displayNameMaxLength,
		uv.bioMaxLength,
		uv.websiteFormat)
	if err != nil {
		return err
	}
	if err := uv.userGorm.Update(ctx, &updated); err != nil {
		return err
	}
	*user = updated
	return nil
}

// SetImage stores the filename of the user's avatar or header image.
// An empty filename removes the image.
func (uv *userValidator) SetImage(ctx context.Context, user *domain.User, imageType, filename string) error {
	if imageType != domain.ImageTypeAvatar && imageType != domain.ImageTypeHeader {
		return errs.Errorf(errs.EINVALID, "Image type must be avatar or header.")
	}
	return uv.userGorm.SetImage(ctx, user, imageType, filename)
}

// runUserValFns runs any number of functions of type userValFn on the passed in User object.
// If none of them returns an error, it returns nil. Otherwise, it returns the respective error.
func runUserValFns(user *domain.User, fns ...userValFn) error {
	for _, fn := range fns {
		if err := fn(user); err != nil {
			return err
		}
	}
	return nil
}

// A userValFn is any function that takes in a pointer to a domain.User object and returns an error.
type userValFn func(user *domain.User) error

// walletNormalize checksums the wallet address.
func (uv *userValidator) walletNormalize(user *domain.User) error {
	address, err := auth.NormalizeAddress(user.WalletAddress)
	if err != nil {
		return err
	}
	user.WalletAddress = address
	return nil
}

// usernameNormalize trims and lowercases the username.
func (uv *userValidator) usernameNormalize(user *domain.User) error {
	if user.Username == nil {
		return nil
	}
	username := strings.ToLower(strings.TrimSpace(*user.Username))
	user.Username = &username
	return nil
}

// usernameFormat makes sure the username is 3 to 30 lower case letters, digits or underscores.
func (uv *userValidator) usernameFormat(user *domain.User) error {
	if user.Username == nil {
		return nil
	}
	n := utf8.RuneCountInString(*user.Username)
	if n < usernameMinLength || n > usernameMaxLength {
		return errs.Errorf(errs.EINVALID, "The username must be between 3 and 30 characters long.")
	}
	if !uv.usernameRegex.MatchString(*user.Username) {
		return errs.Errorf(errs.EINVALID, "The username may only contain letters, numbers and underscores.")
	}
	return nil
}

// usernameIsAvail makes sure that no other user has taken the username.
func (uv *userValidator) usernameIsAvail(ctx context.Context) userValFn {
	return func(user *domain.User) error {
		if user.Username == nil {
			return nil
		}
		found, err := uv.userGorm.ByUsername(ctx, *user.Username)
		if err != nil {
			if errs.ErrorCode(err) == errs.ENOTFOUND {
				return nil
			}
			return err
		}
		if found.ID != user.ID {
			return errs.Errorf(errs.ECONFLICT, "The username is already taken.")
		}
		return nil
	}
}

func (uv *userValidator) displayNameMaxLength(user *domain.User) error {
	if utf8.RuneCountInString(user.DisplayName) > displayNameMaxLength {
		return errs.Errorf(errs.EINVALID, "The display name max length is 50 characters.")
	}
	return nil
}

func (uv *userValidator) bioMaxLength(user *domain.User) error {
	if utf8.RuneCountInString(user.Bio) > bioMaxLength {
		return errs.Errorf(errs.EINVALID, "The bio max length is 160 characters.")
	}
	return nil
}

// websiteFormat makes sure that a website, if given, is an absolute http(s) url.
func (uv *userValidator) websiteFormat(user *domain.User) error {
	if user.Website == "" {
		return nil
	}
	if utf8.RuneCountInString(user.Website) > websiteMaxLength {
		return errs.Errorf(errs.EINVALID, "The website max length is 100 characters.")
	}
	u, err := url.Parse(user.Website)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errs.Errorf(errs.EINVALID, "The website must be a http or https url.")
	}
	return nil
}

// ByID retrieves a single User by ID.
func (ug *userGorm) ByID(ctx context.Context, id int) (*domain.User, error) {
	return ug.first(ctx, "id = ?", id)
}

func (ug *userGorm) ByWalletAddress(ctx context.Context, address string) (*domain.User, error) {
	return ug.first(ctx, "wallet_address = ?", address)
}

func (ug *userGorm) ByUsername(ctx context.Context, username string) (*domain.User, error) {
	return ug.first(ctx, "username = ?", username)
}

func (ug *userGorm) ByProviderUserID(ctx context.Context, providerUserID string) (*domain.User, error) {
	return ug.first(ctx, "provider_user_id = ?", providerUserID)
}

// first returns the first user matching the query.
// If there is none, it returns errs.ENOTFOUND.
func (ug *userGorm) first(ctx context.Context, query string, args ...interface{}) (*domain.User, error) {
	var user domain.User
	err := ug.db.WithContext(ctx).Where(query, args...).First(&user).Error
	if err != nil {
		return nil, notFound(err, "The user does not exist.")
	}
	return &user, nil
}

// likeEscaper escapes the LIKE wildcards of a search term, with ! as escape character.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// Search finds users whose username or display name contains term,
// or whose wallet address starts with it.
func (ug *userGorm) Search(ctx context.Context, term string) ([]domain.User, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	users := []domain.User{}
	if term == "" {
		return users, nil
	}
	contains := "%" + likeEscaper.Replace(term) + "%"
	prefix := likeEscaper.Replace(term) + "%"
	err := ug.db.WithContext(ctx).
		Where("LOWER(username) LIKE ? ESCAPE '!'", contains).
		Or("LOWER(display_name) LIKE ? ESCAPE '!'", contains).
		Or("LOWER(wallet_address) LIKE ? ESCAPE '!'", prefix).
		Order("id").
		Limit(searchLimit).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// ConnectWallet looks the user up by its wallet address and creates it if there is none.
func (ug *userGorm) ConnectWallet(ctx context.Context, user *domain.User) (*domain.User, error) {
	found, err := ug.ByWalletAddress(ctx, user.WalletAddress)
	if err == nil {
		return found, nil
	}
	if errs.ErrorCode(err) != errs.ENOTFOUND {
		return nil, err
	}
	err = ug.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Another request connected the same wallet first.
		return ug.ByWalletAddress(ctx, user.WalletAddress)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (ug *userGorm) LinkProvider(ctx context.Context, user *domain.User, providerUserID, email string) error {
	err := ug.db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"provider_user_id": providerUserID,
		"email":            email,
	}).Error
	if err != nil {
		return err
	}
	user.ProviderUserID = &providerUserID
	user.Email = email
	return nil
}

// Update stores the profile fields of user.
func (ug *userGorm) Update(ctx context.Context, user *domain.User) error {
	err := ug.db.WithContext(ctx).Model(user).
		Select("username", "display_name", "bio", "website").
		Updates(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errs.Errorf(errs.ECONFLICT, "The username is already taken.")
	}
	return err
}

func (ug *userGorm) SetImage(ctx context.Context, user *domain.User, imageType, filename string) error {
	if err := ug.db.WithContext(ctx).Model(user).Update(imageType, filename).Error; err != nil {
		return err
	}
	if imageType == domain.ImageTypeAvatar {
		user.Avatar = filename
	} else {
		user.Header = filename
	}
	return nil
}

// BumpSessionVersion increments the user's session version, which logs out
// every wallet credential issued so far.
func (ug *userGorm) BumpSessionVersion(ctx context.Context, user *domain.User) error {
	db := ug.db.WithContext(ctx)
	err := db.Model(&domain.User{}).Where("id = ?", user.ID).
		UpdateColumn("session_version", gorm.Expr("session_version + 1")).Error
	if err != nil {
		return err
	}
	return db.Model(&domain.User{}).Where("id = ?", user.ID).
		Select("session_version").Scan(&user.SessionVersion).Error
}

// CountPosts counts the posts, replies and reposts of a user.
func (ug *userGorm) CountPosts(ctx context.Context, userID int) (int, error) {
	var count int64
	err := ug.db.WithContext(ctx).Model(&domain.Post{}).Where("user_id = ?", userID).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
