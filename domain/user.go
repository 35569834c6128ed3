package domain

import (
	"context"
	"time"
)

// User represents a BaseBuzz account. Every account is anchored to one wallet address,
// which is stored in its EIP-55 checksummed form. A user may additionally be linked to an
// account of the hosted auth provider, identified by ProviderUserID.
// Avatar and Header hold the filenames of the user's images, AvatarURL and HeaderURL
// the urls the client can load them from.
type User struct {
	ID             int     `json:"id"`
	WalletAddress  string  `json:"wallet_address" gorm:"notNull;uniqueIndex;size:42"`
	ProviderUserID *string `json:"-" gorm:"uniqueIndex;size:64"`
	Email          string  `json:"-"`
	Username       *string `json:"username" gorm:"uniqueIndex;size:30"`
	DisplayName    string  `json:"display_name" gorm:"size:50"`
	Bio            string  `json:"bio" gorm:"size:160"`
	Website        string  `json:"website" gorm:"size:100"`
	Avatar         string  `json:"-"`
	Header         string  `json:"-"`
	AvatarURL      string  `json:"avatar_url,omitempty" gorm:"-"`
	HeaderURL      string  `json:"header_url,omitempty" gorm:"-"`

	// SessionVersion is embedded in every wallet credential issued for this user.
	// Logging out increments it, which invalidates all credentials issued before.
	SessionVersion int `json:"-" gorm:"notNull;default:0"`

	Posts     []Post   `json:"-"`
	Likes     []Like   `json:"-"`
	Followers []Follow `json:"-" gorm:"foreignKey:FollowedID"`
	Followeds []Follow `json:"-" gorm:"foreignKey:FollowerID"`

	FollowerCount  int  `json:"follower_count" gorm:"-"`
	FollowingCount int  `json:"following_count" gorm:"-"`
	PostCount      int  `json:"post_count" gorm:"-"`
	AuthFollows    bool `json:"auth_follows" gorm:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserUpdate holds the profile fields a user may change. Nil fields are left untouched.
type UserUpdate struct {
	Username    *string `json:"username"`
	DisplayName *string `json:"display_name"`
	Bio         *string `json:"bio"`
	Website     *string `json:"website"`
}

// UserService is a set of methods to manipulate and work with the User model.
type UserService interface {
	ByID(ctx context.Context, id int) (*User, error)
	ByWalletAddress(ctx context.Context, address string) (*User, error)
	ByUsername(ctx context.Context, username string) (*User, error)
	ByProviderUserID(ctx context.Context, providerUserID string) (*User, error)
	Search(ctx context.Context, term string) ([]User, error)
	ConnectWallet(ctx context.Context, address string) (*User, error)
	LinkProvider(ctx context.Context, user *User, providerUserID, email string) error
	Update(ctx context.Context, user *User, upd UserUpdate) error
	SetImage(ctx context.Context, user *User, imageType, filename string) error
	BumpSessionVersion(ctx context.Context, user *User) error
	CountPosts(ctx context.Context, userID int) (int, error)
}
