package domain

import (
	"context"
	"fmt"
	"io"
)

const (
	// OwnerTypePost expresses that an Image belongs to a Post.
	OwnerTypePost = "post"
	// OwnerTypeUser expresses that an Image belongs to a User.
	OwnerTypeUser = "user"

	// ImageTypeAvatar and ImageTypeHeader are the two images a user can have.
	ImageTypeAvatar = "avatar"
	ImageTypeHeader = "header"

	// MaxUploadSize determines the maximum filesize of an image to be uploaded.
	MaxUploadSize int64 = 5 << 20 // 5 Megabyte
)

// Image represents an uploaded image. Images have no table in the database, they only
// exist as objects in the configured storage. Every image belongs to an owner, either a
// Post or a User depending on OwnerType, and the relationship is resolved through the
// storage key of the image:
// an Image belonging to the User with ID 1 is stored under user/1/unique_name.jpeg,
// an Image belonging to the Post with ID 2 under post/2/unique_name.png.
// File is only set while uploading.
type Image struct {
	URL         string        `json:"url"`
	OwnerType   string        `json:"-"`
	OwnerID     int           `json:"-"`
	File        io.ReadSeeker `json:"-"`
	Filename    string        `json:"-"`
	Extension   string        `json:"-"`
	ContentType string        `json:"-"`
	Size        int64         `json:"-"`
}

// ImageService is a set of methods to manipulate and work with images.
type ImageService interface {
	Create(ctx context.Context, image *Image) error
	ByOwner(ctx context.Context, ownerType string, ownerID int) ([]Image, error)
	Delete(ctx context.Context, i *Image) error
	DeleteAll(ctx context.Context, ownerType string, ownerID int) error
	URL(i *Image) string
}

// Key returns the storage key of the image.
func (i *Image) Key() string {
	return fmt.Sprintf("%v/%v", OwnerPrefix(i.OwnerType, i.OwnerID), i.Filename)
}

// OwnerPrefix returns the storage key prefix shared by all images of one owner.
func OwnerPrefix(ownerType string, ownerID int) string {
	return fmt.Sprintf("%v/%v", ownerType, ownerID)
}
