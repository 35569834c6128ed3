package crud

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"basebuzz/domain"
	"basebuzz/errs"
	"basebuzz/storage"
)

// ImageService validates uploads and keeps them in a storage.Storage.
type ImageService struct {
	imageValidator
}

type imageValidator struct {
	imageStore
}

// imageStore talks to the storage backend.
type imageStore struct {
	store storage.Storage
}

func NewImageService(store storage.Storage) *ImageService {
	return &ImageService{
		imageValidator{
			imageStore{
				store: store,
			},
		},
	}
}

var _ domain.ImageService = &ImageService{}

// allowedFormats maps accepted file extensions to the content type sniffed from the file.
var allowedFormats = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// Create checks an upload before it is stored: owner, format and size.
// On success the image gets a fresh filename.
func (iv *imageValidator) Create(ctx context.Context, img *domain.Image) error {
	err := runImageValFns(img,
		iv.ownerValid,
		iv.formatValid,
		iv.sizeValid,
		iv.renameUnique,
	)
	if err != nil {
		return err
	}
	return iv.imageStore.Create(ctx, img)
}

func runImageValFns(img *domain.Image, fns ...imageValFn) error {
	for _, fn := range fns {
		if err := fn(img); err != nil {
			return err
		}
	}
	return nil
}

type imageValFn func(img *domain.Image) error

func (iv *imageValidator) ownerValid(img *domain.Image) error {
	if img.OwnerType != domain.OwnerTypePost && img.OwnerType != domain.OwnerTypeUser {
		return errs.Errorf(errs.EINVALID, "Images belong to a post or a user.")
	}
	if img.OwnerID <= 0 {
		return errs.IdInvalid
	}
	if img.File == nil {
		return errs.Errorf(errs.EINVALID, "Image %s is empty.", img.Filename)
	}
	return nil
}

// formatValid sniffs the first 512 bytes and requires a png or jpeg whose
// extension agrees with its content. .jpg is stored as .jpeg.
func (iv *imageValidator) formatValid(img *domain.Image) error {
	ext := strings.ToLower(filepath.Ext(img.Filename))
	want, ok := allowedFormats[ext]
	if !ok {
		return errs.Errorf(errs.EINVALID, "Image %s must be a .png, .jpg or .jpeg file.", img.Filename)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(img.File, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return err
	}
	if _, err := img.File.Seek(0, io.SeekStart); err != nil {
		return err
	}
	got := http.DetectContentType(head[:n])
	if got != want {
		return errs.Errorf(errs.EINVALID, "Image %s is not a valid %s file.", img.Filename, strings.TrimPrefix(ext, "."))
	}

	if ext == ".jpg" {
		ext = ".jpeg"
	}
	img.Extension = ext
	img.ContentType = got
	return nil
}

func (iv *imageValidator) sizeValid(img *domain.Image) error {
	size, err := img.File.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if _, err := img.File.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if size > domain.MaxUploadSize {
		return errs.Errorf(errs.EINVALID, "Image %s is larger than %dMB.", img.Filename, domain.MaxUploadSize>>20)
	}
	img.Size = size
	return nil
}

// renameUnique drops the client's filename. Keys are <unix micros>-<random><ext>,
// so listing a prefix returns images in upload order.
func (iv *imageValidator) renameUnique(img *domain.Image) error {
	stamp := strconv.FormatInt(time.Now().UnixMicro(), 10)
	img.Filename = stamp + "-" + uuid.NewString()[:8] + img.Extension
	return nil
}

// Create writes the image to the storage under its owner's prefix.
func (is *imageStore) Create(ctx context.Context, img *domain.Image) error {
	if err := is.store.Write(ctx, img.Key(), img.File, img.Size, img.ContentType); err != nil {
		return fmt.Errorf("err storing image: %w", err)
	}
	img.URL = is.URL(img)
	return nil
}

// ByOwner returns the images of one owner, ordered by upload time.
func (is *imageStore) ByOwner(ctx context.Context, ownerType string, ownerID int) ([]domain.Image, error) {
	keys, err := is.store.List(ctx, domain.OwnerPrefix(ownerType, ownerID)+"/")
	if err != nil {
		return nil, err
	}
	images := make([]domain.Image, len(keys))
	for i, key := range keys {
		images[i] = domain.Image{
			OwnerType: ownerType,
			OwnerID:   ownerID,
			Filename:  path.Base(key),
		}
		images[i].URL = is.URL(&images[i])
	}
	return images, nil
}

// Delete removes one image.
func (is *imageStore) Delete(ctx context.Context, i *domain.Image) error {
	return is.store.Delete(ctx, i.Key())
}

// DeleteAll removes all images of one owner.
func (is *imageStore) DeleteAll(ctx context.Context, ownerType string, ownerID int) error {
	return is.store.DeletePrefix(ctx, domain.OwnerPrefix(ownerType, ownerID)+"/")
}

// URL returns the url the client loads the image from.
func (is *imageStore) URL(i *domain.Image) string {
	return is.store.URL(i.Key())
}
