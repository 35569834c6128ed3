package http

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"github.com/gorilla/mux"

	"basebuzz/auth"
	"basebuzz/domain"
	"basebuzz/errs"
	"basebuzz/logger"
	"basebuzz/storage"
)

// registerImageRoutes is a helper for registering all image upload routes.
func (s *Server) registerImageRoutes(r *mux.Router) {
	// Upload the authed user's avatar or header image.
	r.HandleFunc("/user/images/{image_type}", s.requireAuth(s.handleUploadUserImage)).Methods("POST")

	// Delete the authed user's avatar or header image.
	r.HandleFunc("/user/images/{image_type}", s.requireAuth(s.handleDeleteUserImage)).Methods("DELETE")

	// Replace the images of an owned post.
	r.HandleFunc("/posts/{id:[0-9]+}/images", s.requireAuth(s.handleUploadPostImages)).Methods("POST")
}

// registerImageFileRoutes serves stored images.
func (s *Server) registerImageFileRoutes(r *mux.Router) {
	r.HandleFunc(storage.LocalURLPrefix+"{key:.+}", s.handleImageFile).Methods("GET")
}

// imageType parses the image type from the url.
func imageType(r *http.Request) (string, error) {
	t := mux.Vars(r)["image_type"]
	if t != domain.ImageTypeAvatar && t != domain.ImageTypeHeader {
		return "", errs.Errorf(errs.EINVALID, "Invalid image type, must be 'avatar' or 'header'.")
	}
	return t, nil
}

// parseMultipart reads a multipart form of at most maxFiles images.
func parseMultipart(w http.ResponseWriter, r *http.Request, maxFiles int) error {
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxFiles)*domain.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(domain.MaxUploadSize); err != nil {
		return errs.Errorf(errs.EINVALID, "Invalid upload, images may be up to %dMB each.", domain.MaxUploadSize>>20)
	}
	return nil
}

// storeImage validates and stores one uploaded file for an owner.
func (s *Server) storeImage(r *http.Request, ownerType string, ownerID int, fh *multipart.FileHeader) (*domain.Image, error) {
	file, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img := &domain.Image{
		OwnerType: ownerType,
		OwnerID:   ownerID,
		File:      file,
		Filename:  fh.Filename,
	}
	if err := s.is.Create(r.Context(), img); err != nil {
		return nil, err
	}
	return img, nil
}

// handleUploadUserImage handles the route "POST /user/images/:image_type".
// It stores the uploaded image, points the user's avatar or header at it and
// deletes the image it replaced.
func (s *Server) handleUploadUserImage(w http.ResponseWriter, r *http.Request) {
	// Parse the image type from the url.
	imgType, err := imageType(r)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Parse the data to be uploaded.
	if err := parseMultipart(w, r, 1); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	files := r.MultipartForm.File["image"]
	if len(files) != 1 {
		errs.ReturnError(w, r, errs.Errorf(errs.EINVALID, "Upload exactly one image."))
		return
	}

	// Store the image (includes validation / normalization).
	user := auth.GetUser(r.Context())
	img, err := s.storeImage(r, domain.OwnerTypeUser, user.ID, files[0])
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Update the user's avatar/header field to be the Filename of the newly stored image.
	previous := user.Avatar
	if imgType == domain.ImageTypeHeader {
		previous = user.Header
	}
	if err := s.us.SetImage(r.Context(), user, imgType, img.Filename); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Delete the replaced image.
	if previous != "" {
		s.deleteImage(r, &domain.Image{OwnerType: domain.OwnerTypeUser, OwnerID: user.ID, Filename: previous})
	}

	// Return the user.
	if err := s.decorateUser(r, user); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, user)
}

// handleDeleteUserImage handles the route "DELETE /user/images/:image_type".
func (s *Server) handleDeleteUserImage(w http.ResponseWriter, r *http.Request) {
	// Parse the image type from the url.
	imgType, err := imageType(r)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Get the filename of the image to be deleted.
	user := auth.GetUser(r.Context())
	filename := user.Avatar
	if imgType == domain.ImageTypeHeader {
		filename = user.Header
	}
	if filename == "" {
		errs.ReturnError(w, r, errs.Errorf(errs.ENOTFOUND, "You have no %s image.", imgType))
		return
	}

	// Clear the user's field, then delete the file.
	if err := s.us.SetImage(r.Context(), user, imgType, ""); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	s.deleteImage(r, &domain.Image{OwnerType: domain.OwnerTypeUser, OwnerID: user.ID, Filename: filename})

	// Return the user.
	if err := s.decorateUser(r, user); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, user)
}

// handleUploadPostImages handles the route "POST /posts/:id/images".
// It stores up to 4 uploaded images for a post, replacing the ones it had before.
func (s *Server) handleUploadPostImages(w http.ResponseWriter, r *http.Request) {
	// Parse the post ID from the url.
	id, err := idParam(r, "id")
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Fetch the post and check if it belongs to the authed user.
	post, err := s.ps.ByID(r.Context(), id)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	if post.UserID != auth.GetUser(r.Context()).ID {
		errs.ReturnError(w, r, errs.Errorf(errs.EFORBIDDEN, "You are not allowed to edit this post."))
		return
	}
	if post.RepostOfID != nil {
		errs.ReturnError(w, r, errs.Errorf(errs.EINVALID, "Reposts cannot have images."))
		return
	}

	// Parse the data to be uploaded and check if the image count is 1 to 4.
	if err := parseMultipart(w, r, domain.PostMaxImages); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	files := r.MultipartForm.File["images"]
	if len(files) == 0 || len(files) > domain.PostMaxImages {
		errs.ReturnError(w, r, errs.Errorf(errs.EINVALID, "Upload 1 to %d images.", domain.PostMaxImages))
		return
	}

	// Remember the images to be replaced.
	previous, err := s.is.ByOwner(r.Context(), domain.OwnerTypePost, post.ID)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Store the new images. On failure the ones stored so far are removed again.
	images := make([]domain.Image, 0, len(files))
	for _, fh := range files {
		img, err := s.storeImage(r, domain.OwnerTypePost, post.ID, fh)
		if err != nil {
			for i := range images {
				s.deleteImage(r, &images[i])
			}
			errs.ReturnError(w, r, err)
			return
		}
		images = append(images, *img)
	}
	for i := range previous {
		s.deleteImage(r, &previous[i])
	}

	if err := s.ps.SetImageCount(r.Context(), post, len(images)); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Return the post with its images.
	post.Images = images
	if err := s.decoratePost(r, post); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, post)
}

// deleteImage removes an image that is no longer referenced. Failures only leave an orphaned file behind.
func (s *Server) deleteImage(r *http.Request, img *domain.Image) {
	if err := s.is.Delete(r.Context(), img); err != nil {
		lg := logger.Ctx(r.Context())
		lg.Warn().Err(err).Str("key", img.Key()).Msg("err deleting image")
	}
}

// handleImageFile handles the route "GET /images/:key".
func (s *Server) handleImageFile(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if strings.Contains(key, "..") {
		errs.ReturnError(w, r, errs.Errorf(errs.ENOTFOUND, "Not found."))
		return
	}

	rc, err := s.store.Read(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = errs.Errorf(errs.ENOTFOUND, "Not found.")
		}
		errs.ReturnError(w, r, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		lg := logger.Ctx(r.Context())
		lg.Debug().Err(err).Msg("err writing image")
	}
}
