package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"basebuzz/auth"
	"basebuzz/domain"
	"basebuzz/errs"
)

// registerLikeRoutes is a helper for registering all Like routes.
func (s *Server) registerLikeRoutes(r *mux.Router) {
	// Like a post.
	r.HandleFunc("/posts/{id:[0-9]+}/like", s.requireAuth(s.handleCreateLike)).Methods("POST")

	// Unlike a post.
	r.HandleFunc("/posts/{id:[0-9]+}/like", s.requireAuth(s.handleDeleteLike)).Methods("DELETE")
}

// handleCreateLike handles the route "POST /posts/:id/like".
// It reads the post ID from the url and creates a new Like record in the database.
func (s *Server) handleCreateLike(w http.ResponseWriter, r *http.Request) {
	// Parse the post ID from the url.
	postID, err := idParam(r, "id")
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Create a new Like database record for the authed user.
	like := &domain.Like{UserID: auth.GetUser(r.Context()).ID, PostID: postID}
	if err := s.ls.Create(r.Context(), like); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Return the created Like, without the post it was validated against.
	like.Post = nil
	writeJSON(w, r, http.StatusCreated, like)
}

// handleDeleteLike handles the route "DELETE /posts/:id/like".
// It permanently deletes the authed user's like of the post.
func (s *Server) handleDeleteLike(w http.ResponseWriter, r *http.Request) {
	// Parse the post ID from the url.
	postID, err := idParam(r, "id")
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Delete the Like database record.
	like := &domain.Like{UserID: auth.GetUser(r.Context()).ID, PostID: postID}
	if err := s.ls.Delete(r.Context(), like); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, message{Message: "successfully unliked"})
}
