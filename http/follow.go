package http

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"basebuzz/auth"
	"basebuzz/domain"
	"basebuzz/errs"
)

// registerFollowRoutes is a helper for registering all Follow routes.
func (s *Server) registerFollowRoutes(r *mux.Router) {
	// Follow and unfollow a user.
	r.HandleFunc("/users/{id:[0-9]+}/follow", s.requireAuth(s.handleCreateFollow)).Methods("POST")
	r.HandleFunc("/users/{id:[0-9]+}/follow", s.requireAuth(s.handleDeleteFollow)).Methods("DELETE")

	// List who follows a user, and whom a user follows.
	r.HandleFunc("/users/{id:[0-9]+}/followers", s.handleFollowers).Methods("GET")
	r.HandleFunc("/users/{id:[0-9]+}/following", s.handleFollowing).Methods("GET")
}

// handleCreateFollow handles the route "POST /users/:id/follow".
// The authed user follows the user with the ID from the url.
func (s *Server) handleCreateFollow(w http.ResponseWriter, r *http.Request) {
	// Parse the followed user's ID from the url.
	followedID, err := idParam(r, "id")
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Create a new Follow database record.
	follow := &domain.Follow{
		FollowerID: auth.GetUser(r.Context()).ID,
		FollowedID: followedID,
	}
	if err := s.fs.Create(r.Context(), follow); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Return the created Follow.
	writeJSON(w, r, http.StatusCreated, follow)
}

// handleDeleteFollow handles the route "DELETE /users/:id/follow".
func (s *Server) handleDeleteFollow(w http.ResponseWriter, r *http.Request) {
	// Parse the followed user's ID from the url.
	followedID, err := idParam(r, "id")
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Delete the Follow database record.
	follow := &domain.Follow{
		FollowerID: auth.GetUser(r.Context()).ID,
		FollowedID: followedID,
	}
	if err := s.fs.Delete(r.Context(), follow); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, message{Message: "successfully unfollowed"})
}

// handleFollowers handles the route "GET /users/:id/followers".
func (s *Server) handleFollowers(w http.ResponseWriter, r *http.Request) {
	s.listFollows(w, r, s.fs.Followers)
}

// handleFollowing handles the route "GET /users/:id/following".
func (s *Server) handleFollowing(w http.ResponseWriter, r *http.Request) {
	s.listFollows(w, r, s.fs.Following)
}

func (s *Server) listFollows(w http.ResponseWriter, r *http.Request,
	list func(ctx context.Context, userID int, page domain.Page) ([]domain.User, error)) {
	id, err := idParam(r, "id")
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	page, err := pageParams(r)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	if _, err := s.us.ByID(r.Context(), id); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	users, err := list(r.Context(), id, page)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	for i := range users {
		s.setUserImageURLs(&users[i])
	}
	writeJSON(w, r, http.StatusOK, users)
}
