package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"basebuzz/auth"
	"basebuzz/domain"
	"basebuzz/errs"
)

// registerUserRoutes is a helper for registering all user routes.
func (s *Server) registerUserRoutes(r *mux.Router) {
	// Get and update the authed user.
	r.HandleFunc("/user", s.requireAuth(s.handleGetAuthUser)).Methods("GET")
	r.HandleFunc("/user", s.requireAuth(s.handleUpdateUser)).Methods("PUT")

	// Search for users.
	r.HandleFunc("/users", s.handleSearchUsers).Methods("GET")

	// Get a user by id, wallet address or username.
	r.HandleFunc("/users/{handle}", s.handleGetUser).Methods("GET")

	// Get the posts of one of the tabs of a user's profile.
	r.HandleFunc("/users/{id:[0-9]+}/posts", s.handleUserPosts).Methods("GET")
}

// handleGetAuthUser handles the route "GET /user".
func (s *Server) handleGetAuthUser(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if err := s.decorateUser(r, user); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, user)
}

// handleUpdateUser handles the route "PUT /user".
// Only the profile fields present in the json body are changed.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	// Parse the request's json body into a UserUpdate object.
	var upd domain.UserUpdate
	if err := decodeJSON(w, r, &upd, false); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Update the user's database record (includes validation / normalization).
	user := auth.GetUser(r.Context())
	if err := s.us.Update(r.Context(), user, upd); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Return the updated user.
	if err := s.decorateUser(r, user); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, user)
}

// handleSearchUsers handles the route "GET /users?q=term".
// It returns the users whose username, display name or wallet address match the term.
func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.us.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	for i := range users {
		s.setUserImageURLs(&users[i])
	}
	writeJSON(w, r, http.StatusOK, users)
}

// handleGetUser handles the route "GET /users/:handle".
// A handle of digits is a user ID, one starting with 0x a wallet address, anything else a username.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.userByHandle(r, mux.Vars(r)["handle"])
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	if err := s.decorateUser(r, user); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, user)
}

func (s *Server) userByHandle(r *http.Request, handle string) (*domain.User, error) {
	if id, err := strconv.Atoi(handle); err == nil {
		if id <= 0 {
			return nil, errs.IdInvalid
		}
		return s.us.ByID(r.Context(), id)
	}
	if strings.HasPrefix(strings.ToLower(handle), "0x") {
		return s.us.ByWalletAddress(r.Context(), handle)
	}
	return s.us.ByUsername(r.Context(), handle)
}

// handleUserPosts handles the route "GET /users/:id/posts?tab=".
func (s *Server) handleUserPosts(w http.ResponseWriter, r *http.Request) {
	// Parse the user ID from the url and the page from the query.
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

	// Make sure the user exists, so that an unknown user is not an empty list.
	if _, err := s.us.ByID(r.Context(), id); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	posts, err := s.ps.ByUserTab(r.Context(), id, r.URL.Query().Get("tab"), page)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	if err := s.decoratePosts(r, posts); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, posts)
}

// decorateUser sets the counts and image urls of a user, and whether the authed user follows them.
func (s *Server) decorateUser(r *http.Request, user *domain.User) error {
	ctx := r.Context()
	var err error
	if user.FollowerCount, err = s.fs.CountFollowers(ctx, user.ID); err != nil {
		return err
	}
	if user.FollowingCount, err = s.fs.CountFollowing(ctx, user.ID); err != nil {
		return err
	}
	if user.PostCount, err = s.us.CountPosts(ctx, user.ID); err != nil {
		return err
	}
	if authID := auth.GetSession(ctx).UserID(); authID != 0 && authID != user.ID {
		if user.AuthFollows, err = s.fs.Follows(ctx, authID, user.ID); err != nil {
			return err
		}
	}
	s.setUserImageURLs(user)
	return nil
}

// setUserImageURLs turns the user's image filenames into urls.
func (s *Server) setUserImageURLs(user *domain.User) {
	if user == nil {
		return
	}
	user.AvatarURL, user.HeaderURL = "", ""
	if user.Avatar != "" {
		user.AvatarURL = s.is.URL(&domain.Image{OwnerType: domain.OwnerTypeUser, OwnerID: user.ID, Filename: user.Avatar})
	}
	if user.Header != "" {
		user.HeaderURL = s.is.URL(&domain.Image{OwnerType: domain.OwnerTypeUser, OwnerID: user.ID, Filename: user.Header})
	}
}
