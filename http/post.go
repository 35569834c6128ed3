package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"basebuzz/auth"
	"basebuzz/domain"
	"basebuzz/errs"
	"basebuzz/logger"
)

// registerPostRoutes is a helper for registering all post routes.
func (s *Server) registerPostRoutes(r *mux.Router) {
	// List the latest posts, or those of the users the authed user follows.
	r.HandleFunc("/posts", s.handleFeed).Methods("GET")

	// Create a new post or reply.
	r.HandleFunc("/posts", s.requireAuth(s.handleCreatePost)).Methods("POST")

	// Get a single post with its replies.
	r.HandleFunc("/posts/{id:[0-9]+}", s.handleGetPost).Methods("GET")

	// Delete an owned post, its replies and reposts.
	r.HandleFunc("/posts/{id:[0-9]+}", s.requireAuth(s.handleDeletePost)).Methods("DELETE")

	// Reply to a post.
	r.HandleFunc("/posts/{id:[0-9]+}/reply", s.requireAuth(s.handleReply)).Methods("POST")

	// Repost and unrepost a post.
	r.HandleFunc("/posts/{id:[0-9]+}/repost", s.requireAuth(s.handleRepost)).Methods("POST")
	r.HandleFunc("/posts/{id:[0-9]+}/repost", s.requireAuth(s.handleUnrepost)).Methods("DELETE")
}

// postRequest is the body of a request creating a post or reply.
type postRequest struct {
	Content   string `json:"content"`
	ReplyToID *int   `json:"reply_to_id"`
}

// handleFeed handles the route "GET /posts?feed=latest|following".
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	var posts []domain.Post
	switch feed := r.URL.Query().Get("feed"); feed {
	case "", domain.FeedLatest:
		posts, err = s.ps.Feed(r.Context(), page)
	case domain.FeedFollowing:
		user := auth.GetUser(r.Context())
		if user == nil {
			errs.ReturnError(w, r, errs.Errorf(errs.EUNAUTHORIZED, "You must connect a wallet first."))
			return
		}
		posts, err = s.ps.FollowingFeed(r.Context(), user.ID, page)
	default:
		err = errs.Errorf(errs.EINVALID, "Unknown feed %q.", feed)
	}
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

// handleCreatePost handles the route "POST /posts".
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	// Parse the request's json body.
	var req postRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	s.createPost(w, r, req)
}

// handleReply handles the route "POST /posts/:id/reply".
func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	// Parse the ID of the post being replied to from the url.
	id, err := idParam(r, "id")
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Parse the request's json body.
	var req postRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	req.ReplyToID = &id
	s.createPost(w, r, req)
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request, req postRequest) {
	// Create a new Post database record for the authed user (includes validation / normalization).
	post := &domain.Post{
		UserID:    auth.GetUser(r.Context()).ID,
		Content:   req.Content,
		ReplyToID: req.ReplyToID,
	}
	if err := s.ps.Create(r.Context(), post); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Return the created post.
	if err := s.decoratePost(r, post); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, post)
}

// handleGetPost handles the route "GET /posts/:id".
func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	// Parse the post ID from the url.
	id, err := idParam(r, "id")
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Fetch the post from the database.
	post, err := s.ps.ByID(r.Context(), id)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	if err := s.decoratePost(r, post); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, post)
}

// handleDeletePost handles the route "DELETE /posts/:id".
// It soft deletes the post with its replies and reposts, and removes its images.
func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
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
		errs.ReturnError(w, r, errs.Errorf(errs.EFORBIDDEN, "You are not allowed to delete this post."))
		return
	}

	// Delete the post.
	if err := s.ps.Delete(r.Context(), post); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Delete the post's images. The post is gone either way.
	if post.ImageCount > 0 {
		if err := s.is.DeleteAll(r.Context(), domain.OwnerTypePost, post.ID); err != nil {
			lg := logger.Ctx(r.Context())
			lg.Warn().Err(err).Int("post_id", post.ID).Msg("err deleting post images")
		}
	}

	writeJSON(w, r, http.StatusOK, message{Message: "successfully deleted"})
}

// handleRepost handles the route "POST /posts/:id/repost".
func (s *Server) handleRepost(w http.ResponseWriter, r *http.Request) {
	// Parse the post ID from the url.
	id, err := idParam(r, "id")
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Create the repost.
	repost, err := s.ps.Repost(r.Context(), auth.GetUser(r.Context()).ID, id)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	if err := s.decoratePost(r, repost); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, repost)
}

// handleUnrepost handles the route "DELETE /posts/:id/repost".
func (s *Server) handleUnrepost(w http.ResponseWriter, r *http.Request) {
	// Parse the post ID from the url.
	id, err := idParam(r, "id")
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	if err := s.ps.Unrepost(r.Context(), auth.GetUser(r.Context()).ID, id); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, message{Message: "successfully unreposted"})
}

// decoratePosts sets counts, images and author image urls of posts.
func (s *Server) decoratePosts(r *http.Request, posts []domain.Post) error {
	ptrs := make([]*domain.Post, len(posts))
	for i := range posts {
		ptrs[i] = &posts[i]
	}
	return s.decoratePostPtrs(r, ptrs)
}

// decoratePost decorates a single post and its replies.
func (s *Server) decoratePost(r *http.Request, post *domain.Post) error {
	ptrs := []*domain.Post{post}
	for i := range post.Replies {
		ptrs = append(ptrs, &post.Replies[i])
	}
	return s.decoratePostPtrs(r, ptrs)
}

func (s *Server) decoratePostPtrs(r *http.Request, posts []*domain.Post) error {
	ctx := r.Context()
	if err := s.ps.SetCounts(ctx, posts, auth.GetSession(ctx).UserID()); err != nil {
		return err
	}
	for _, p := range posts {
		for _, related := range []*domain.Post{p, p.RepostOf, p.ReplyTo} {
			if related == nil {
				continue
			}
			s.setUserImageURLs(related.User)
			if related.ImageCount == 0 || related.Images != nil {
				continue
			}
			images, err := s.is.ByOwner(ctx, domain.OwnerTypePost, related.ID)
			if err != nil {
				return err
			}
			related.Images = images
		}
	}
	return nil
}
