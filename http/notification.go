package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"basebuzz/auth"
	"basebuzz/errs"
)

// registerNotificationRoutes is a helper for registering all notification routes.
func (s *Server) registerNotificationRoutes(r *mux.Router) {
	r.HandleFunc("/notifications", s.requireAuth(s.handleNotifications)).Methods("GET")
	r.HandleFunc("/notifications/unread", s.requireAuth(s.handleUnreadCount)).Methods("GET")
	r.HandleFunc("/notifications/read", s.requireAuth(s.handleMarkRead)).Methods("POST")
}

// handleNotifications handles the route "GET /notifications".
// It lists the authed user's notifications, newest first.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	ns, err := s.ns.ByRecipient(r.Context(), auth.GetUser(r.Context()).ID, page)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	for i := range ns {
		s.setUserImageURLs(ns[i].Actor)
	}
	writeJSON(w, r, http.StatusOK, ns)
}

// handleUnreadCount handles the route "GET /notifications/unread".
func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.ns.CountUnread(r.Context(), auth.GetUser(r.Context()).ID)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"count": n})
}

// handleMarkRead handles the route "POST /notifications/read".
// Without ids in the body, all notifications of the authed user are marked read.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int `json:"ids"`
	}
	if err := decodeJSON(w, r, &req, true); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	if err := s.ns.MarkRead(r.Context(), auth.GetUser(r.Context()).ID, req.IDs); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, message{Message: "successfully marked read"})
}
