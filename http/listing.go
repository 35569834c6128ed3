package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"basebuzz/auth"
	"basebuzz/domain"
	"basebuzz/errs"
)

// registerListingRoutes is a helper for registering all marketplace listing routes.
func (s *Server) registerListingRoutes(r *mux.Router) {
	r.HandleFunc("/listings", s.handleListings).Methods("GET")
	r.HandleFunc("/listings", s.requireAuth(s.handleCreateListing)).Methods("POST")
	r.HandleFunc("/listings/{id:[0-9]+}", s.handleGetListing).Methods("GET")
	r.HandleFunc("/listings/{id:[0-9]+}", s.requireAuth(s.handleUpdateListing)).Methods("PUT")
	r.HandleFunc("/listings/{id:[0-9]+}", s.requireAuth(s.handleDeleteListing)).Methods("DELETE")
}

// listingRequest holds the listing fields a client may set. Nil fields are left untouched on update.
type listingRequest struct {
	Title           *string  `json:"title"`
	Description     *string  `json:"description"`
	Category        *string  `json:"category"`
	Price           *float64 `json:"price"`
	Currency        *string  `json:"currency"`
	ContractAddress *string  `json:"contract_address"`
	Status          *string  `json:"status"`
}

func (req listingRequest) apply(l *domain.Listing) {
	if req.Title != nil {
		l.Title = *req.Title
	}
	if req.Description != nil {
		l.Description = *req.Description
	}
	if req.Category != nil {
		l.Category = *req.Category
	}
	if req.Price != nil {
		l.Price = *req.Price
	}
	if req.Currency != nil {
		l.Currency = *req.Currency
	}
	if req.ContractAddress != nil {
		l.ContractAddress = *req.ContractAddress
	}
	if req.Status != nil {
		l.Status = *req.Status
	}
}

// handleListings handles the route "GET /listings?category=&status=&user_id=".
func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := domain.ListingFilter{
		Category: q.Get("category"),
		Status:   q.Get("status"),
		Page:     page,
	}
	if v := q.Get("user_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id <= 0 {
			errs.ReturnError(w, r, errs.IdInvalid)
			return
		}
		filter.UserID = id
	}

	listings, err := s.lis.Find(r.Context(), filter)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	for i := range listings {
		s.setUserImageURLs(listings[i].User)
	}
	writeJSON(w, r, http.StatusOK, listings)
}

// handleCreateListing handles the route "POST /listings".
func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	// Parse the request's json body into a new Listing.
	var req listingRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	listing := &domain.Listing{UserID: auth.GetUser(r.Context()).ID}
	req.apply(listing)

	// Create the Listing database record (includes validation / normalization).
	if err := s.lis.Create(r.Context(), listing); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	s.setUserImageURLs(listing.User)
	writeJSON(w, r, http.StatusCreated, listing)
}

// handleGetListing handles the route "GET /listings/:id".
func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	listing, err := s.lis.ByID(r.Context(), id)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	s.setUserImageURLs(listing.User)
	writeJSON(w, r, http.StatusOK, listing)
}

// handleUpdateListing handles the route "PUT /listings/:id".
func (s *Server) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	// Fetch the listing and check if it belongs to the authed user.
	listing, err := s.ownedListing(r)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Apply the changes from the request's json body.
	var req listingRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	req.apply(listing)

	// Update the Listing database record (includes validation / normalization).
	if err := s.lis.Update(r.Context(), listing); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	s.setUserImageURLs(listing.User)
	writeJSON(w, r, http.StatusOK, listing)
}

// handleDeleteListing handles the route "DELETE /listings/:id".
func (s *Server) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	listing, err := s.ownedListing(r)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	if err := s.lis.Delete(r.Context(), listing); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, message{Message: "successfully deleted"})
}

// ownedListing fetches the listing with the ID from the url, if it belongs to the authed user.
func (s *Server) ownedListing(r *http.Request) (*domain.Listing, error) {
	id, err := idParam(r, "id")
	if err != nil {
		return nil, err
	}
	listing, err := s.lis.ByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if listing.UserID != auth.GetUser(r.Context()).ID {
		return nil, errs.Errorf(errs.EFORBIDDEN, "You are not allowed to edit this listing.")
	}
	return listing, nil
}
