package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"

	"basebuzz/auth"
	"basebuzz/domain"
	"basebuzz/errs"
)

// registerAuthRoutes is a helper for registering all auth routes.
func (s *Server) registerAuthRoutes(r *mux.Router) {
	// Get a sign-in message for a wallet to sign.
	r.HandleFunc("/auth/nonce", s.rateLimit(s.handleNonce)).Methods("GET")

	// Exchange the signed message for wallet credentials.
	r.HandleFunc("/auth/wallet-connect", s.rateLimit(s.handleWalletConnect)).Methods("POST")

	// Get the auth state of the request.
	r.HandleFunc("/auth/session", s.handleSession).Methods("GET")

	// Invalidate all wallet credentials of the user and clear the cookies.
	r.HandleFunc("/auth/logout", s.handleLogout).Methods("POST")

	// Get a csrf token for unsafe requests.
	r.HandleFunc("/auth/csrf", s.handleCSRFToken).Methods("GET")
}

// nonceResponse is the body of a successful nonce request.
type nonceResponse struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ChainID   int64     `json:"chain_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleNonce handles the route "GET /auth/nonce?address=&chain_id=".
// It creates a sign-in message for the wallet, replacing any pending one.
func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	// Parse the address and the optional chain id from the query.
	q := r.URL.Query()
	var chainID int64
	if v := q.Get("chain_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs.ReturnError(w, r, errs.Errorf(errs.EINVALID, "Invalid chain id."))
			return
		}
		chainID = id
	}

	// Create and store the challenge.
	c, err := s.connector.Challenge(r.Context(), q.Get("address"), chainID)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, nonceResponse{
		Nonce:     c.Nonce,
		Message:   c.Message,
		ChainID:   c.ChainID,
		ExpiresAt: c.ExpiresAt,
	})
}

// walletConnectRequest is the body of "POST /auth/wallet-connect".
type walletConnectRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
	ChainID   int64  `json:"chain_id"`
}

// walletConnectResponse is the session of the connected wallet plus its bearer token.
type walletConnectResponse struct {
	domain.Session
	Token string `json:"token"`
}

// handleWalletConnect handles the route "POST /auth/wallet-connect".
// It verifies the signed sign-in message, upserts the wallet's user and signs it in via cookies.
func (s *Server) handleWalletConnect(w http.ResponseWriter, r *http.Request) {
	// Parse the request's json body.
	var req walletConnectRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Verify the signature and issue the credentials.
	conn, err := s.connector.Connect(r.Context(), req.Address, req.Signature, req.ChainID)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Sign the user in.
	s.setCookie(w, auth.WalletTokenCookie, conn.Token, conn.TokenExpiresAt)
	s.setCookie(w, auth.WalletSessionCookie, conn.Session, conn.SessionExpiresAt)

	if err := s.decorateUser(r, conn.User); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	expiresAt := conn.TokenExpiresAt
	writeJSON(w, r, http.StatusOK, walletConnectResponse{
		Session: domain.Session{
			Authenticated: true,
			Scheme:        domain.SchemeWalletToken,
			WalletAddress: conn.User.WalletAddress,
			ChainID:       conn.ChainID,
			ExpiresAt:     &expiresAt,
			User:          conn.User,
		},
		Token: conn.Token,
	})
}

// handleSession handles the route "GET /auth/session".
// It returns the session the request's credentials resolved to.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSession(r.Context())
	if !session.Authenticated {
		writeJSON(w, r, http.StatusOK, &domain.Session{})
		return
	}
	if session.User != nil {
		if err := s.decorateUser(r, session.User); err != nil {
			errs.ReturnError(w, r, err)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, session)
}

// handleLogout handles the route "POST /auth/logout".
// Wallet credentials issued before are rejected afterwards, even if a client kept a copy.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.connector.Logout(r.Context(), auth.GetSession(r.Context())); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Expire all auth cookies.
	for _, name := range []string{auth.ProviderSessionCookie, auth.WalletTokenCookie, auth.WalletSessionCookie} {
		s.clearCookie(w, name)
	}

	writeJSON(w, r, http.StatusOK, message{Message: "successfully logged out"})
}

// handleCSRFToken handles the route "GET /auth/csrf".
func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.CSRFEnabled {
		errs.ReturnError(w, r, errs.Errorf(errs.ENOTFOUND, "CSRF protection is disabled."))
		return
	}
	w.Header().Set("X-CSRF-Token", csrf.Token(r))
	writeJSON(w, r, http.StatusOK, map[string]string{"csrf_token": csrf.Token(r)})
}

// requireAuth only lets requests through whose session belongs to a BaseBuzz user.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auth.GetUser(r.Context()) == nil {
			errs.ReturnError(w, r, errs.Errorf(errs.EUNAUTHORIZED, "You must connect a wallet first."))
			return
		}
		next(w, r)
	}
}

// setCookie sets an auth cookie that lives until expires.
func (s *Server) setCookie(w http.ResponseWriter, name, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.IsProd,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.IsProd,
		SameSite: http.SameSiteLaxMode,
	})
}
