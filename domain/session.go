package domain

import "time"

// Scheme names the credential a session was resolved from.
type Scheme string

const (
	// SchemeProviderSession is a session managed by the hosted auth provider (cookie sb-access-token).
	SchemeProviderSession Scheme = "provider_session"
	// SchemeWalletToken is a signed token issued on wallet connect (cookie basebuzz-wallet-token).
	SchemeWalletToken Scheme = "wallet_token"
	// SchemeWalletSession is a MAC-protected json blob issued on wallet connect (cookie basebuzz_wallet_session).
	SchemeWalletSession Scheme = "wallet_session"
)

// Session is the merged auth state of a request. An anonymous request has a zero Session.
// User is nil when the credential is valid but does not belong to a BaseBuzz account yet,
// which can only happen for provider sessions.
type Session struct {
	Authenticated  bool       `json:"authenticated"`
	Scheme         Scheme     `json:"scheme,omitempty"`
	WalletAddress  string     `json:"wallet_address,omitempty"`
	ChainID        int64      `json:"chain_id,omitempty"`
	ProviderUserID string     `json:"provider_user_id,omitempty"`
	Email          string     `json:"email,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	User           *User      `json:"user,omitempty"`
}

// UserID returns the ID of the session's user, or 0.
func (s *Session) UserID() int {
	if s == nil || s.User == nil {
		return 0
	}
	return s.User.ID
}
