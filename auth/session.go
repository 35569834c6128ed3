package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WalletSession is the payload of the wallet session cookie.
type WalletSession struct {
	Address     string    `json:"address"`
	ChainID     int64     `json:"chainId"`
	ConnectedAt time.Time `json:"connectedAt"`
	Version     int       `json:"ver"`
}

// WalletSessions encodes and decodes MAC protected wallet session cookies.
// The cookie value is base64url(json) "." base64url(hmac).
type WalletSessions struct {
	hmac HMAC
	ttl  time.Duration
	now  func() time.Time
}

func NewWalletSessions(key []byte, ttl time.Duration) *WalletSessions {
	return &WalletSessions{hmac: NewHMAC(key), ttl: ttl, now: time.Now}
}

// Encode returns the cookie value for s and the time it expires.
func (ws *WalletSessions) Encode(s WalletSession) (string, time.Time, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return "", time.Time{}, err
	}
	enc := base64.RawURLEncoding
	value := enc.EncodeToString(payload) + "." + enc.EncodeToString(ws.hmac.Sum(payload))
	return value, s.ConnectedAt.Add(ws.ttl), nil
}

// Decode verifies the MAC and the expiry of a cookie value.
func (ws *WalletSessions) Decode(value string) (*WalletSession, error) {
	enc := base64.RawURLEncoding
	i := strings.LastIndexByte(value, '.')
	if i < 0 {
		return nil, fmt.Errorf("malformed wallet session")
	}
	payload, err := enc.DecodeString(value[:i])
	if err != nil {
		return nil, fmt.Errorf("malformed wallet session: %w", err)
	}
	sum, err := enc.DecodeString(value[i+1:])
	if err != nil {
		return nil, fmt.Errorf("malformed wallet session: %w", err)
	}
	if !ws.hmac.Valid(payload, sum) {
		return nil, fmt.Errorf("wallet session signature mismatch")
	}
	var s WalletSession
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("malformed wallet session: %w", err)
	}
	if s.Address == "" || s.ConnectedAt.IsZero() {
		return nil, fmt.Errorf("incomplete wallet session")
	}
	if !ws.now().Before(s.ConnectedAt.Add(ws.ttl)) {
		return nil, fmt.Errorf("wallet session expired")
	}
	return &s, nil
}
