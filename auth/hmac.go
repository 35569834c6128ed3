package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HMAC is a wrapper around the crypto/hmac package making it easier to use.
// A new hash is created per call, so one HMAC can be shared between requests.
type HMAC struct {
	key []byte
}

// NewHMAC creates and returns a new HMAC object.
func NewHMAC(key []byte) HMAC {
	return HMAC{key: key}
}

// Sum returns the HMAC-SHA256 of input.
func (h HMAC) Sum(input []byte) []byte {
	mac := hmac.New(sha256.New, h.key)
	mac.Write(input)
	return mac.Sum(nil)
}

// Valid reports whether sum is the HMAC of input, in constant time.
func (h HMAC) Valid(input, sum []byte) bool {
	return hmac.Equal(h.Sum(input), sum)
}

// Keys are the secrets used to sign and verify credentials. They are all derived
// from the one configured secret, so rotating it logs everybody out.
type Keys struct {
	WalletToken   []byte
	WalletSession []byte
	CSRF          []byte
}

// DeriveKeys expands secret into independent 32 byte keys with HKDF-SHA256.
func DeriveKeys(secret string) (Keys, error) {
	if secret == "" {
		return Keys{}, fmt.Errorf("secret required")
	}
	derive := func(info string) ([]byte, error) {
		key := make([]byte, 32)
		r := hkdf.New(sha256.New, []byte(secret), []byte("basebuzz"), []byte(info))
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("err deriving %s key: %w", info, err)
		}
		return key, nil
	}
	var keys Keys
	var err error
	if keys.WalletToken, err = derive("wallet-token"); err != nil {
		return Keys{}, err
	}
	if keys.WalletSession, err = derive("wallet-session"); err != nil {
		return Keys{}, err
	}
	if keys.CSRF, err = derive("csrf"); err != nil {
		return Keys{}, err
	}
	return keys, nil
}
