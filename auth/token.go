package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer is the iss claim of self-issued wallet tokens.
const TokenIssuer = "basebuzz"

// WalletClaims are the claims of a wallet token. The subject is the wallet address.
type WalletClaims struct {
	ChainID int64 `json:"chain_id"`
	Version int   `json:"ver"`
	jwt.RegisteredClaims
}

// WalletTokens issues and verifies HS256 wallet tokens.
type WalletTokens struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewWalletTokens(key []byte, ttl time.Duration) *WalletTokens {
	return &WalletTokens{key: key, ttl: ttl, now: time.Now}
}

// Issue signs a token for address on chainID, bound to the user's session version.
func (t *WalletTokens) Issue(address string, chainID int64, version int) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl)
	claims := WalletClaims{
		ChainID: chainID,
		Version: version,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   address,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("err signing wallet token: %w", err)
	}
	return token, expiresAt, nil
}

// Parse verifies the signature, issuer and expiry of a wallet token.
func (t *WalletTokens) Parse(token string) (*WalletClaims, error) {
	claims := &WalletClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("wallet token without subject")
	}
	return claims, nil
}
