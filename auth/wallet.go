package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"basebuzz/errs"
)

// NormalizeAddress validates a hex wallet address and returns its EIP-55 checksummed form.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
		return "", errs.Errorf(errs.EINVALID, "The wallet address is invalid.")
	}
	if !common.IsHexAddress(address) {
		return "", errs.Errorf(errs.EINVALID, "The wallet address is invalid.")
	}
	return common.HexToAddress(address).Hex(), nil
}

// RecoverAddress returns the address that produced signature by personal_sign-ing message.
// Wallets encode the recovery id as 0/1 or as 27/28, both are accepted.
func RecoverAddress(message, signature string) (string, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil || len(sig) != crypto.SignatureLength {
		return "", errs.Errorf(errs.EINVALID, "The signature is malformed.")
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", errs.Errorf(errs.EINVALID, "The signature is malformed.")
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// VerifySignature makes sure that signature over message was produced by address.
func VerifySignature(address, message, signature string) error {
	signer, err := RecoverAddress(message, signature)
	if err != nil {
		return err
	}
	if signer != address {
		return errs.Errorf(errs.EUNAUTHORIZED, "The signature does not match the wallet address.")
	}
	return nil
}

// Challenge is the sign-in message a wallet has to sign to connect.
type Challenge struct {
	Address   string    `json:"address"`
	ChainID   int64     `json:"chain_id"`
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the challenge can no longer be answered at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// newNonce returns 12 random bytes, hex encoded.
func newNonce() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// signInMessage renders an EIP-4361 (Sign-In with Ethereum) message.
func signInMessage(cfg Config, c *Challenge) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s wants you to sign in with your Ethereum account:\n", cfg.Domain)
	fmt.Fprintf(&b, "%s\n\n", c.Address)
	if cfg.Statement != "" {
		fmt.Fprintf(&b, "%s\n\n", cfg.Statement)
	}
	fmt.Fprintf(&b, "URI: %s\n", cfg.URI)
	fmt.Fprintf(&b, "Version: 1\n")
	fmt.Fprintf(&b, "Chain ID: %d\n", c.ChainID)
	fmt.Fprintf(&b, "Nonce: %s\n", c.Nonce)
	fmt.Fprintf(&b, "Issued At: %s\n", c.IssuedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Expiration Time: %s", c.ExpiresAt.UTC().Format(time.RFC3339))
	return b.String()
}
