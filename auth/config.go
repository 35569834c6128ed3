package auth

import "time"

// Cookie names of the three credential schemes.
const (
	ProviderSessionCookie = "sb-access-token"
	WalletTokenCookie     = "basebuzz-wallet-token"
	WalletSessionCookie   = "basebuzz_wallet_session"
)

// Chain ids accepted by default: Base mainnet and Base Sepolia.
var DefaultChainIDs = []int64{8453, 84532}

// Config configures wallet connect and the credentials it issues.
type Config struct {
	Domain     string        `mapstructure:"domain"`
	URI        string        `mapstructure:"uri"`
	Statement  string        `mapstructure:"statement"`
	ChainIDs   []int64       `mapstructure:"chain_ids"`
	NonceTTL   time.Duration `mapstructure:"nonce_ttl"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// ProviderConfig configures verification of the hosted auth provider's session JWT.
// An empty JWTSecret disables the provider scheme.
type ProviderConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Audience  string `mapstructure:"audience"`
}

// WithDefaults fills in every unset field.
func (c Config) WithDefaults() Config {
	if c.Domain == "" {
		c.Domain = "localhost:3000"
	}
	if c.URI == "" {
		c.URI = "http://" + c.Domain
	}
	if c.Statement == "" {
		c.Statement = "Sign in to BaseBuzz."
	}
	if len(c.ChainIDs) == 0 {
		c.ChainIDs = DefaultChainIDs
	}
	if c.NonceTTL <= 0 {
		c.NonceTTL = 5 * time.Minute
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 7 * 24 * time.Hour
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 30 * 24 * time.Hour
	}
	return c
}

// allowsChain reports whether id is one of the configured chain ids.
func (c Config) allowsChain(id int64) bool {
	for _, allowed := range c.ChainIDs {
		if allowed == id {
			return true
		}
	}
	return false
}
