package auth

import (
	"context"
	"time"

	"basebuzz/domain"
	"basebuzz/errs"
	"basebuzz/logger"
)

// Connection is the result of a successful wallet connect: the user and
// the credentials to hand back as cookies.
type Connection struct {
	User             *domain.User
	ChainID          int64
	Token            string
	TokenExpiresAt   time.Time
	Session          string
	SessionExpiresAt time.Time
}

// Connector runs the wallet connect flow: issue a challenge, verify the signed
// challenge, then issue credentials for the wallet's user.
type Connector struct {
	cfg      Config
	users    domain.UserService
	nonces   NonceStore
	tokens   *WalletTokens
	sessions *WalletSessions
	now      func() time.Time
}

func NewConnector(cfg Config, us domain.UserService, ns NonceStore, wt *WalletTokens, ws *WalletSessions) *Connector {
	return &Connector{
		cfg:      cfg.WithDefaults(),
		users:    us,
		nonces:   ns,
		tokens:   wt,
		sessions: ws,
		now:      time.Now,
	}
}

// Challenge creates a sign-in message for address and stores it, replacing any pending one.
// A chainID of 0 selects the first allowed chain.
func (c *Connector) Challenge(ctx context.Context, address string, chainID int64) (*Challenge, error) {
	address, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	if chainID == 0 {
		chainID = c.cfg.ChainIDs[0]
	}
	if !c.cfg.allowsChain(chainID) {
		return nil, errs.Errorf(errs.EINVALID, "Chain %d is not supported.", chainID)
	}
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	now := c.now().UTC().Truncate(time.Second)
	ch := &Challenge{
		Address:   address,
		ChainID:   chainID,
		Nonce:     nonce,
		IssuedAt:  now,
		ExpiresAt: now.Add(c.cfg.NonceTTL),
	}
	ch.Message = signInMessage(c.cfg, ch)
	if err := c.nonces.Put(ctx, ch, c.cfg.NonceTTL); err != nil {
		return nil, err
	}
	return ch, nil
}

// Connect checks signature against the pending challenge of address, consumes the
// challenge and upserts the wallet's user. A chainID of 0 means the challenge's chain.
// Failed attempts leave the challenge in place for the wallet's own answer.
func (c *Connector) Connect(ctx context.Context, address, signature string, chainID int64) (*Connection, error) {
	address, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	if signature == "" {
		return nil, errs.Errorf(errs.EINVALID, "A signature is required.")
	}
	noPending := errs.Errorf(errs.EUNAUTHORIZED, "No pending sign-in for this wallet, request a new nonce.")
	ch, err := c.nonces.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	if ch == nil || ch.Expired(c.now()) {
		return nil, noPending
	}
	if chainID != 0 && chainID != ch.ChainID {
		return nil, errs.Errorf(errs.EINVALID, "The chain does not match the sign-in request.")
	}
	if err := VerifySignature(address, ch.Message, signature); err != nil {
		return nil, err
	}
	// Only the request that removes the challenge signs in.
	ok, err := c.nonces.Consume(ctx, ch)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, noPending
	}

	user, err := c.users.ConnectWallet(ctx, address)
	if err != nil {
		return nil, err
	}
	conn := &Connection{User: user, ChainID: ch.ChainID}
	conn.Token, conn.TokenExpiresAt, err = c.tokens.Issue(user.WalletAddress, ch.ChainID, user.SessionVersion)
	if err != nil {
		return nil, err
	}
	conn.Session, conn.SessionExpiresAt, err = c.sessions.Encode(WalletSession{
		Address:     user.WalletAddress,
		ChainID:     ch.ChainID,
		ConnectedAt: c.now().UTC(),
		Version:     user.SessionVersion,
	})
	if err != nil {
		return nil, err
	}
	lg := logger.Ctx(ctx)
	lg.Info().
		Int(logger.FieldUserID, user.ID).
		Str(logger.FieldWallet, user.WalletAddress).
		Int64("chain_id", ch.ChainID).
		Msg("wallet connected")
	return conn, nil
}

// Logout invalidates every wallet credential issued to the session's user so far.
func (c *Connector) Logout(ctx context.Context, s *domain.Session) error {
	if s.User == nil {
		return nil
	}
	return c.users.BumpSessionVersion(ctx, s.User)
}
