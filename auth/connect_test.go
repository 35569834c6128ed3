package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basebuzz/domain"
	"basebuzz/errs"
)

func newTestConnector(t *testing.T) (*Connector, *memUsers) {
	keys := testKeys(t)
	users := newMemUsers()
	c := NewConnector(Config{Domain: "basebuzz.test", URI: "https://basebuzz.test"},
		users, NewMemoryNonceStore(),
		NewWalletTokens(keys.WalletToken, time.Hour),
		NewWalletSessions(keys.WalletSession, time.Hour))
	return c, users
}

func TestChallenge(t *testing.T) {
	c, _ := newTestConnector(t)
	ctx := context.Background()
	w := newWallet(t)

	ch, err := c.Challenge(ctx, strings.ToLower(w.address), 0)
	require.NoError(t, err)
	assert.Equal(t, w.address, ch.Address)
	assert.Equal(t, int64(8453), ch.ChainID)
	assert.NotEmpty(t, ch.Nonce)
	assert.True(t, strings.HasPrefix(ch.Message, "basebuzz.test wants you to sign in with your Ethereum account:\n"+w.address+"\n"))
	assert.Contains(t, ch.Message, "Nonce: "+ch.Nonce)
	assert.Contains(t, ch.Message, "Chain ID: 8453")
	assert.Equal(t, 5*time.Minute, ch.ExpiresAt.Sub(ch.IssuedAt))

	_, err = c.Challenge(ctx, w.address, 1)
	assert.Equal(t, errs.EINVALID, errs.ErrorCode(err))

	_, err = c.Challenge(ctx, "not-an-address", 0)
	assert.Equal(t, errs.EINVALID, errs.ErrorCode(err))
}

func TestConnect(t *testing.T) {
	c, users := newTestConnector(t)
	ctx := context.Background()
	w := newWallet(t)

	ch, err := c.Challenge(ctx, w.address, 84532)
	require.NoError(t, err)

	conn, err := c.Connect(ctx, w.address, w.sign(t, ch.Message), 84532)
	require.NoError(t, err)
	assert.Equal(t, w.address, conn.User.WalletAddress)
	assert.Equal(t, int64(84532), conn.ChainID)

	claims, err := c.tokens.Parse(conn.Token)
	require.NoError(t, err)
	assert.Equal(t, w.address, claims.Subject)

	ws, err := c.sessions.Decode(conn.Session)
	require.NoError(t, err)
	assert.Equal(t, w.address, ws.Address)

	// The challenge is single use.
	_, err = c.Connect(ctx, w.address, w.sign(t, ch.Message), 84532)
	assert.Equal(t, errs.EUNAUTHORIZED, errs.ErrorCode(err))

	// Connecting again returns the same user.
	ch, err = c.Challenge(ctx, w.address, 0)
	require.NoError(t, err)
	again, err := c.Connect(ctx, w.address, w.sign(t, ch.Message), 0)
	require.NoError(t, err)
	assert.Equal(t, conn.User.ID, again.User.ID)
	assert.Len(t, users.users, 1)
}

func TestConnectRejects(t *testing.T) {
	c, _ := newTestConnector(t)
	ctx := context.Background()
	w := newWallet(t)
	intruder := newWallet(t)

	_, err := c.Connect(ctx, w.address, "0x00", 0)
	assert.Equal(t, errs.EUNAUTHORIZED, errs.ErrorCode(err), "no challenge")

	ch, err := c.Challenge(ctx, w.address, 0)
	require.NoError(t, err)
	_, err = c.Connect(ctx, w.address, intruder.sign(t, ch.Message), 0)
	assert.Equal(t, errs.EUNAUTHORIZED, errs.ErrorCode(err), "wrong signer")

	ch, err = c.Challenge(ctx, w.address, 8453)
	require.NoError(t, err)
	_, err = c.Connect(ctx, w.address, w.sign(t, ch.Message), 84532)
	assert.Equal(t, errs.EINVALID, errs.ErrorCode(err), "chain mismatch")

	ch, err = c.Challenge(ctx, w.address, 0)
	require.NoError(t, err)
	c.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	_, err = c.Connect(ctx, w.address, w.sign(t, ch.Message), 0)
	assert.Equal(t, errs.EUNAUTHORIZED, errs.ErrorCode(err), "expired")
}

func TestConnectFailedAttemptsKeepChallenge(t *testing.T) {
	c, _ := newTestConnector(t)
	ctx := context.Background()
	w := newWallet(t)
	intruder := newWallet(t)

	ch, err := c.Challenge(ctx, w.address, 8453)
	require.NoError(t, err)

	// Anyone can post for a public address; none of these may cancel the sign-in.
	_, err = c.Connect(ctx, w.address, "0xdead", 0)
	require.Error(t, err)
	_, err = c.Connect(ctx, w.address, intruder.sign(t, ch.Message), 0)
	require.Error(t, err)
	_, err = c.Connect(ctx, w.address, w.sign(t, ch.Message), 84532)
	require.Error(t, err)

	conn, err := c.Connect(ctx, w.address, w.sign(t, ch.Message), 0)
	require.NoError(t, err)
	assert.Equal(t, w.address, conn.User.WalletAddress)
}

func TestLogout(t *testing.T) {
	c, users := newTestConnector(t)
	u := users.add("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	s := &domain.Session{Authenticated: true, User: u}
	require.NoError(t, c.Logout(context.Background(), s))
	assert.Equal(t, 1, u.SessionVersion)

	require.NoError(t, c.Logout(context.Background(), &domain.Session{}))
}
